package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

type Middleware interface {
	ProtectedRoute(required Role, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// RecoveryStep is where the password recovery screen is in its flow.
type RecoveryStep = string

const (
	// RecoveryUnknown means the recovery link was invalid or expired.
	RecoveryUnknown RecoveryStep = "unknown"
	// RecoveryChanging means the link checked out and the form is shown.
	RecoveryChanging RecoveryStep = "change-password"
	// RecoveryFinalized means the password was updated.
	RecoveryFinalized RecoveryStep = "password-changed"
)

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			// limitReq,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetForm).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetExecute).
		SetName("pwd-reset.post")
}

type AuthControllerRoutes struct {
	Login         string
	Logout        string
	PasswordReset string
}

type AuthControllerViews struct {
	Login         string
	PasswordReset string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Session      *Controller
	Config       Config
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Auther       HTTPSession
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerSession(session *Controller) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Session = session
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerAuther(auther HTTPSession) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func WithControllerViews(views *AuthControllerViews) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if views != nil {
			c.Views = views
		}
		return c
	}
}

func WithControllerErrorHandler(handler router.ErrorHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AuthControllerRoutes{
			Login:         "/login",
			Logout:        "/logout",
			PasswordReset: "/password-reset",
		},
		Views: &AuthControllerViews{
			Login:         "login",
			PasswordReset: "password_reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Session == nil {
		panic("Missing session Controller in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPSession in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	state := a.Session.State()
	if state.Identity != nil && state.Confirmed {
		return ctx.Redirect(RedirectTarget(state.Profile, a.Config), router.StatusSeeOther)
	}

	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// GetIdentifier returns the account email
func (r LoginRequest) GetIdentifier() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(map[string]string{"email": payload.Email}))
		fmt.Println("=========================")
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		if IsInvalidCredentials(err) {
			errs["authentication"] = "Invalid email or password"
		} else {
			errs["authentication"] = "Authentication Error"
		}
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	state := a.Session.State()
	redirect := a.Auther.GetRedirect(ctx, RedirectTarget(state.Profile, a.Config))

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Welcome back",
	}).Redirect(redirect, fiber.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	if err := a.Auther.Logout(ctx); err != nil {
		a.Logger.Warn("logout remote error: ", "error", err)
	}
	return ctx.Redirect(a.Routes.Login, router.StatusTemporaryRedirect)
}

const (
	stageKey = "stage"
	emailKey = "email"
)

// PasswordResetForm renders the change-password form after checking that the
// recovery link established a usable session.
func (a *AuthController) PasswordResetForm(ctx router.Context) error {
	errs := map[string]string{}

	session, err := a.Session.VerifyRecoverySession(ctx.Context())
	if err != nil {
		a.Logger.Error("recovery verification: ", "error", err)
		errs["verification"] = "This recovery link is invalid or has expired"
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"reset": map[string]string{
				stageKey: RecoveryUnknown,
			},
		})
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": errs,
		"reset": map[string]string{
			stageKey: RecoveryChanging,
			emailKey: session.UserEmail,
		},
	})
}

// PasswordResetVerifyPayload holds values for password reset
type PasswordResetVerifyPayload struct {
	Stage           string `form:"stage" json:"stage"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetVerifyPayload) Validate() error {

	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Stage,
			validation.Required,
			validation.In(
				RecoveryChanging,
			),
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(8, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(8, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	errs := map[string]string{}
	payload := new(PasswordResetVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		errs["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: ", "error", err)
		errs = FormatValidationErrorToMap(err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	if err := a.Session.UpdatePassword(ctx.Context(), payload.Password); err != nil {
		errs["validation"] = err.Error()
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errs,
			"reset": map[string]string{
				stageKey: RecoveryChanging,
			},
		})
	}

	if a.Debug {
		fmt.Println("======= Password Reset ======")
		fmt.Println(print.MaybePrettyJSON(map[string]any{"updated": true}))
		fmt.Println("=============================")
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": errs,
		"reset": map[string]string{
			stageKey: RecoveryFinalized,
		},
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors for templates.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		out["validation"] = err.Error()
		return out
	}
	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}

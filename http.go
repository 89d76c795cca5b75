package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/condovalle/go-auth/middleware/tokenware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RejectedRouteCookie remembers the route a visitor was bounced from so the
// login flow can send them back after they authenticate.
const RejectedRouteCookie = "cdv-rejected-route"

// LoginPayload is what the web layer hands to Login.
type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
}

// HTTPSession is the surface the auth controller uses to move sessions in
// and out of cookies.
type HTTPSession interface {
	Login(ctx router.Context, payload LoginPayload) error
	Logout(ctx router.Context) error
	GetRedirect(ctx router.Context, def ...string) string
	SetRedirect(ctx router.Context)
}

// RouteSession bridges the session Controller and the router: it moves the
// access token through a cookie, guards routes with tokenware, and remembers
// rejected routes for post-login redirects.
type RouteSession struct {
	controller       *Controller
	cfg              Config
	validator        tokenware.TokenValidator
	cookieDuration   time.Duration
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewRouteSession(controller *Controller, validator tokenware.TokenValidator, cfg Config) (*RouteSession, error) {
	if controller == nil {
		return nil, errors.New("route session requires a controller", errors.CategoryBadInput)
	}

	a := &RouteSession{
		cfg:            cfg,
		controller:     controller,
		validator:      validator,
		Logger:         defLogger{},
		cookieDuration: 24 * time.Hour,
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

// Controller exposes the wrapped session controller.
func (a *RouteSession) Controller() *Controller {
	return a.controller
}

// ProtectedRoute validates the access token cookie and, when required is not
// empty, rejects tokens whose role claim does not match.
func (a *RouteSession) ProtectedRoute(required Role, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return tokenware.New(tokenware.Config{
		ErrorHandler:   errorHandler,
		TokenValidator: a.validator,
		RequiredRole:   string(required),
		TokenLookup:    "cookie:" + a.cfg.GetStorageKey(),
		ContextEnricher: func(ctx context.Context, claims tokenware.AuthClaims) context.Context {
			return WithIdentityContext(ctx, claimsIdentity{claims})
		},
	})
}

func (a *RouteSession) Login(ctx router.Context, payload LoginPayload) error {
	session, err := a.controller.SignIn(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return err
	}

	duration := a.cookieDuration
	if session.ExpiresAt != nil {
		duration = time.Until(*session.ExpiresAt)
	}

	a.setCookieToken(ctx, session.AccessToken, duration)
	return nil
}

func (a *RouteSession) Logout(ctx router.Context) error {
	err := a.controller.SignOut(ctx.Context())
	a.cookieDel(ctx, a.cfg.GetStorageKey())
	a.cookieDel(ctx, RejectedRouteCookie)
	return err
}

func (a *RouteSession) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error
		if !errors.As(err, &richErr) {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteSession) GetRedirect(ctx router.Context, def ...string) string {
	r := ctx.Cookies(RejectedRouteCookie)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return RedirectTarget(a.controller.State().Profile, a.cfg)
	}
	a.cookieDel(ctx, RejectedRouteCookie)
	return r
}

func (a *RouteSession) SetRedirect(ctx router.Context) {
	a.Logger.Info("Setting redirect cookie", "key", RejectedRouteCookie, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     RejectedRouteCookie,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteSession) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetStorageKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteSession) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteSession) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.cfg.GetLoginRoute(), statusCode)
}

func (a *RouteSession) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}

// claimsIdentity adapts validated token claims to the Identity interface so
// handlers can use the same context helpers as the controller.
type claimsIdentity struct {
	claims tokenware.AuthClaims
}

func (c claimsIdentity) ID() string {
	if id := c.claims.UserID(); id != "" {
		return id
	}
	return c.claims.Subject()
}

func (c claimsIdentity) UUID() (uuid.UUID, error) {
	return uuid.Parse(c.ID())
}

func (c claimsIdentity) Email() string {
	return c.claims.Email()
}

// RouterClaims pulls the validated claims tokenware stored in the router
// context. The key must match the middleware's ContextKey.
func RouterClaims(c router.Context, key string) (tokenware.AuthClaims, error) {
	val := c.Locals(key)
	if val == nil {
		return nil, errors.New("no validated claims in request", errors.CategoryAuth).
			WithTextCode("CLAIMS_NOT_FOUND").
			WithCode(errors.CodeUnauthorized)
	}

	claims, ok := val.(tokenware.AuthClaims)
	if !ok {
		return nil, errors.New("unexpected claims type in request", errors.CategoryAuth).
			WithTextCode("CLAIMS_UNREADABLE").
			WithCode(errors.CodeUnauthorized)
	}

	return claims, nil
}

package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/condovalle/go-auth"
	"github.com/google/uuid"
)

type fakeAuther struct {
	loginErr  error
	logoutErr error
	redirect  string

	logins  []auth.LoginPayload
	logouts int
}

func (f *fakeAuther) Login(ctx router.Context, payload auth.LoginPayload) error {
	f.logins = append(f.logins, payload)
	return f.loginErr
}

func (f *fakeAuther) Logout(ctx router.Context) error {
	f.logouts++
	return f.logoutErr
}

func (f *fakeAuther) GetRedirect(ctx router.Context, def ...string) string {
	if f.redirect != "" {
		return f.redirect
	}
	if len(def) > 0 {
		return def[0]
	}
	return "/"
}

func (f *fakeAuther) SetRedirect(ctx router.Context) {}

func newTestAuthController(t *testing.T, svc *MockIdentityService, profiles *MockProfiles, auther auth.HTTPSession) *auth.AuthController {
	t.Helper()

	controller := auth.New(svc, profiles)
	t.Cleanup(controller.Close)

	return auth.NewAuthController(
		auth.WithControllerSession(controller),
		auth.WithControllerConfig(testConfig{}),
		auth.WithControllerAuther(auther),
	)
}

func flashTolerantContext() *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("Cookie", mock.Anything).Return().Maybe()
	ctx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
	ctx.On("LocalsMerge", mock.Anything, mock.Anything).Return(map[string]any{}).Maybe()
	ctx.On("Status", mock.Anything).Return(ctx).Maybe()
	return ctx
}

func TestLoginShowRendersFormForAnonymousVisitor(t *testing.T) {
	ctrl := newTestAuthController(t, &MockIdentityService{}, &MockProfiles{}, &fakeAuther{})

	ctx := router.NewMockContext()
	ctx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil)

	require.NoError(t, ctrl.LoginShow(ctx))
	ctx.AssertExpectations(t)
}

func TestLoginShowRedirectsConfirmedSession(t *testing.T) {
	userID := uuid.New()
	session := testSession(userID, "r@condovalle.test")
	profile := testProfile(userID, auth.RoleResident)

	svc := &MockIdentityService{}
	svc.On("GetSession", mock.Anything).Return(session, nil)
	profiles := &MockProfiles{}
	profiles.On("Get", mock.Anything, userID).Return(profile, nil)

	ctrl := newTestAuthController(t, svc, profiles, &fakeAuther{})
	ctrl.Session.Bootstrap(context.Background())

	require.Eventually(t, func() bool {
		return ctrl.Session.State().Confirmed
	}, time.Second, 5*time.Millisecond)

	ctx := router.NewMockContext()
	ctx.On("Redirect", "/dashboard", []int{router.StatusSeeOther}).Return(nil)

	require.NoError(t, ctrl.LoginShow(ctx))
	ctx.AssertExpectations(t)
}

func TestLoginPostRendersValidationErrors(t *testing.T) {
	ctrl := newTestAuthController(t, &MockIdentityService{}, &MockProfiles{}, &fakeAuther{})

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*auth.LoginRequest)
		payload.Email = "not-an-email"
		payload.Password = ""
	})

	var rendered router.ViewContext
	ctx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.LoginPost(ctx))

	msgs, ok := rendered["validation"].(map[string]string)
	require.True(t, ok)
	assert.Contains(t, msgs, "email")
	assert.Contains(t, msgs, "password")
}

func TestLoginPostInvalidCredentialsShowsGenericMessage(t *testing.T) {
	auther := &fakeAuther{loginErr: auth.ErrInvalidCredentials}
	ctrl := newTestAuthController(t, &MockIdentityService{}, &MockProfiles{}, auther)

	ctx := router.NewMockContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*auth.LoginRequest)
		payload.Email = "r@condovalle.test"
		payload.Password = "wrong-password"
	})

	var rendered router.ViewContext
	ctx.On("Render", ctrl.Views.Login, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.LoginPost(ctx))
	require.Len(t, auther.logins, 1)

	errs, ok := rendered["errors"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Invalid email or password", errs["authentication"])
}

func TestLoginPostSuccessRedirectsWithFlash(t *testing.T) {
	auther := &fakeAuther{redirect: "/dashboard"}
	ctrl := newTestAuthController(t, &MockIdentityService{}, &MockProfiles{}, auther)

	ctx := flashTolerantContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*auth.LoginRequest)
		payload.Email = "r@condovalle.test"
		payload.Password = "secret123"
	})
	ctx.On("Redirect", "/dashboard", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, ctrl.LoginPost(ctx))
	require.Len(t, auther.logins, 1)
	assert.Equal(t, "r@condovalle.test", auther.logins[0].GetIdentifier())
	ctx.AssertExpectations(t)
}

func TestLogOutAlwaysLandsOnLogin(t *testing.T) {
	auther := &fakeAuther{logoutErr: assert.AnError}
	ctrl := newTestAuthController(t, &MockIdentityService{}, &MockProfiles{}, auther)

	ctx := router.NewMockContext()
	ctx.On("Redirect", ctrl.Routes.Login, []int{router.StatusTemporaryRedirect}).Return(nil)

	require.NoError(t, ctrl.LogOut(ctx))
	assert.Equal(t, 1, auther.logouts)
	ctx.AssertExpectations(t)
}

func TestPasswordResetFormRejectsDeadRecoveryLink(t *testing.T) {
	svc := &MockIdentityService{}
	svc.On("GetSession", mock.Anything).Return(nil, nil)

	ctrl := newTestAuthController(t, svc, &MockProfiles{}, &fakeAuther{})

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())

	var rendered router.ViewContext
	ctx.On("Render", ctrl.Views.PasswordReset, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.PasswordResetForm(ctx))

	reset, ok := rendered["reset"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, auth.RecoveryUnknown, reset["stage"])

	errs, ok := rendered["errors"].(map[string]string)
	require.True(t, ok)
	assert.NotEmpty(t, errs["verification"])
}

func TestPasswordResetFormShowsChangeFormForUsableSession(t *testing.T) {
	userID := uuid.New()
	session := testSession(userID, "r@condovalle.test")

	svc := &MockIdentityService{}
	svc.On("GetSession", mock.Anything).Return(session, nil)

	ctrl := newTestAuthController(t, svc, &MockProfiles{}, &fakeAuther{})

	ctx := router.NewMockContext()
	ctx.On("Context").Return(context.Background())

	var rendered router.ViewContext
	ctx.On("Render", ctrl.Views.PasswordReset, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.PasswordResetForm(ctx))

	reset, ok := rendered["reset"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, auth.RecoveryChanging, reset["stage"])
	assert.Equal(t, "r@condovalle.test", reset["email"])
}

func TestPasswordResetExecuteUpdatesPassword(t *testing.T) {
	svc := &MockIdentityService{}
	svc.On("UpdateUser", mock.Anything, auth.UserAttributes{Password: "brand-new-pass"}).Return(nil)

	ctrl := newTestAuthController(t, svc, &MockProfiles{}, &fakeAuther{})

	ctx := flashTolerantContext()
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*auth.PasswordResetVerifyPayload)
		payload.Stage = auth.RecoveryChanging
		payload.Password = "brand-new-pass"
		payload.ConfirmPassword = "brand-new-pass"
	})

	var rendered router.ViewContext
	ctx.On("Render", ctrl.Views.PasswordReset, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.PasswordResetExecute(ctx))
	svc.AssertExpectations(t)

	reset, ok := rendered["reset"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, auth.RecoveryFinalized, reset["stage"])
}

func TestPasswordResetExecuteRejectsMismatchedConfirmation(t *testing.T) {
	svc := &MockIdentityService{}
	ctrl := newTestAuthController(t, svc, &MockProfiles{}, &fakeAuther{})

	ctx := flashTolerantContext()
	ctx.On("Bind", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*auth.PasswordResetVerifyPayload)
		payload.Stage = auth.RecoveryChanging
		payload.Password = "brand-new-pass"
		payload.ConfirmPassword = "other-pass"
	})

	var rendered router.ViewContext
	ctx.On("Render", ctrl.Views.PasswordReset, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	})

	require.NoError(t, ctrl.PasswordResetExecute(ctx))
	svc.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything)

	errs, ok := rendered["validation"].(map[string]string)
	require.True(t, ok)
	assert.NotEmpty(t, errs)
}

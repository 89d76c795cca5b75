package tokenware_test

import (
	"errors"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/condovalle/go-auth/middleware/tokenware"
)

type fakeClaims struct {
	sub   string
	email string
	role  string
}

func (c fakeClaims) Subject() string          { return c.sub }
func (c fakeClaims) UserID() string           { return c.sub }
func (c fakeClaims) Email() string            { return c.email }
func (c fakeClaims) Role() string             { return c.role }
func (c fakeClaims) HasRole(role string) bool { return c.role == role }

type fakeValidator struct {
	claims tokenware.AuthClaims
	err    error
	seen   []string
}

func (v *fakeValidator) Validate(tokenString string) (tokenware.AuthClaims, error) {
	v.seen = append(v.seen, tokenString)
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

func passthrough(ctx router.Context) error { return nil }

func TestTokenwareValidHeaderToken(t *testing.T) {
	validator := &fakeValidator{claims: fakeClaims{sub: "user-1", role: "resident"}}

	handler := tokenware.New(tokenware.Config{
		TokenValidator: validator,
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})(passthrough)

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer valid-token"
	ctx.On("GetString", "Authorization", "").Return("Bearer valid-token")
	ctx.On("Locals", "user", mock.Anything).Return(nil)

	require.NoError(t, handler(ctx))
	assert.True(t, ctx.NextCalled)
	assert.Equal(t, []string{"valid-token"}, validator.seen)
}

func TestTokenwareMissingTokenRejected(t *testing.T) {
	validator := &fakeValidator{claims: fakeClaims{sub: "user-1"}}

	var handled error
	handler := tokenware.New(tokenware.Config{
		TokenValidator: validator,
		ErrorHandler: func(ctx router.Context, err error) error {
			handled = err
			return err
		},
	})(passthrough)

	ctx := router.NewMockContext()
	ctx.On("GetString", "Authorization", "").Return("")

	err := handler(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, handled, tokenware.ErrMissingOrMalformed)
	assert.False(t, ctx.NextCalled)
	assert.Empty(t, validator.seen, "nothing to validate without a token")
}

func TestTokenwareWrongSchemeRejected(t *testing.T) {
	validator := &fakeValidator{claims: fakeClaims{sub: "user-1"}}

	handler := tokenware.New(tokenware.Config{
		TokenValidator: validator,
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})(passthrough)

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Basic dXNlcjpwdw=="
	ctx.On("GetString", "Authorization", "").Return("Basic dXNlcjpwdw==")

	err := handler(ctx)
	assert.ErrorIs(t, err, tokenware.ErrMissingOrMalformed)
}

func TestTokenwareValidatorErrorPropagates(t *testing.T) {
	bad := errors.New("token expired")
	validator := &fakeValidator{err: bad}

	handler := tokenware.New(tokenware.Config{
		TokenValidator: validator,
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})(passthrough)

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer stale-token"
	ctx.On("GetString", "Authorization", "").Return("Bearer stale-token")

	err := handler(ctx)
	assert.ErrorIs(t, err, bad)
	assert.False(t, ctx.NextCalled)
}

func TestTokenwareRequiredRole(t *testing.T) {
	validator := &fakeValidator{claims: fakeClaims{sub: "user-1", role: "resident"}}

	newHandler := func(required string) router.HandlerFunc {
		return tokenware.New(tokenware.Config{
			TokenValidator: validator,
			RequiredRole:   required,
			ErrorHandler: func(ctx router.Context, err error) error {
				return err
			},
		})(passthrough)
	}

	ctx := router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer valid-token"
	ctx.On("GetString", "Authorization", "").Return("Bearer valid-token")
	ctx.On("Locals", "user", mock.Anything).Return(nil)

	require.NoError(t, newHandler("resident")(ctx))
	assert.True(t, ctx.NextCalled)

	ctx = router.NewMockContext()
	ctx.HeadersM["Authorization"] = "Bearer valid-token"
	ctx.On("GetString", "Authorization", "").Return("Bearer valid-token")

	err := newHandler("admin")(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.False(t, ctx.NextCalled)
}

func TestTokenwareCookieLookup(t *testing.T) {
	validator := &fakeValidator{claims: fakeClaims{sub: "user-1", role: "admin"}}

	handler := tokenware.New(tokenware.Config{
		TokenValidator: validator,
		TokenLookup:    "cookie:cdv2-session",
		ErrorHandler: func(ctx router.Context, err error) error {
			return err
		},
	})(passthrough)

	ctx := router.NewMockContext()
	ctx.CookiesM["cdv2-session"] = "cookie-token"
	ctx.On("Locals", "user", mock.Anything).Return(nil)

	require.NoError(t, handler(ctx))
	assert.True(t, ctx.NextCalled)
	assert.Equal(t, []string{"cookie-token"}, validator.seen)
}

func TestTokenwareFilterSkips(t *testing.T) {
	validator := &fakeValidator{claims: fakeClaims{sub: "user-1"}}

	handler := tokenware.New(tokenware.Config{
		TokenValidator: validator,
		Filter: func(ctx router.Context) bool {
			return true
		},
	})(passthrough)

	ctx := router.NewMockContext()

	require.NoError(t, handler(ctx))
	assert.True(t, ctx.NextCalled)
	assert.Empty(t, validator.seen)
}

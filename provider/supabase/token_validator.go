package supabase

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/condovalle/go-auth"
	"github.com/condovalle/go-auth/middleware/tokenware"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// Claims is the validated view of an issued access token. The application
// role comes from user_metadata; the top-level "role" claim is the database
// role and is kept separate.
type Claims struct {
	subject  string
	email    string
	appRole  string
	dbRole   string
	issuedAt *time.Time
	expires  *time.Time
}

func (c *Claims) Subject() string { return c.subject }
func (c *Claims) UserID() string  { return c.subject }
func (c *Claims) Email() string   { return c.email }
func (c *Claims) Role() string    { return c.appRole }

func (c *Claims) HasRole(role string) bool {
	return c.appRole == role
}

// TokenValidator validates backend-issued JWTs against the project's JWKS
// endpoint. Use it wherever a request carries the access token and the
// server must not trust an unverified decode.
type TokenValidator struct {
	jwks *keyfunc.JWKS
}

// NewTokenValidator creates a validator with a background-refreshed key set.
func NewTokenValidator(ctx context.Context, cfg Config) (*TokenValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to fetch JWK set")
	}

	return &TokenValidator{jwks: jwks}, nil
}

// Validate parses and verifies a token, returning its claims.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, v.jwks.Keyfunc)
	if err != nil {
		return nil, normalizeTokenError(err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, auth.ErrSessionCorrupted.WithMetadata(map[string]any{
			"reason": "unexpected claims shape",
		})
	}

	claims := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.subject = sub
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.email = email
	}
	if dbRole, ok := mapClaims["role"].(string); ok {
		claims.dbRole = dbRole
	}
	if meta, ok := mapClaims["user_metadata"].(map[string]any); ok {
		if role, ok := meta["role"].(string); ok {
			claims.appRole = role
		}
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.issuedAt = &iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.expires = &exp.Time
	}

	if claims.subject == "" {
		return nil, auth.ErrSessionCorrupted.WithMetadata(map[string]any{
			"reason": "token has no subject",
		})
	}

	return claims, nil
}

// Close stops the background JWKS refresh.
func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// Tokenware adapts the validator to the middleware's interface.
func (v *TokenValidator) Tokenware() tokenware.TokenValidator {
	return middlewareValidator{v: v}
}

type middlewareValidator struct {
	v *TokenValidator
}

func (m middlewareValidator) Validate(tokenString string) (tokenware.AuthClaims, error) {
	claims, err := m.v.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func normalizeTokenError(err error) error {
	if err == nil {
		return nil
	}

	category := goerrors.CategoryAuth
	message := "invalid access token"
	if jwtErrorIs(err, jwt.ErrTokenExpired) {
		message = "access token is expired"
	} else if jwtErrorIs(err, jwt.ErrTokenMalformed) {
		message = "access token is malformed"
	}

	return goerrors.Wrap(err, category, message).
		WithCode(goerrors.CodeUnauthorized)
}

func jwtErrorIs(err, target error) bool {
	return err != nil && stderrors.Is(err, target)
}

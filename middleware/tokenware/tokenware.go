// Package tokenware guards routes behind a backend-issued access token. The
// token travels in a header, cookie, or query parameter; validation is
// delegated so the middleware stays agnostic of key management.
package tokenware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup    = "header:" + router.HeaderAuthorization
	ErrMissingOrMalformed = errors.New("missing or malformed access token")
)

// TokenValidator validates raw tokens. Mirrors the validator exposed by
// provider packages without importing them.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// AuthClaims is the validated token view this middleware consumes.
type AuthClaims interface {
	Subject() string
	UserID() string
	Email() string
	Role() string
	HasRole(role string) bool
}

// Config holds middleware options.
type Config struct {
	// Filter skips the middleware when it returns true.
	Filter func(router.Context) bool

	// ErrorHandler runs on extraction/validation/authorization failure.
	ErrorHandler router.ErrorHandler

	// TokenValidator is required.
	TokenValidator TokenValidator

	// ContextKey stores the claims in the router context. Default "user".
	ContextKey string

	// TokenLookup is "<source>:<name>", sources: header, cookie, query.
	// Default "header:Authorization".
	TokenLookup string

	// AuthScheme strips a scheme prefix from header tokens. Default "Bearer".
	AuthScheme string

	// RequiredRole rejects claims whose role does not match. Empty allows any.
	RequiredRole string

	// ContextEnricher propagates claims into the standard Go context after
	// validation, for handlers that call into non-router code.
	ContextEnricher func(ctx context.Context, claims AuthClaims) context.Context
}

// New builds the middleware.
func New(config ...Config) router.MiddlewareFunc {
	cfg := withDefaults(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := extractToken(ctx, cfg)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if cfg.RequiredRole != "" && !claims.HasRole(cfg.RequiredRole) {
				return cfg.ErrorHandler(ctx, fmt.Errorf(
					"access denied: role %q required", cfg.RequiredRole,
				))
			}

			ctx.Locals(cfg.ContextKey, claims)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), claims))
			}

			return ctx.Next()
		}
	}
}

func withDefaults(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: tokenware configuration: TokenValidator is required.")
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if errors.Is(err, ErrMissingOrMalformed) {
				return c.Status(router.StatusBadRequest).SendString(ErrMissingOrMalformed.Error())
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func extractToken(ctx router.Context, cfg Config) (string, error) {
	source, name, ok := strings.Cut(cfg.TokenLookup, ":")
	if !ok {
		return "", ErrMissingOrMalformed
	}

	var raw string
	switch source {
	case "header":
		raw = ctx.GetString(name, "")
		if raw != "" && cfg.AuthScheme != "" {
			scheme := cfg.AuthScheme + " "
			if len(raw) <= len(scheme) || !strings.EqualFold(raw[:len(scheme)], scheme) {
				return "", ErrMissingOrMalformed
			}
			raw = raw[len(scheme):]
		}
	case "cookie":
		raw = ctx.Cookies(name)
	case "query":
		raw = ctx.Query(name, "")
	}

	if raw == "" {
		return "", ErrMissingOrMalformed
	}

	return raw, nil
}

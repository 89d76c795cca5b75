package supabase

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/condovalle/go-auth"
)

// Config holds connection settings for the hosted backend.
type Config struct {
	// ProjectURL is the project base URL (e.g. "https://abc.supabase.co").
	ProjectURL string

	// AnonKey is the public API key sent with every request.
	AnonKey string

	// SessionSource persists the issued session between runs.
	// Default: in-memory only.
	SessionSource SessionSource

	// HTTPClient overrides the transport. Default: 10s timeout client.
	HTTPClient *http.Client

	// RefreshLeeway refreshes sessions this close to expiry during GetSession.
	// Default: 30 seconds.
	RefreshLeeway time.Duration

	// Logger defaults to the package logger.
	Logger auth.Logger

	// Clock injects a custom clock (useful for tests).
	Clock func() time.Time
}

// Validate checks required fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ProjectURL) == "" {
		return fmt.Errorf("supabase: project URL is required")
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		return fmt.Errorf("supabase: anon key is required")
	}
	return nil
}

func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.ProjectURL), "/")
}

func (c Config) authURL(path string) string {
	return c.baseURL() + "/auth/v1" + path
}

func (c Config) restURL(path string) string {
	return c.baseURL() + "/rest/v1" + path
}

// JWKSURL is the key-set endpoint for validating issued access tokens.
func (c Config) JWKSURL() string {
	return c.authURL("/.well-known/jwks.json")
}

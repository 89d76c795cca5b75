package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated account as reported by
// the remote identity service.
type Identity interface {
	ID() string
	UUID() (uuid.UUID, error)
	Email() string
}

// SessionEvent is the kind of a session-change notification emitted by the
// remote identity service.
type SessionEvent string

const (
	SessionSignedIn         SessionEvent = "SIGNED_IN"
	SessionSignedOut        SessionEvent = "SIGNED_OUT"
	SessionTokenRefreshed   SessionEvent = "TOKEN_REFRESHED"
	SessionUserUpdated      SessionEvent = "USER_UPDATED"
	SessionPasswordRecovery SessionEvent = "PASSWORD_RECOVERY"
)

// SessionChangeHandler receives session-change notifications. The session is
// nil for SessionSignedOut.
type SessionChangeHandler func(event SessionEvent, session *SessionObject)

// Subscription is a handle on a session-change registration.
type Subscription interface {
	Unsubscribe()
}

// IdentityService is the auth half of the hosted backend. All credential
// handling is delegated to it; nothing in this module stores or verifies
// passwords locally.
type IdentityService interface {
	GetSession(ctx context.Context) (*SessionObject, error)
	OnSessionChange(handler SessionChangeHandler) Subscription
	SignInWithPassword(ctx context.Context, email, password string) (*SessionObject, error)
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, attrs UserAttributes) error
}

// UserAttributes carries mutable account attributes for UpdateUser.
type UserAttributes struct {
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
}

// ProfileService reads rows from the hosted profiles table.
type ProfileService interface {
	Get(ctx context.Context, id uuid.UUID) (*Profile, error)
}

// SnapshotStore persists the last confirmed Profile under a fixed key so the
// UI can render before the remote fetch resolves. Implementations must treat
// corrupted content as absent, never as an error worth surfacing.
type SnapshotStore interface {
	Load(ctx context.Context) (*Profile, error)
	Save(ctx context.Context, profile *Profile) error
	Clear(ctx context.Context) error
}

// Config holds controller and web-layer options
type Config interface {
	GetProjectURL() string
	GetAnonKey() string
	GetStorageKey() string
	GetLoadingTimeout() time.Duration
	GetLoginRoute() string
	GetAdminRoute() string
	GetResidentRoute() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var _ Identity = &SessionObject{}

// SessionObject is the remote-issued proof of authentication. Its refresh and
// expiry lifecycle is owned entirely by the identity service; locally it is
// only ever absent, present, or corrupted.
type SessionObject struct {
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	UserID       string     `json:"user_id,omitempty"`
	UserEmail    string     `json:"user_email,omitempty"`
}

// ID implements Identity.
func (s *SessionObject) ID() string {
	return s.UserID
}

// UUID implements Identity.
func (s *SessionObject) UUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

// Email implements Identity.
func (s *SessionObject) Email() string {
	return s.UserEmail
}

// Expired reports whether the access token is past its expiry. Sessions
// without an expiry are treated as live; the remote service is the authority
// and will reject them if not.
func (s *SessionObject) Expired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

func (s SessionObject) String() string {
	expiresAt := "<nil>"
	if s.ExpiresAt != nil {
		expiresAt = s.ExpiresAt.Format(time.RFC1123)
	}
	return fmt.Sprintf("user=%s email=%s exp=%s", s.UserID, s.UserEmail, expiresAt)
}

// DecodeStoredSession deserializes a persisted session blob. Web storage in
// the wild contains the literal text "undefined" and half-written JSON;
// anything that does not decode cleanly is reported as ErrSessionCorrupted so
// the caller can scrub it, never as a panic.
func DecodeStoredSession(raw []byte) (*SessionObject, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if bytes.Equal(raw, []byte("undefined")) {
		return nil, ErrSessionCorrupted.WithMetadata(map[string]any{
			"reason": "literal undefined",
		})
	}

	session := &SessionObject{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "stored session is corrupted").
			WithTextCode(textCodeSessionCorrupted)
	}

	if session.AccessToken == "" {
		return nil, ErrSessionCorrupted.WithMetadata(map[string]any{
			"reason": "missing access token",
		})
	}

	if err := session.hydrateIdentity(); err != nil {
		return nil, err
	}

	return session, nil
}

// hydrateIdentity fills UserID and UserEmail from the access token claims
// when the stored blob predates those fields. The token is decoded without
// signature verification; authenticity is the remote service's problem, this
// only needs the subject for the profile lookup.
func (s *SessionObject) hydrateIdentity() error {
	if s.UserID != "" {
		return nil
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(s.AccessToken, claims); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "stored session token is malformed").
			WithTextCode(textCodeSessionCorrupted)
	}

	if sub, err := claims.GetSubject(); err == nil {
		s.UserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		s.UserEmail = email
	}

	if s.UserID == "" {
		return ErrSessionCorrupted.WithMetadata(map[string]any{
			"reason": "token has no subject",
		})
	}

	return nil
}

package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeSessionCorrupted   = "SESSION_CORRUPTED"
	textCodeProfileMissing     = "PROFILE_NOT_PROVISIONED"
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeControllerClosed   = "CONTROLLER_CLOSED"
)

// ErrSessionCorrupted is returned when a stored session cannot be
// deserialized. The controller treats it as "no session" and forces a remote
// sign-out so the broken blob cannot keep resurfacing.
var ErrSessionCorrupted = goerrors.New("stored session is corrupted", goerrors.CategoryAuth).
	WithTextCode(textCodeSessionCorrupted).
	WithCode(goerrors.CodeUnauthorized)

// ErrProfileNotProvisioned is returned when an authenticated account has no
// row in the profiles table. Policy: such accounts are signed out rather than
// left reachable by role-gated routes with a nil profile.
var ErrProfileNotProvisioned = goerrors.New("no profile exists for this account", goerrors.CategoryNotFound).
	WithTextCode(textCodeProfileMissing).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials is surfaced to sign-in callers; it never mutates
// controller state.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrControllerClosed is returned by operations invoked after Close.
var ErrControllerClosed = goerrors.New("session controller is closed", goerrors.CategoryOperation).
	WithTextCode(textCodeControllerClosed)

// IsSessionCorrupted checks for the stored-session corruption error.
func IsSessionCorrupted(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == textCodeSessionCorrupted
	}
	return strings.Contains(err.Error(), "corrupt")
}

// IsInvalidCredentials checks for a rejected email/password pair.
func IsInvalidCredentials(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == textCodeInvalidCredentials
	}
	return false
}

// IsProfileMissing checks whether an error means the profiles lookup found no
// row for the user.
func IsProfileMissing(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == textCodeProfileMissing || rich.Category == goerrors.CategoryNotFound
	}
	return goerrors.IsNotFound(err)
}

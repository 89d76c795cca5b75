package auth_test

import (
	"testing"

	auth "github.com/condovalle/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestIsSessionCorrupted(t *testing.T) {
	assert.False(t, auth.IsSessionCorrupted(nil))
	assert.True(t, auth.IsSessionCorrupted(auth.ErrSessionCorrupted))
	assert.True(t, auth.IsSessionCorrupted(
		auth.ErrSessionCorrupted.WithMetadata(map[string]any{"reason": "test"}),
	))
	assert.False(t, auth.IsSessionCorrupted(assert.AnError))
}

func TestIsProfileMissing(t *testing.T) {
	assert.False(t, auth.IsProfileMissing(nil))
	assert.True(t, auth.IsProfileMissing(auth.ErrProfileNotProvisioned))

	wrapped := goerrors.Wrap(auth.ErrProfileNotProvisioned, goerrors.CategoryNotFound, "lookup failed")
	assert.True(t, auth.IsProfileMissing(wrapped))

	assert.False(t, auth.IsProfileMissing(auth.ErrInvalidCredentials))
}

func TestIsInvalidCredentials(t *testing.T) {
	assert.False(t, auth.IsInvalidCredentials(nil))
	assert.True(t, auth.IsInvalidCredentials(auth.ErrInvalidCredentials))
	assert.True(t, auth.IsInvalidCredentials(
		auth.ErrInvalidCredentials.WithMetadata(map[string]any{"detail": "bad password"}),
	))
	assert.False(t, auth.IsInvalidCredentials(auth.ErrSessionCorrupted))
}

func TestErrorCategories(t *testing.T) {
	assert.Equal(t, goerrors.CategoryAuth, auth.ErrSessionCorrupted.Category)
	assert.Equal(t, goerrors.CategoryNotFound, auth.ErrProfileNotProvisioned.Category)
	assert.Equal(t, goerrors.CategoryAuth, auth.ErrInvalidCredentials.Category)
}

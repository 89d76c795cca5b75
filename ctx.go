package auth

import "context"

var identityCtxKey = &contextKey{"identity"}
var profileCtxKey = &contextKey{"profile"}

type contextKey struct {
	name string
}

// WithIdentityContext sets the Identity in the given context
func WithIdentityContext(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(Identity)
	return raw, ok
}

// WithProfileContext sets the Profile in the given context
func WithProfileContext(ctx context.Context, profile *Profile) context.Context {
	return context.WithValue(ctx, profileCtxKey, profile)
}

// ProfileFromContext finds the profile from the context.
func ProfileFromContext(ctx context.Context) (*Profile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*Profile)
	return raw, ok
}

// HasRole is a convenience check against the profile in the context.
func HasRole(ctx context.Context, role Role) bool {
	profile, ok := ProfileFromContext(ctx)
	if !ok {
		return false
	}
	return profile.HasRole(role)
}

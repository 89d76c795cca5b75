package auth

import (
	"maps"

	"github.com/goliatone/go-router"
)

// TemplateUserKey is the view context key the web layer uses for the
// signed-in resident's profile.
var TemplateUserKey = "current_user"

// TemplateHelpers returns helper functions and data for the view engine's
// global context.
//
// In templates:
//
//	{% if current_user %}
//	{% if has_role(current_user, "admin") %}
//	{{ roles.resident }}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticated,
		"has_role":         hasRole,
		"is_admin":         isAdmin,

		// Role constants for easy template access
		"roles": map[string]string{
			"admin":    string(RoleAdmin),
			"resident": string(RoleResident),
		},
	}
}

// TemplateHelpersWithProfile returns template helpers with a specific profile
// set as current_user. Useful when the caller already resolved the session.
func TemplateHelpersWithProfile(profile *Profile) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateUserKey] = profile
	return helpers
}

// TemplateHelpersWithRouter returns template helpers with user data extracted
// from the router context, where the token middleware stores its claims.
func TemplateHelpersWithRouter(ctx router.Context, userKey string) map[string]any {
	if userKey == "" {
		userKey = TemplateUserKey
	}

	helpers := TemplateHelpers()

	if user := ctx.Locals(userKey); user != nil {
		helpers[TemplateUserKey] = user
	}

	return helpers
}

// MergeTemplateData layers auth helpers and the current user under the
// handler's own view context. Handler data wins on key collisions.
func MergeTemplateData(ctx router.Context, data router.ViewContext) router.ViewContext {
	out := router.ViewContext{}
	maps.Copy(out, TemplateHelpersWithRouter(ctx, "user"))
	maps.Copy(out, data)
	return out
}

// isAuthenticated checks if the provided user object is usable
func isAuthenticated(user any) bool {
	if user == nil {
		return false
	}

	switch u := user.(type) {
	case *Profile:
		return u != nil
	case Profile:
		return true
	case interface{ UserID() string }:
		return u.UserID() != ""
	case map[string]any:
		// Handle JSON-converted user objects
		return len(u) > 0
	default:
		return false
	}
}

// hasRole checks if the user holds the given role
func hasRole(user any, role string) bool {
	target := Role(role)

	switch u := user.(type) {
	case *Profile:
		return u.HasRole(target)
	case Profile:
		return u.Role == target
	case interface{ HasRole(role string) bool }:
		return u.HasRole(role)
	case map[string]any:
		// Handle JSON-converted user objects
		if raw, exists := u["role"]; exists {
			if s, ok := raw.(string); ok {
				return Role(s) == target
			}
		}
		return false
	default:
		return false
	}
}

// isAdmin is sugar over hasRole for the common guard
func isAdmin(user any) bool {
	return hasRole(user, string(RoleAdmin))
}

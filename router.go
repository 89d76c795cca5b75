package auth

// RouteDecision is what the web layer should do with a request given the
// current session state. Fully derived; re-derivable on every render.
type RouteDecision string

const (
	// DecisionWait renders a neutral waiting screen. Used while the initial
	// restore runs and while a role-gated area waits for the confirmed
	// profile.
	DecisionWait RouteDecision = "wait"
	// DecisionLogin sends the visitor to the unauthenticated entry screen.
	DecisionLogin RouteDecision = "login"
	// DecisionAllow lets the requested screen render.
	DecisionAllow RouteDecision = "allow"
)

// RouteGuard describes what a screen requires. The zero value only requires
// an authenticated user.
type RouteGuard struct {
	// RequireRole gates the screen on a profile role. Empty means any
	// authenticated user.
	RequireRole Role
}

// ResolveRoute decides reachability from the controller state alone.
//
// A cached, unconfirmed profile is good enough to render optimistic chrome,
// but it never satisfies a role guard: gating waits for the remote fetch
// rather than defaulting to the permissive path.
func ResolveRoute(s State, guard RouteGuard) RouteDecision {
	if s.Loading && s.Identity == nil {
		return DecisionWait
	}

	if s.Identity == nil {
		return DecisionLogin
	}

	if guard.RequireRole == "" {
		return DecisionAllow
	}

	if s.Profile == nil || !s.Confirmed {
		return DecisionWait
	}

	if s.Profile.Role != guard.RequireRole {
		return DecisionLogin
	}

	return DecisionAllow
}

// RedirectTarget picks the landing area after sign-in or password change.
func RedirectTarget(profile *Profile, cfg Config) string {
	if profile == nil {
		return cfg.GetLoginRoute()
	}
	if profile.IsAdmin() {
		return cfg.GetAdminRoute()
	}
	return cfg.GetResidentRoute()
}

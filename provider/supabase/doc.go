// Package supabase implements the remote identity and data service contracts
// (auth.IdentityService, auth.ProfileService) against a hosted Supabase-style
// backend: a GoTrue-compatible auth API and a PostgREST data API.
//
// The package owns the session's persisted form (SessionSource) and the
// session-change event feed the controller subscribes to. Accounts, sessions,
// the profiles table, and object storage are all remote; nothing here is
// authoritative beyond a cached copy of the issued tokens.
package supabase

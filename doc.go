// Package auth is the session layer of the Condominio del Valle resident
// dashboard. Identity, the profiles table, and file storage live in a hosted
// backend (GoTrue-compatible auth API plus a PostgREST data API); this
// package owns everything the application needs on top of it.
//
// Session lifecycle:
//   - Controller bootstraps once per process, restores or establishes a
//     session against the remote service, fetches the matching Profile, and
//     reacts to the service's session-change events for the rest of its
//     lifetime. It exposes a stable State (identity, profile, loading) that
//     the web layer re-derives screens from.
//   - A lifecycle state machine (uninitialized, restoring, authenticated,
//     unauthenticated, signing-out) centralizes the allowed transitions so a
//     late event or a slow fetch can never leave the UI in a made-up state.
//
// Snapshots:
//   - The last confirmed Profile is cached locally (see repository/) so the
//     dashboard can render without waiting on a network round trip. The
//     snapshot is a guess, never an authority: role gating ignores it until
//     the remote fetch confirms.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing sign-in,
//     sign-out, forced sign-out, and password update events. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking authentication.
package auth

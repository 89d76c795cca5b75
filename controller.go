package auth

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultLoadingTimeout bounds how long the UI may stay in the loading state
// when the remote service hangs or its first event never fires.
var DefaultLoadingTimeout = 5 * time.Second

// State is the externally observable controller state. Every field is only
// ever mutated by the controller; consumers re-derive their screens from it
// on every change.
type State struct {
	Identity Identity
	Profile  *Profile
	// Confirmed is true once Profile came from the remote fetch rather than
	// the local snapshot. Role gating must not trust an unconfirmed profile.
	Confirmed bool
	Loading   bool
	Phase     ControllerState
}

// StateListener receives a state snapshot after every change.
type StateListener func(State)

// Option customizes controller construction.
type Option func(*Controller)

// WithSnapshotStore sets the local persisted profile cache.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(c *Controller) {
		if store != nil {
			c.snapshots = store
		}
	}
}

// WithLogger overrides the controller logger.
func WithLogger(logger Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithActivitySink configures an ActivitySink for auth events.
func WithActivitySink(sink ActivitySink) Option {
	return func(c *Controller) {
		c.activity = normalizeActivitySink(sink)
	}
}

// WithLoadingTimeout overrides the safety-net timeout.
func WithLoadingTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.now = clock
		}
	}
}

// Controller bootstraps the session on startup, keeps it in sync with the
// remote identity service, and is the single writer of the exposed State.
//
// Bootstrap and the service's event feed race on the same sign-in; a
// generation counter guarantees at most one profile fetch per logical sign-in
// and keeps a stale completion from overwriting a newer one. The final state
// converges regardless of which of the two finishes last.
type Controller struct {
	mu        sync.Mutex
	svc       IdentityService
	profiles  ProfileService
	snapshots SnapshotStore
	machine   *lifecycle
	logger    Logger
	activity  ActivitySink
	timeout   time.Duration
	now       func() time.Time

	identity  Identity
	profile   *Profile
	confirmed bool
	loading   bool

	// generation identifies the logical sign-in; it bumps on every sign-out.
	// fetchedGen and fetchedFor latch the generation and user id a profile
	// fetch was started for.
	generation uint64
	fetchedGen uint64
	fetchedFor string

	bootstrapped bool
	closed       bool
	sub          Subscription
	timer        *time.Timer

	listenerSeq int
	listeners   map[int]StateListener
}

// New creates a session controller on top of the remote identity and profile
// services. Call Bootstrap exactly once, and Close on teardown.
func New(svc IdentityService, profiles ProfileService, opts ...Option) *Controller {
	c := &Controller{
		svc:        svc,
		profiles:   profiles,
		snapshots:  noopSnapshotStore{},
		logger:     defLogger{},
		activity:   noopActivitySink{},
		timeout:    DefaultLoadingTimeout,
		now:        time.Now,
		generation: 1,
		listeners:  map[int]StateListener{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.machine = newLifecycle(
		WithLifecycleActivitySink(c.activity),
		WithLifecycleLogger(c.logger),
		WithLifecycleClock(c.now),
	)

	return c
}

// State returns a snapshot of the observable state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Loading reports whether the initial restore is still in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// OnStateChange registers a listener invoked with a snapshot after every
// state change. The returned subscription removes it.
func (c *Controller) OnStateChange(fn StateListener) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listenerSeq++
	id := c.listenerSeq
	c.listeners[id] = fn
	return listenerSubscription{controller: c, id: id}
}

type listenerSubscription struct {
	controller *Controller
	id         int
}

func (s listenerSubscription) Unsubscribe() {
	s.controller.mu.Lock()
	defer s.controller.mu.Unlock()
	delete(s.controller.listeners, s.id)
}

// Bootstrap runs the one-time session restore: read the stored session,
// adopt it if present, and settle in a terminal state. It blocks until the
// restore attempt resolves; the safety-net timer bounds how long the exposed
// loading flag can stay true even if the remote service never answers.
func (c *Controller) Bootstrap(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.bootstrapped {
		c.mu.Unlock()
		return
	}
	c.bootstrapped = true
	c.loading = true
	if err := c.machine.Transition(ctx, StateRestoring, ""); err != nil {
		c.logger.Error("bootstrap transition error: %v", err)
	}

	// Optimistic render: the last confirmed profile, if any, fills the UI
	// while the remote fetch runs. It is a guess until confirmed.
	if cached, err := c.snapshots.Load(ctx); err == nil && cached != nil {
		c.profile = cached
		c.confirmed = false
	}

	c.timer = time.AfterFunc(c.timeout, c.loadingSafetyNet)
	c.mu.Unlock()

	sub := c.svc.OnSessionChange(c.HandleSessionChange)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	c.sub = sub
	c.mu.Unlock()
	c.notify()

	defer c.endLoading()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("bootstrap panic recovered: %v", r)
		}
	}()

	session, err := c.svc.GetSession(ctx)
	if err != nil {
		// A session we cannot read is a session we cannot trust. Invalidate
		// it remotely so the broken blob does not resurface on next start.
		c.logger.Warn("session restore failed: %v", err)
		c.forceSignOut(ctx, "session restore failed", err)
		return
	}

	if session == nil {
		c.becomeUnauthenticated(ctx, true)
		return
	}

	c.recordActivity(ctx, ActivityEventSessionRestored, ActorRef{Type: "system"}, session.ID(), nil)
	c.adoptSession(ctx, session)
}

// HandleSessionChange reacts to the remote service's session events. It is
// safe to invoke at any time after Bootstrap starts, including concurrently
// with it, and is idempotent for SIGNED_OUT.
func (c *Controller) HandleSessionChange(event SessionEvent, session *SessionObject) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session change handler panic recovered: %v", r)
		}
	}()

	if event == SessionSignedOut || session == nil {
		if event == SessionSignedOut {
			c.becomeUnauthenticated(ctx, true)
		}
		return
	}

	c.adoptSession(ctx, session)
	c.endLoading()
}

// adoptSession sets the identity from a live session and fetches the profile
// unless one was already fetched for this logical sign-in.
func (c *Controller) adoptSession(ctx context.Context, session *SessionObject) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	gen := c.generation
	c.identity = session

	if c.fetchedGen == gen && c.fetchedFor == session.ID() {
		// bootstrap and the first SIGNED_IN event race on the same sign-in;
		// whoever got here first owns the fetch
		c.mu.Unlock()
		c.notify()
		return
	}
	if c.fetchedGen == gen {
		// a second login replaced the session without a sign-out in between;
		// the profile on hand belongs to the previous user
		c.profile = nil
		c.confirmed = false
	}
	c.fetchedGen = gen
	c.fetchedFor = session.ID()
	c.mu.Unlock()
	c.notify()

	profile, err := c.fetchProfile(ctx, session)

	c.mu.Lock()
	if c.closed || c.generation != gen || c.fetchedFor != session.ID() {
		// signed out while the fetch was in flight; the result is stale
		c.mu.Unlock()
		return
	}

	if err != nil || profile == nil {
		c.mu.Unlock()
		c.logger.Warn("profile unavailable for %s, signing out: %v", session.ID(), err)
		c.forceSignOut(ctx, "profile not provisioned", err)
		return
	}

	c.profile = profile
	c.confirmed = true
	if err := c.machine.Transition(ctx, StateAuthenticated, session.ID()); err != nil {
		c.logger.Error("authenticated transition error: %v", err)
	}
	c.loading = false
	c.stopTimerLocked()
	c.mu.Unlock()

	if err := c.snapshots.Save(ctx, profile); err != nil {
		c.logger.Warn("snapshot save failed: %v", err)
	}
	c.notify()
}

// fetchProfile is the single-row lookup by user id. It never panics past its
// boundary; failures translate into the caller's degrade policy.
func (c *Controller) fetchProfile(ctx context.Context, identity Identity) (profile *Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("profile fetch panic recovered: %v", r)
			profile, err = nil, ErrProfileNotProvisioned
		}
	}()

	uid, err := identity.UUID()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "session carries an invalid user id")
	}

	return c.profiles.Get(ctx, uid)
}

// SignIn delegates credential verification to the remote service. It mutates
// no local state: the subsequent session-change event is the sole path that
// populates identity and profile, so callers must not assume either is set
// when this returns.
func (c *Controller) SignIn(ctx context.Context, email, password string) (*SessionObject, error) {
	if c.isClosed() {
		return nil, ErrControllerClosed
	}

	session, err := c.svc.SignInWithPassword(ctx, email, password)
	if err != nil {
		c.recordActivity(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, err
	}

	c.recordActivity(ctx, ActivityEventLoginSuccess, ActorRef{ID: session.ID(), Type: "user"}, session.ID(), nil)
	return session, nil
}

// SignOut clears the snapshot eagerly, invalidates the session remotely, and
// clears in-memory state. The remote call failing is tolerated: local state
// still ends cleared and the caller sees no error.
func (c *Controller) SignOut(ctx context.Context) error {
	if c.isClosed() {
		return ErrControllerClosed
	}

	// eager local clear so a failed remote call cannot resurrect the profile
	if err := c.snapshots.Clear(ctx); err != nil {
		c.logger.Warn("snapshot clear failed: %v", err)
	}

	c.mu.Lock()
	userID := ""
	if c.identity != nil {
		userID = c.identity.ID()
	}
	if err := c.machine.Transition(ctx, StateSigningOut, userID); err != nil {
		c.logger.Debug("sign out transition skipped: %v", err)
	}
	c.mu.Unlock()
	c.notify()

	if err := c.svc.SignOut(ctx); err != nil {
		c.logger.Warn("remote sign out failed: %v", err)
	}

	c.becomeUnauthenticated(ctx, true)
	c.recordActivity(ctx, ActivityEventSignOut, ActorRef{ID: userID, Type: "user"}, userID, nil)
	return nil
}

// UpdatePassword delegates to the remote service. The profile is not touched;
// a password change mutates the session credential, not the profile row.
func (c *Controller) UpdatePassword(ctx context.Context, newPassword string) error {
	if c.isClosed() {
		return ErrControllerClosed
	}

	if err := c.svc.UpdateUser(ctx, UserAttributes{Password: newPassword}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "failed to update password")
	}

	c.mu.Lock()
	userID := ""
	if c.identity != nil {
		userID = c.identity.ID()
	}
	c.mu.Unlock()

	c.recordActivity(ctx, ActivityEventPasswordUpdated, ActorRef{ID: userID, Type: "user"}, userID, nil)
	return nil
}

// VerifyRecoverySession checks that a recovery link established a usable
// session. Password-reset screens gate on this before offering the form.
func (c *Controller) VerifyRecoverySession(ctx context.Context) (*SessionObject, error) {
	session, err := c.svc.GetSession(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "recovery link is invalid or expired").
			WithCode(goerrors.CodeUnauthorized)
	}
	if session == nil {
		return nil, goerrors.New("recovery link is invalid or expired", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}
	return session, nil
}

// Close stops the controller: the event subscription is dropped, the safety
// timer is stopped, and results of in-flight operations become no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	sub := c.sub
	c.sub = nil
	c.listeners = map[int]StateListener{}
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// forceSignOut invalidates the remote session and degrades to the
// unauthenticated state. Used for corrupted sessions and unprovisioned
// accounts; never for caller errors.
func (c *Controller) forceSignOut(ctx context.Context, reason string, cause error) {
	c.mu.Lock()
	userID := ""
	if c.identity != nil {
		userID = c.identity.ID()
	}
	if err := c.machine.Transition(ctx, StateSigningOut, userID); err != nil {
		c.logger.Debug("forced sign out transition skipped: %v", err)
	}
	c.mu.Unlock()

	meta := map[string]any{"reason": reason}
	if cause != nil {
		meta["error"] = cause.Error()
	}
	c.recordActivity(ctx, ActivityEventForcedSignOut, ActorRef{Type: "system"}, userID, meta)

	if err := c.svc.SignOut(ctx); err != nil {
		c.logger.Warn("remote sign out failed: %v", err)
	}

	c.becomeUnauthenticated(ctx, true)
}

// becomeUnauthenticated is the single path into the safe terminal state. It
// bumps the sign-in generation so any in-flight profile fetch result is
// discarded on arrival.
func (c *Controller) becomeUnauthenticated(ctx context.Context, clearSnapshot bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.generation++
	c.fetchedFor = ""
	c.identity = nil
	c.profile = nil
	c.confirmed = false
	c.loading = false
	c.stopTimerLocked()
	if err := c.machine.Transition(ctx, StateUnauthenticated, ""); err != nil {
		c.logger.Debug("unauthenticated transition skipped: %v", err)
	}
	c.mu.Unlock()

	if clearSnapshot {
		if err := c.snapshots.Clear(ctx); err != nil {
			c.logger.Warn("snapshot clear failed: %v", err)
		}
	}
	c.notify()
}

// endLoading clears the loading flag once a restore attempt resolves,
// whatever the outcome. The finally-equivalent of the bootstrap sequence.
func (c *Controller) endLoading() {
	c.mu.Lock()
	if c.closed || !c.loading {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.stopTimerLocked()
	c.mu.Unlock()
	c.notify()
}

// loadingSafetyNet fires when the remote service never resolved the restore.
// The UI must not hang: loading goes false and, if nothing was established,
// the state degrades to unauthenticated. A slow success arriving later still
// converges through adoptSession.
func (c *Controller) loadingSafetyNet() {
	ctx := context.Background()

	c.mu.Lock()
	if c.closed || !c.loading {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.logger.Warn("loading safety net fired after %s", c.timeout)
	if c.machine.Current() == StateRestoring && c.identity == nil {
		if err := c.machine.Transition(ctx, StateUnauthenticated, ""); err != nil {
			c.logger.Debug("safety net transition skipped: %v", err)
		}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) stateLocked() State {
	return State{
		Identity:  c.identity,
		Profile:   c.profile.Clone(),
		Confirmed: c.confirmed,
		Loading:   c.loading,
		Phase:     c.machine.Current(),
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	state := c.stateLocked()
	listeners := make([]StateListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (c *Controller) recordActivity(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: c.now(),
	}
	if err := c.activity.Record(ctx, event); err != nil {
		c.logger.Warn("activity sink error: %v", err)
	}
}

type noopSnapshotStore struct{}

func (noopSnapshotStore) Load(context.Context) (*Profile, error) { return nil, nil }
func (noopSnapshotStore) Save(context.Context, *Profile) error   { return nil }
func (noopSnapshotStore) Clear(context.Context) error            { return nil }

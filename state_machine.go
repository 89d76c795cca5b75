package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_SESSION_STATE_TRANSITION"

// ErrInvalidTransition is returned when a requested lifecycle change is not
// allowed from the current state.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ControllerState is a phase of the session lifecycle.
type ControllerState string

const (
	// StateUninitialized is the zero state before Bootstrap runs.
	StateUninitialized ControllerState = "uninitialized"
	// StateRestoring covers the one-time bootstrap: reading the stored
	// session and confirming the profile. Loading is true exactly here.
	StateRestoring ControllerState = "restoring"
	// StateAuthenticated means a live session with a confirmed identity.
	StateAuthenticated ControllerState = "authenticated"
	// StateUnauthenticated is the safe terminal for every failure path.
	StateUnauthenticated ControllerState = "unauthenticated"
	// StateSigningOut is the transient while the remote invalidation runs.
	StateSigningOut ControllerState = "signing_out"
)

// TransitionHook is executed after a successful lifecycle transition.
type TransitionHook func(ctx context.Context, from, to ControllerState)

// LifecycleOption customizes lifecycle construction.
type LifecycleOption func(*lifecycle)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *lifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the sink used to publish state changes.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *lifecycle) {
		l.activity = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the logger used for sink failures.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTransitionHook adds a hook run after every successful transition.
func WithTransitionHook(hook TransitionHook) LifecycleOption {
	return func(l *lifecycle) {
		if hook != nil {
			l.hooks = append(l.hooks, hook)
		}
	}
}

// lifecycle owns the transition graph for the session controller. Callers do
// not drive it directly; the Controller does, under its own lock.
type lifecycle struct {
	state       ControllerState
	transitions map[ControllerState]map[ControllerState]struct{}
	hooks       []TransitionHook
	now         func() time.Time
	activity    ActivitySink
	logger      Logger
}

func newLifecycle(opts ...LifecycleOption) *lifecycle {
	l := &lifecycle{
		state: StateUninitialized,
		transitions: map[ControllerState]map[ControllerState]struct{}{
			StateUninitialized: {
				StateRestoring:       {},
				StateUnauthenticated: {},
			},
			StateRestoring: {
				StateAuthenticated:   {},
				StateUnauthenticated: {},
				StateSigningOut:      {},
			},
			StateAuthenticated: {
				StateSigningOut:      {},
				StateUnauthenticated: {},
			},
			StateSigningOut: {
				StateUnauthenticated: {},
			},
			StateUnauthenticated: {
				StateAuthenticated: {},
				StateSigningOut:    {},
			},
		},
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Current returns the current lifecycle state.
func (l *lifecycle) Current() ControllerState {
	return l.state
}

// Transition moves to target, recording the change. Same-state transitions
// are no-ops so repeated SIGNED_OUT events stay idempotent.
func (l *lifecycle) Transition(ctx context.Context, target ControllerState, userID string) error {
	from := l.state
	if target == "" {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target state is empty",
		})
	}

	if from == target {
		return nil
	}

	if !l.canTransition(from, target) {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	l.state = target

	for _, hook := range l.hooks {
		hook(ctx, from, target)
	}

	event := ActivityEvent{
		EventType:  ActivityEventStateChanged,
		Actor:      ActorRef{Type: "system"},
		UserID:     userID,
		FromState:  from,
		ToState:    target,
		OccurredAt: l.now(),
	}
	if err := l.activity.Record(ctx, event); err != nil {
		l.logger.Warn("lifecycle activity sink error: %v", err)
	}

	return nil
}

func (l *lifecycle) canTransition(from, to ControllerState) bool {
	if allowed, ok := l.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

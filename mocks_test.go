package auth_test

import (
	"context"
	"sync"
	"time"

	auth "github.com/condovalle/go-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockIdentityService implements auth.IdentityService. Session-change
// subscriptions are handled directly so tests can emit events through it.
type MockIdentityService struct {
	mock.Mock

	mu       sync.Mutex
	seq      int
	handlers map[int]auth.SessionChangeHandler
}

func (m *MockIdentityService) GetSession(ctx context.Context) (*auth.SessionObject, error) {
	args := m.Called(ctx)
	var session *auth.SessionObject
	if v := args.Get(0); v != nil {
		session = v.(*auth.SessionObject)
	}
	return session, args.Error(1)
}

func (m *MockIdentityService) SignInWithPassword(ctx context.Context, email, password string) (*auth.SessionObject, error) {
	args := m.Called(ctx, email, password)
	var session *auth.SessionObject
	if v := args.Get(0); v != nil {
		session = v.(*auth.SessionObject)
	}
	return session, args.Error(1)
}

func (m *MockIdentityService) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityService) UpdateUser(ctx context.Context, attrs auth.UserAttributes) error {
	args := m.Called(ctx, attrs)
	return args.Error(0)
}

func (m *MockIdentityService) OnSessionChange(handler auth.SessionChangeHandler) auth.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = map[int]auth.SessionChangeHandler{}
	}
	m.seq++
	id := m.seq
	m.handlers[id] = handler
	return &mockSubscription{svc: m, id: id}
}

// Emit delivers a session event to every live subscriber, synchronously on
// the calling goroutine, the way the real provider does.
func (m *MockIdentityService) Emit(event auth.SessionEvent, session *auth.SessionObject) {
	m.mu.Lock()
	handlers := make([]auth.SessionChangeHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(event, session)
	}
}

func (m *MockIdentityService) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

type mockSubscription struct {
	svc *MockIdentityService
	id  int
}

func (s *mockSubscription) Unsubscribe() {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	delete(s.svc.handlers, s.id)
}

// MockProfiles implements auth.ProfileService
type MockProfiles struct {
	mock.Mock
}

func (m *MockProfiles) Get(ctx context.Context, id uuid.UUID) (*auth.Profile, error) {
	args := m.Called(ctx, id)
	var profile *auth.Profile
	if v := args.Get(0); v != nil {
		profile = v.(*auth.Profile)
	}
	return profile, args.Error(1)
}

// MemorySnapshots is an in-memory auth.SnapshotStore that counts clears so
// tests can assert the eager-clear behavior.
type MemorySnapshots struct {
	mu      sync.Mutex
	profile *auth.Profile
	Saves   int
	Clears  int
}

func (s *MemorySnapshots) Load(ctx context.Context) (*auth.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone(), nil
}

func (s *MemorySnapshots) Save(ctx context.Context, profile *auth.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile.Clone()
	s.Saves++
	return nil
}

func (s *MemorySnapshots) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = nil
	s.Clears++
	return nil
}

func (s *MemorySnapshots) Current() *auth.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

// RecordingSink collects activity events.
type RecordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *RecordingSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *RecordingSink) Events() []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *RecordingSink) Has(eventType auth.ActivityEventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

func testSession(id uuid.UUID, email string) *auth.SessionObject {
	expires := time.Now().Add(time.Hour)
	return &auth.SessionObject{
		AccessToken:  "token-" + id.String(),
		RefreshToken: "refresh-" + id.String(),
		TokenType:    "bearer",
		ExpiresAt:    &expires,
		UserID:       id.String(),
		UserEmail:    email,
	}
}

func testProfile(id uuid.UUID, role auth.Role) *auth.Profile {
	return &auth.Profile{
		ID:           id,
		Role:         role,
		HouseNumber:  12,
		ResidentName: "Casa Doce",
		Email:        "resident@condovalle.test",
	}
}

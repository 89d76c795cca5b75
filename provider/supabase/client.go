package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/condovalle/go-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Client talks to the hosted auth API and owns the session-change event feed.
// It implements auth.IdentityService.
type Client struct {
	cfg    Config
	http   *http.Client
	source SessionSource
	logger auth.Logger
	now    func() time.Time
	leeway time.Duration

	state   sync.Mutex
	current *auth.SessionObject
	subSeq  int
	subs    map[int]auth.SessionChangeHandler
}

var _ auth.IdentityService = (*Client)(nil)

// New creates a client for the configured project.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	source := cfg.SessionSource
	if source == nil {
		source = &MemorySessionSource{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = defPackageLogger{}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	leeway := cfg.RefreshLeeway
	if leeway == 0 {
		leeway = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		source: source,
		logger: logger,
		now:    clock,
		leeway: leeway,
		subs:   map[int]auth.SessionChangeHandler{},
	}, nil
}

// GetSession restores the persisted session, refreshing it when it is at or
// near expiry. A blob that does not decode comes back as a corruption error;
// the caller decides the sign-out policy.
func (c *Client) GetSession(ctx context.Context) (*auth.SessionObject, error) {
	c.state.Lock()
	session := c.current
	c.state.Unlock()

	if session == nil {
		raw, err := c.source.Load()
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "failed to read stored session")
		}
		session, err = auth.DecodeStoredSession(raw)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, nil
		}
		c.state.Lock()
		c.current = session
		c.state.Unlock()
	}

	if session.Expired(c.now().Add(c.leeway)) {
		refreshed, err := c.refresh(ctx, session)
		if err != nil {
			return nil, err
		}
		return refreshed, nil
	}

	return session, nil
}

// OnSessionChange registers a handler on the event feed.
func (c *Client) OnSessionChange(handler auth.SessionChangeHandler) auth.Subscription {
	c.state.Lock()
	defer c.state.Unlock()
	c.subSeq++
	id := c.subSeq
	c.subs[id] = handler
	return clientSubscription{client: c, id: id}
}

type clientSubscription struct {
	client *Client
	id     int
}

func (s clientSubscription) Unsubscribe() {
	s.client.state.Lock()
	defer s.client.state.Unlock()
	delete(s.client.subs, s.id)
}

// SignInWithPassword exchanges credentials for a session. On success the
// session is persisted and a SIGNED_IN event fires.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.SessionObject, error) {
	payload := map[string]string{"email": email, "password": password}

	var token tokenResponse
	status, err := c.do(ctx, http.MethodPost, c.cfg.authURL("/token?grant_type=password"), "", payload, &token)
	if err != nil {
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return nil, auth.ErrInvalidCredentials.WithMetadata(map[string]any{
				"detail": err.Error(),
			})
		}
		return nil, err
	}

	session := token.toSession(c.now())
	c.adopt(session, auth.SessionSignedIn)
	return session, nil
}

// SignUp registers a new account with optional user metadata. The created
// account does not replace the caller's session; provisioning flows create
// accounts for other people.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (uuid.UUID, error) {
	payload := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}

	var out struct {
		ID   uuid.UUID `json:"id"`
		User *struct {
			ID uuid.UUID `json:"id"`
		} `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodPost, c.cfg.authURL("/signup"), "", payload, &out); err != nil {
		return uuid.Nil, err
	}

	// the response nests the user when a session is issued alongside it
	if out.User != nil {
		return out.User.ID, nil
	}
	return out.ID, nil
}

// SignOut invalidates the session remotely and always clears the local copy,
// firing SIGNED_OUT even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.state.Lock()
	session := c.current
	c.state.Unlock()

	var remoteErr error
	if session != nil {
		if _, err := c.do(ctx, http.MethodPost, c.cfg.authURL("/logout"), session.AccessToken, nil, nil); err != nil {
			c.logger.Warn("remote logout failed: %v", err)
			remoteErr = err
		}
	}

	c.state.Lock()
	c.current = nil
	c.state.Unlock()

	if err := c.source.Clear(); err != nil {
		c.logger.Warn("failed to clear stored session: %v", err)
	}

	c.emit(auth.SessionSignedOut, nil)
	return remoteErr
}

// UpdateUser mutates account attributes (password, email) for the current
// session's user.
func (c *Client) UpdateUser(ctx context.Context, attrs auth.UserAttributes) error {
	c.state.Lock()
	session := c.current
	c.state.Unlock()

	if session == nil {
		return goerrors.New("no active session", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	if _, err := c.do(ctx, http.MethodPut, c.cfg.authURL("/user"), session.AccessToken, attrs, nil); err != nil {
		return err
	}

	c.emit(auth.SessionUserUpdated, session)
	return nil
}

// Profiles returns a ProfileService that reads the profiles table with the
// current session's token.
func (c *Client) Profiles() *Profiles {
	return &Profiles{client: c}
}

// CurrentSession returns the in-memory session, if any.
func (c *Client) CurrentSession() *auth.SessionObject {
	c.state.Lock()
	defer c.state.Unlock()
	return c.current
}

// AdoptSession installs an externally established session (e.g. one decoded
// from a recovery link) and fires SIGNED_IN.
func (c *Client) AdoptSession(session *auth.SessionObject) {
	if session == nil {
		return
	}
	c.adopt(session, auth.SessionSignedIn)
}

func (c *Client) refresh(ctx context.Context, session *auth.SessionObject) (*auth.SessionObject, error) {
	if session.RefreshToken == "" {
		return nil, auth.ErrSessionCorrupted.WithMetadata(map[string]any{
			"reason": "expired session without refresh token",
		})
	}

	payload := map[string]string{"refresh_token": session.RefreshToken}

	var token tokenResponse
	if _, err := c.do(ctx, http.MethodPost, c.cfg.authURL("/token?grant_type=refresh_token"), "", payload, &token); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "session refresh rejected").
			WithCode(goerrors.CodeUnauthorized)
	}

	refreshed := token.toSession(c.now())
	c.adopt(refreshed, auth.SessionTokenRefreshed)
	return refreshed, nil
}

func (c *Client) adopt(session *auth.SessionObject, event auth.SessionEvent) {
	c.state.Lock()
	c.current = session
	c.state.Unlock()

	raw, err := json.Marshal(session)
	if err == nil {
		err = c.source.Store(raw)
	}
	if err != nil {
		c.logger.Warn("failed to persist session: %v", err)
	}

	c.emit(event, session)
}

// emit delivers an event to every subscriber on the calling goroutine, the
// same ordering model as the hosted SDK's single-threaded callbacks.
func (c *Client) emit(event auth.SessionEvent, session *auth.SessionObject) {
	c.state.Lock()
	handlers := make([]auth.SessionChangeHandler, 0, len(c.subs))
	for _, h := range c.subs {
		handlers = append(handlers, h)
	}
	c.state.Unlock()

	for _, h := range handlers {
		h(event, session)
	}
}

// do issues a JSON request with the project headers. It returns the HTTP
// status for callers that map specific statuses to domain errors.
func (c *Client) do(ctx context.Context, method, url, bearer string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("apikey", c.cfg.AnonKey)
	if bearer == "" {
		bearer = c.cfg.AnonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryOperation, "auth service unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return res.StatusCode, decodeAPIError(res)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return res.StatusCode, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode response")
		}
	}

	return res.StatusCode, nil
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (t tokenResponse) toSession(now time.Time) *auth.SessionObject {
	session := &auth.SessionObject{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
	}

	if t.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(t.ExpiresIn) * time.Second)
		session.ExpiresAt = &expiresAt
	}

	if t.User != nil {
		session.UserID = t.User.ID
		session.UserEmail = t.User.Email
	}

	return session
}

type apiError struct {
	ErrorCode   string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
}

func (e apiError) message() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Msg != "":
		return e.Msg
	case e.ErrorCode != "":
		return e.ErrorCode
	default:
		return "request rejected"
	}
}

func decodeAPIError(res *http.Response) error {
	apiErr := apiError{}
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	_ = json.Unmarshal(raw, &apiErr)

	return goerrors.New(
		fmt.Sprintf("auth service error: %s", apiErr.message()),
		goerrors.CategoryOperation,
	).WithMetadata(map[string]any{
		"status": res.StatusCode,
	})
}

type defPackageLogger struct{}

func (defPackageLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SUPABASE "+format+"\n", args...)
}
func (defPackageLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SUPABASE "+format+"\n", args...)
}
func (defPackageLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SUPABASE "+format+"\n", args...)
}
func (defPackageLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SUPABASE "+format+"\n", args...)
}

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/docflow/internal/guard"
)

// refreshSkew renews tokens slightly before they expire
const refreshSkew = 30 * time.Second

// APIError is an error response of the auth backend
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth backend error %d: %s", e.Status, e.Message)
}

// apiErrorBody covers the legacy and current error shapes
type apiErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}

	var b apiErrorBody
	if err := json.Unmarshal(body, &b); err != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	switch {
	case b.ErrorCode != "":
		e.Code = b.ErrorCode
	case b.Error != "" && b.ErrorDescription != "":
		e.Code = b.Error
	}

	for _, m := range []string{b.Msg, b.ErrorDescription, b.Message, b.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`

	// signup without session returns the user at top level
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	CreatedAt        time.Time  `json:"created_at"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

type userPayload struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	CreatedAt        time.Time  `json:"created_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

func (u *userPayload) toUser() User {
	confirmed := u.ConfirmedAt
	if confirmed == nil {
		confirmed = u.EmailConfirmedAt
	}
	return User{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt, ConfirmedAt: confirmed}
}

// GoTrue talks to the auth endpoints of the backend
type GoTrue struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   Cache
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	session *Session
	loaded  bool

	lmu       sync.Mutex
	listeners map[int]func(*Session)
	nextID    int
}

// NewGoTrue creates a client for {url}/auth/v1. cache may be nil.
func NewGoTrue(g *guard.Guard, client *http.Client, cache Cache, logger *slog.Logger) *GoTrue {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoTrue{
		baseURL:   g.URL() + "/auth/v1",
		apiKey:    g.AccessKey(),
		client:    client,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]func(*Session)),
	}
}

// OnAuthStateChange registers fn for every session change
func (c *GoTrue) OnAuthStateChange(fn func(*Session)) func() {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *GoTrue) emit(s *Session) {
	c.lmu.Lock()
	fns := make([]func(*Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// GetSession returns the stored session, refreshing it when expired.
// A rejected refresh token signs the user out locally.
func (c *GoTrue) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if !c.loaded {
		c.loaded = true
		if c.cache != nil {
			cached, err := c.cache.Load()
			if err != nil {
				c.logger.Warn("Failed to load cached session", slog.String("error", err.Error()))
			}
			c.session = cached
		}
	}
	current := c.session
	c.mu.Unlock()

	if current == nil || !current.Expired(c.now(), refreshSkew) {
		return current, nil
	}

	refreshed, err := c.refresh(ctx, current.RefreshToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			c.logger.Info("Refresh token rejected, signing out locally",
				slog.String("error", apiErr.Message),
			)
			c.store(nil)
			c.emit(nil)
			return nil, nil
		}
		return nil, err
	}

	c.store(refreshed)
	c.emit(refreshed)
	return refreshed, nil
}

func (c *GoTrue) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var resp tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}
	return c.toSession(&resp), nil
}

// SignIn exchanges email and password for a session
func (c *GoTrue) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var resp tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	sess := c.toSession(&resp)
	c.store(sess)
	c.emit(sess)

	c.logger.Info("Signed in", slog.String("user_id", sess.User.ID))
	return sess, nil
}

// SignUp registers an account. The session is nil when email confirmation is required.
func (c *GoTrue) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	var resp tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "/signup", "", body, &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		user := User{ID: resp.ID, Email: resp.Email, CreatedAt: resp.CreatedAt, ConfirmedAt: resp.EmailConfirmedAt}
		if resp.User != nil {
			user = resp.User.toUser()
		}
		c.logger.Info("Account created, verification pending", slog.String("user_id", user.ID))
		return &SignUpResult{User: &user}, nil
	}

	sess := c.toSession(&resp)
	c.store(sess)
	c.emit(sess)
	return &SignUpResult{User: &sess.User, Session: sess}, nil
}

// SignOut revokes the session remotely and always clears it locally
func (c *GoTrue) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	var err error
	if current != nil {
		err = c.do(ctx, "/logout", current.AccessToken, nil, nil)
	}

	c.store(nil)
	c.emit(nil)

	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

func (c *GoTrue) store(s *Session) {
	c.mu.Lock()
	c.session = s
	c.loaded = true
	c.mu.Unlock()

	if c.cache == nil {
		return
	}
	var err error
	if s == nil {
		err = c.cache.Clear()
	} else {
		err = c.cache.Save(s)
	}
	if err != nil {
		c.logger.Warn("Failed to persist session", slog.String("error", err.Error()))
	}
}

func (c *GoTrue) toSession(resp *tokenResponse) *Session {
	s := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
	}
	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.User != nil {
		s.User = resp.User.toUser()
	}
	return s
}

func (c *GoTrue) do(ctx context.Context, path, bearer string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

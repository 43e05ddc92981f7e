package session

import (
	"context"
	"log/slog"
	"net/mail"
	"sync"
	"unicode/utf8"

	"github.com/cuongbtq/docflow/internal/guard"
)

// MinPasswordLength is the minimum accepted password length in characters
const MinPasswordLength = 6

// SignUpResult is returned by Backend.SignUp. Session is nil while the
// account awaits email verification.
type SignUpResult struct {
	User    *User
	Session *Session
}

// Backend is the remote auth service
type Backend interface {
	GetSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn func(*Session)) (unsubscribe func())
}

// Store owns the current session and publishes every change
type Store struct {
	guard   *guard.Guard
	backend Backend
	resolve RoleResolver
	logger  *slog.Logger

	mu          sync.Mutex
	snap        Snapshot
	subs        map[int]chan Snapshot
	nextSub     int
	unsubscribe func()
}

// NewStore creates a Store in the uninitialized state. backend may be nil
// when the guard is not ready.
func NewStore(g *guard.Guard, backend Backend, resolve RoleResolver, logger *slog.Logger) *Store {
	if resolve == nil {
		resolve = AdminEmails()
	}
	return &Store{
		guard:   g,
		backend: backend,
		resolve: resolve,
		logger:  logger,
		snap:    Snapshot{State: StateUninitialized, Role: RoleAnonymous},
		subs:    make(map[int]chan Snapshot),
	}
}

func (s *Store) configured() bool {
	return s.guard.Ready() && s.backend != nil
}

// Initialize loads the current session once. Without configuration the store
// becomes unconfigured and no call is made. A failed load leaves the store in
// the error state until Initialize is called again.
func (s *Store) Initialize(ctx context.Context) Snapshot {
	if !s.configured() {
		s.logger.Warn("Auth backend is not configured",
			slog.Any("missing", s.guard.Missing()),
		)
		return s.set(Snapshot{
			State: StateUnconfigured,
			Role:  RoleAnonymous,
			Error: friendly(ErrNotConfigured, MsgMissingConfig, nil),
		})
	}

	s.mu.Lock()
	if s.unsubscribe == nil {
		s.unsubscribe = s.backend.OnAuthStateChange(s.OnSessionChanged)
	}
	s.mu.Unlock()

	sess, err := s.backend.GetSession(ctx)
	if err != nil {
		s.logger.Error("Failed to get session", slog.String("error", err.Error()))
		return s.set(Snapshot{
			State: StateError,
			Role:  RoleAnonymous,
			Error: friendly(ErrConnectionFailure, MsgInitFailed, err),
		})
	}

	return s.set(s.readySnapshot(sess))
}

// OnSessionChanged replaces the session and recomputes the role.
// Events are ignored while the store is unconfigured.
func (s *Store) OnSessionChanged(sess *Session) {
	s.mu.Lock()
	if s.snap.State == StateUnconfigured {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.set(s.readySnapshot(sess))
}

func (s *Store) readySnapshot(sess *Session) Snapshot {
	role := s.resolve(sess)
	return Snapshot{
		State:   StateReady,
		Session: sess,
		Role:    role,
		IsAdmin: role == RoleAdmin,
	}
}

// SignIn authenticates with email and password. The new session arrives
// through the backend's change event.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	if !s.configured() {
		return friendly(ErrNotConfigured, MsgNotConfigured, nil)
	}

	if _, err := s.backend.SignIn(ctx, email, password); err != nil {
		s.logger.Debug("Sign-in failed", slog.String("error", err.Error()))
		return translateSignIn(err)
	}
	return nil
}

// SignUp registers a new account. It reports whether email verification is
// pending, i.e. the account exists but no session was issued.
func (s *Store) SignUp(ctx context.Context, email, password string) (bool, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return false, friendly(ErrWeakSecret, MsgWeakSecret, nil)
	}
	if !validEmail(email) {
		return false, friendly(ErrInvalidIdentifier, MsgInvalidIdentifier, nil)
	}
	if !s.configured() {
		return false, friendly(ErrNotConfigured, MsgNotConfigured, nil)
	}

	res, err := s.backend.SignUp(ctx, email, password)
	if err != nil {
		s.logger.Debug("Sign-up failed", slog.String("error", err.Error()))
		return false, translateSignUp(err)
	}

	return res == nil || res.Session == nil, nil
}

// SignOut clears the local session and returns the backend's error, if any.
func (s *Store) SignOut(ctx context.Context) error {
	if !s.configured() {
		return friendly(ErrNotConfigured, MsgNotConfigured, nil)
	}

	err := s.backend.SignOut(ctx)

	s.mu.Lock()
	state := s.snap.State
	s.mu.Unlock()
	if state != StateUnconfigured {
		s.set(s.readySnapshot(nil))
	}

	if err != nil {
		s.logger.Warn("Remote sign-out failed", slog.String("error", err.Error()))
		return translateGeneric(err)
	}
	return nil
}

// Current returns the latest snapshot
func (s *Store) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe delivers the current snapshot immediately and then every change.
// A slow reader only sees the latest value. cancel closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snap
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Close stops listening to backend events and closes all subscriptions
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) set(snap Snapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = snap
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// replace the unread value
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}

	s.logger.Debug("Session state changed",
		slog.String("state", string(snap.State)),
		slog.String("role", string(snap.Role)),
	)
	return snap
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

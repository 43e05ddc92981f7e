// Package session mirrors the authentication session of the auth backend
// and publishes it, together with the caller's role, to subscribers.
package session

import (
	"context"
	"strings"
	"time"
)

// User is the authenticated identity
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// Session is an issued token pair with its owner
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is past its expiry, with skew
func (s *Session) Expired(now time.Time, skew time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.ExpiresAt)
}

// Role is the authorization level derived from a session
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
)

// RoleResolver derives the role of a session. It must be a pure function of the session.
type RoleResolver func(*Session) Role

// AdminEmails grants the admin role to sessions whose email exactly matches one of emails.
func AdminEmails(emails ...string) RoleResolver {
	admins := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return func(s *Session) Role {
		if s == nil {
			return RoleAnonymous
		}
		if _, ok := admins[s.User.Email]; ok {
			return RoleAdmin
		}
		return RoleUser
	}
}

// State of the store
type State string

const (
	StateUninitialized State = "uninitialized"
	StateUnconfigured  State = "unconfigured"
	StateError         State = "error"
	StateReady         State = "ready"
)

// Snapshot is the value published to subscribers
type Snapshot struct {
	State   State
	Session *Session
	Role    Role
	IsAdmin bool
	Error   error
}

// Authenticated reports whether a session is present
func (s Snapshot) Authenticated() bool {
	return s.Session != nil
}

type contextKey struct{}

// WithSession returns a copy of ctx carrying s
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session carried by ctx, or nil
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docflow/internal/guard"
)

func newGoTrueServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func tokenBody(email string, expiresIn int) map[string]any {
	return map[string]any{
		"access_token":  "access-" + email,
		"refresh_token": "refresh-" + email,
		"token_type":    "bearer",
		"expires_in":    expiresIn,
		"user":          map[string]any{"id": "uid-1", "email": email},
	}
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want APIError
	}{
		{
			name: "legacy",
			body: `{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
			want: APIError{Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"},
		},
		{
			name: "current",
			body: `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`,
			want: APIError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"},
		},
		{
			name: "msg only",
			body: `{"code":400,"msg":"User already registered"}`,
			want: APIError{Status: 400, Message: "User already registered"},
		},
		{
			name: "not json",
			body: `bad gateway`,
			want: APIError{Status: 400, Message: "bad gateway"},
		},
		{
			name: "empty",
			body: ``,
			want: APIError{Status: 400, Message: "Bad Request"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAPIError(400, []byte(tt.body))
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestGoTrue_SignInEmitsAndCaches(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(tokenBody(body["email"], 3600))
	})
	srv := newGoTrueServer(t, mux)

	cache := &FileCache{Path: filepath.Join(t.TempDir(), "session.json")}
	c := NewGoTrue(guard.New(srv.URL, "anon"), srv.Client(), cache, testLogger())

	var events []*Session
	unsubscribe := c.OnAuthStateChange(func(s *Session) { events = append(events, s) })
	defer unsubscribe()

	sess, err := c.SignIn(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "access-a@b.com", sess.AccessToken)
	assert.Equal(t, "uid-1", sess.User.ID)
	require.Len(t, events, 1)

	cached, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, cached.AccessToken)

	_, err = c.SignIn(context.Background(), "a@b.com", "wrong")
	assert.ErrorIs(t, translateSignIn(err), ErrInvalidCredentials)
}

func TestGoTrue_SignUp(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["email"] {
		case "pending@b.com":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "uid-2", "email": "pending@b.com"})
		case "taken@b.com":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`))
		default:
			_ = json.NewEncoder(w).Encode(tokenBody(body["email"], 3600))
		}
	})
	srv := newGoTrueServer(t, mux)
	c := NewGoTrue(guard.New(srv.URL, "anon"), srv.Client(), nil, testLogger())

	res, err := c.SignUp(context.Background(), "pending@b.com", "abcdef")
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	assert.Equal(t, "uid-2", res.User.ID)

	res, err = c.SignUp(context.Background(), "active@b.com", "abcdef")
	require.NoError(t, err)
	require.NotNil(t, res.Session)

	_, err = c.SignUp(context.Background(), "taken@b.com", "abcdef")
	assert.ErrorIs(t, translateSignUp(err), ErrDuplicateAccount)
}

func TestGoTrue_GetSessionRefreshesExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_code":"refresh_token_not_found","msg":"Invalid Refresh Token"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(tokenBody("a@b.com", 3600))
	})
	srv := newGoTrueServer(t, mux)

	path := filepath.Join(t.TempDir(), "session.json")
	cache := &FileCache{Path: path}
	expired := &Session{AccessToken: "old", RefreshToken: "good", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, cache.Save(expired))

	c := NewGoTrue(guard.New(srv.URL, "anon"), srv.Client(), cache, testLogger())
	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-a@b.com", sess.AccessToken)

	require.NoError(t, cache.Save(&Session{AccessToken: "old", RefreshToken: "revoked", ExpiresAt: time.Now().Add(-time.Minute)}))
	c = NewGoTrue(guard.New(srv.URL, "anon"), srv.Client(), cache, testLogger())
	var events []*Session
	c.OnAuthStateChange(func(s *Session) { events = append(events, s) })

	sess, err = c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	require.Len(t, events, 1)
	assert.Nil(t, events[0])

	cached, err := cache.Load()
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestGoTrue_SignOutClearsOnFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenBody("a@b.com", 3600))
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-a@b.com", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := newGoTrueServer(t, mux)
	c := NewGoTrue(guard.New(srv.URL, "anon"), srv.Client(), nil, testLogger())

	_, err := c.SignIn(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)

	err = c.SignOut(context.Background())
	require.Error(t, err)

	sess, err := c.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestGoTrue_StoreIntegration(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenBody("khhorem.khan@raqmiyat.com", 3600))
	})
	srv := newGoTrueServer(t, mux)

	g := guard.New(srv.URL, "anon")
	backend := NewGoTrue(g, srv.Client(), nil, testLogger())
	store := NewStore(g, backend, AdminEmails("khhorem.khan@raqmiyat.com"), testLogger())

	snap := store.Initialize(context.Background())
	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.Authenticated())

	require.NoError(t, store.SignIn(context.Background(), "khhorem.khan@raqmiyat.com", "secret1"))
	assert.True(t, store.Current().IsAdmin)
}

func TestGoTrue_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := guard.New(url, "anon")
	store := NewStore(g, NewGoTrue(g, nil, nil, testLogger()), nil, testLogger())

	err := store.SignIn(context.Background(), "a@b.com", "secret1")
	assert.ErrorIs(t, err, ErrConnectionFailure)
	assert.Equal(t, MsgConnectionFailure, Message(err))
}

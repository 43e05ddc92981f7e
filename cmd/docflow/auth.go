package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/docflow/internal/session"
)

const envPassword = "DOCFLOW_PASSWORD"

var errNotSignedIn = errors.New("not signed in, run: docflow signin")

var (
	email    string
	password string
)

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with email and password",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) (any, error) {
		if err := a.store.SignIn(cmd.Context(), email, passwordValue()); err != nil {
			return nil, err
		}
		return whoami(a.store.Current()), nil
	}),
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) (any, error) {
		pending, err := a.store.SignUp(cmd.Context(), email, passwordValue())
		if err != nil {
			return nil, err
		}
		if pending {
			return map[string]any{
				"email":                email,
				"verification_pending": true,
				"message":              "Check your email to confirm the account, then sign in.",
			}, nil
		}
		return whoami(a.store.Current()), nil
	}),
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and clear the cached session",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) (any, error) {
		err := a.store.SignOut(cmd.Context())
		return whoami(a.store.Current()), err
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the cached session and its role",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) (any, error) {
		snap := a.store.Current()
		return whoami(snap), snap.Error
	}),
}

type identity struct {
	State         string `json:"state"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	IsAdmin       bool   `json:"is_admin"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

func whoami(snap session.Snapshot) identity {
	id := identity{
		State:         string(snap.State),
		Authenticated: snap.Authenticated(),
		Role:          string(snap.Role),
		IsAdmin:       snap.IsAdmin,
	}
	if s := snap.Session; s != nil {
		id.UserID = s.User.ID
		id.Email = s.User.Email
		if !s.ExpiresAt.IsZero() {
			id.ExpiresAt = s.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
		}
	}
	return id
}

func passwordValue() string {
	if password != "" {
		return password
	}
	return os.Getenv(envPassword)
}

func requireSession(a *app) error {
	snap := a.store.Current()
	if snap.State == session.StateUnconfigured || snap.State == session.StateError {
		return snap.Error
	}
	if !snap.Authenticated() {
		return errNotSignedIn
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{signinCmd, signupCmd} {
		c.Flags().StringVar(&email, "email", "", "account email")
		c.Flags().StringVar(&password, "password", "", "account password (default: $DOCFLOW_PASSWORD)")
		_ = c.MarkFlagRequired("email")
	}

	rootCmd.AddCommand(signinCmd, signupCmd, signoutCmd, whoamiCmd)
}

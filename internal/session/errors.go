package session

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/cuongbtq/docflow/internal/guard"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConnectionFailure  = errors.New("connection failure")
	ErrDuplicateAccount   = errors.New("duplicate account")
	ErrWeakSecret         = errors.New("weak secret")
	ErrInvalidIdentifier  = errors.New("invalid identifier")

	// ErrNotConfigured also matches guard.ErrConfigurationMissing
	ErrNotConfigured = fmt.Errorf("auth backend not configured: %w", guard.ErrConfigurationMissing)
)

// User-facing texts
const (
	MsgInvalidCredentials = "Invalid email or password. Please check your credentials and try again."
	MsgConnectionFailure  = "Connection failed. Please check your internet connection and Supabase configuration."
	MsgDuplicateAccount   = "An account with this email already exists. Please sign in instead."
	MsgInvalidIdentifier  = "Please enter a valid email address."
	MsgWeakSecret         = "Password must be at least 6 characters long."
	MsgNotConfigured      = "Supabase not configured. Please check your environment variables."
	MsgMissingConfig      = "Missing Supabase configuration"
	MsgInitFailed         = "Failed to connect to Supabase"
)

// FriendlyError pairs a taxonomy error with a message fit for end users
type FriendlyError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *FriendlyError) Error() string {
	return e.Message
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause
func (e *FriendlyError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func friendly(kind error, msg string, cause error) error {
	return &FriendlyError{Kind: kind, Message: msg, Cause: cause}
}

// Message returns the user-facing text of err
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *FriendlyError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// isNetworkError recognizes transport-level failures
func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// translateSignIn maps backend sign-in failures to the taxonomy.
// Unrecognized errors are returned unmodified.
func translateSignIn(err error) error {
	if err == nil {
		return nil
	}
	if isNetworkError(err) {
		return friendly(ErrConnectionFailure, MsgConnectionFailure, err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == "invalid_credentials" ||
			strings.Contains(apiErr.Message, "Invalid login credentials") {
			return friendly(ErrInvalidCredentials, MsgInvalidCredentials, err)
		}
	}
	return err
}

// translateSignUp maps backend sign-up failures to the taxonomy.
func translateSignUp(err error) error {
	if err == nil {
		return nil
	}
	if isNetworkError(err) {
		return friendly(ErrConnectionFailure, MsgConnectionFailure, err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == "user_already_exists" || apiErr.Code == "email_exists" ||
		strings.Contains(apiErr.Message, "User already registered"):
		return friendly(ErrDuplicateAccount, MsgDuplicateAccount, err)
	case apiErr.Code == "email_address_invalid" || apiErr.Code == "validation_failed" ||
		strings.Contains(apiErr.Message, "Invalid email") ||
		strings.Contains(apiErr.Message, "Unable to validate email address"):
		return friendly(ErrInvalidIdentifier, MsgInvalidIdentifier, err)
	case apiErr.Code == "weak_password" || strings.Contains(apiErr.Message, "Password"):
		return friendly(ErrWeakSecret, MsgWeakSecret, err)
	}
	return err
}

// translateGeneric maps only transport failures
func translateGeneric(err error) error {
	if err != nil && isNetworkError(err) {
		return friendly(ErrConnectionFailure, MsgConnectionFailure, err)
	}
	return err
}

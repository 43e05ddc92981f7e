// Package guard decides once, at startup, whether the auth/persistence
// backend can be used. Every network-dependent component consults the same
// Guard before making a call.
package guard

import (
	"errors"
	"strings"
)

// ErrConfigurationMissing is returned by Check when the backend endpoint or
// access key is absent.
var ErrConfigurationMissing = errors.New("backend configuration missing")

// Setting names reported by Missing
const (
	SettingURL       = "backend.url"
	SettingAccessKey = "backend.access_key"
)

// Guard is immutable after New.
type Guard struct {
	url       string
	accessKey string
	missing   []string
}

// New builds a Guard from the two backend connection values.
// Blank values count as absent.
func New(endpointURL, accessKey string) *Guard {
	g := &Guard{
		url:       strings.TrimSpace(endpointURL),
		accessKey: strings.TrimSpace(accessKey),
	}
	if g.url == "" {
		g.missing = append(g.missing, SettingURL)
	}
	if g.accessKey == "" {
		g.missing = append(g.missing, SettingAccessKey)
	}
	return g
}

// Ready reports whether both settings are present.
func (g *Guard) Ready() bool {
	return g != nil && len(g.missing) == 0
}

// Missing returns the names of absent settings.
func (g *Guard) Missing() []string {
	if g == nil {
		return []string{SettingURL, SettingAccessKey}
	}
	out := make([]string, len(g.missing))
	copy(out, g.missing)
	return out
}

// Check returns ErrConfigurationMissing unless the guard is ready.
func (g *Guard) Check() error {
	if !g.Ready() {
		return ErrConfigurationMissing
	}
	return nil
}

// URL returns the backend endpoint without a trailing slash.
func (g *Guard) URL() string {
	if g == nil {
		return ""
	}
	return strings.TrimRight(g.url, "/")
}

// AccessKey returns the backend access key.
func (g *Guard) AccessKey() string {
	if g == nil {
		return ""
	}
	return g.accessKey
}

// Guidance is the setup hint shown while the backend is unconfigured.
func (g *Guard) Guidance() string {
	if g.Ready() {
		return ""
	}
	return "Missing Supabase configuration. Set DOCFLOW_BACKEND_URL and DOCFLOW_BACKEND_KEY " +
		"(or backend.url and backend.access_key in the config file) and restart the service."
}

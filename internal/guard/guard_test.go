package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		key         string
		wantReady   bool
		wantMissing []string
	}{
		{
			name:      "both present",
			url:       "https://project.example.co",
			key:       "anon",
			wantReady: true,
		},
		{
			name:        "url missing",
			key:         "anon",
			wantMissing: []string{SettingURL},
		},
		{
			name:        "key missing",
			url:         "https://project.example.co",
			wantMissing: []string{SettingAccessKey},
		},
		{
			name:        "blank values count as absent",
			url:         "   ",
			key:         "\t",
			wantMissing: []string{SettingURL, SettingAccessKey},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.url, tt.key)

			assert.Equal(t, tt.wantReady, g.Ready())
			if tt.wantReady {
				assert.NoError(t, g.Check())
				assert.Empty(t, g.Missing())
				assert.Empty(t, g.Guidance())
			} else {
				assert.ErrorIs(t, g.Check(), ErrConfigurationMissing)
				assert.Equal(t, tt.wantMissing, g.Missing())
				assert.NotEmpty(t, g.Guidance())
			}
		})
	}
}

func TestGuard_Nil(t *testing.T) {
	var g *Guard

	assert.False(t, g.Ready())
	assert.ErrorIs(t, g.Check(), ErrConfigurationMissing)
	assert.Len(t, g.Missing(), 2)
	assert.Empty(t, g.URL())
	assert.Empty(t, g.AccessKey())
}

func TestGuard_URLTrimsSlash(t *testing.T) {
	g := New("https://project.example.co/", "k")
	assert.Equal(t, "https://project.example.co", g.URL())
	assert.Equal(t, "k", g.AccessKey())
}

func TestGuard_MissingReturnsCopy(t *testing.T) {
	g := New("", "")
	m := g.Missing()
	m[0] = "tampered"
	assert.Equal(t, SettingURL, g.Missing()[0])
}

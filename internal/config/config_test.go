package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REFERENCE_CURRENCY", "")
	t.Setenv("EVENT_QUEUE_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "USD", cfg.ReferenceCurrency)
	assert.Equal(t, 256, cfg.EventQueueSize)
	assert.Equal(t, ":8080", Config{Port: "8080"}.Address())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kasirledger.toml")
	content := `
port = "9090"
local_currency = "idr"
event_queue_size = 32
allowed_origins = ["http://pos.local"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("LOCAL_CURRENCY", "")
	t.Setenv("EVENT_QUEUE_SIZE", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "IDR", cfg.LocalCurrency)
	assert.Equal(t, 32, cfg.EventQueueSize)
	assert.Equal(t, []string{"http://pos.local"}, cfg.AllowedOrigins)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "not a number", raw: "abc", want: 256},
		{name: "below minimum", raw: "0", want: 256},
		{name: "valid", raw: "12", want: 12},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("EVENT_QUEUE_SIZE", tc.raw)
			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.EventQueueSize)
		})
	}
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadParsesAllowedOrigins(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ALLOWED_ORIGINS", "http://a.local, ,http://b.local")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.AllowedOrigins)
}

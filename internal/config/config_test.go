package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingDefaultUsesBuiltins(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, 300, c.Afreeca.WindowSeconds)
	assert.Equal(t, 8080, c.Server.Port)
	assert.True(t, c.Output.Color)
}

func TestLoadMissingExplicitFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
pipeline:
  max_concurrent: 4
  item_timeout_seconds: 90
  abort_on_error: true
output:
  color: false
server:
  port: 9000
log:
  level: debug
`)
	c, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, 4, c.Pipeline.MaxConcurrent)
	assert.Equal(t, 90*time.Second, c.ItemTimeout())
	assert.True(t, c.Pipeline.AbortOnError)
	assert.False(t, c.Output.Color)
	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, "127.0.0.1", c.Server.Host)
	assert.Equal(t, 300, c.Afreeca.WindowSeconds)
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "env-id")
	t.Setenv("YOUTUBE_API_KEY", "env-key")
	path := writeFile(t, "twitch:\n  client_id: file-id\n  client_secret: file-secret\n")

	c, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "env-id", c.Twitch.ClientID)
	assert.Equal(t, "file-secret", c.Twitch.ClientSecret)
	assert.Equal(t, "env-key", c.YouTube.APIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := writeFile(t, "afreeca:\n  window_seconds: 0\npipeline:\n  max_concurrent: -1\n")
	_, err := Load(path, true)
	require.ErrorIs(t, err, ErrInvalid)
	assert.ErrorContains(t, err, "window_seconds")
	assert.ErrorContains(t, err, "max_concurrent")
}

func TestMalformedYAML(t *testing.T) {
	_, err := Load(writeFile(t, "pipeline: [oops"), true)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

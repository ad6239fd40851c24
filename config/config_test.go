package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvAPIKey, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg, "defaults")
	assert.True(t, cfg.EnableContinuations, "continuations on")
	assert.False(t, cfg.EnableReplacements, "replacements off")
	assert.True(t, cfg.UseAutocorrecting, "autocorrect on")
	assert.Equal(t, 350*time.Millisecond, cfg.Debounce(), "debounce")
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv(EnvConfig, "")
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
custom_endpoint: http://localhost:9000/complete
selected_model: small
enable_replacements: true
use_autocorrecting: false
debounce_ms: 200
compression: br
`), 0644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/complete", cfg.Endpoint(), "endpoint")
	assert.Equal(t, "small", cfg.SelectedModel, "model")
	assert.True(t, cfg.EnableReplacements, "replacements")
	assert.False(t, cfg.UseAutocorrecting, "autocorrect")
	assert.True(t, cfg.EnableContinuations, "default kept")
	assert.Equal(t, 200*time.Millisecond, cfg.Debounce(), "debounce")

	pc := cfg.ProviderConfig()
	assert.Equal(t, "br", pc.Compression, "compression")
	assert.Equal(t, 10000, pc.CompletionTimeout, "timeout")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selected_model: small\nlog_level: info\n"), 0644))
	t.Setenv(EnvConfig, `{"selected_model": "large", "log_level": "debug"}`)
	t.Setenv(EnvAPIKey, "secret")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "large", cfg.SelectedModel, "model from env")
	assert.Equal(t, "debug", cfg.LogLevel, "log level from env")
	assert.Equal(t, "secret", cfg.APIKey, "api key from env")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("debounce_ms: [1, 2"), 0644))

	t.Setenv(EnvConfig, "")
	_, err := Load(bad)
	assert.ErrorContains(t, err, "failed to parse config", "yaml error")

	t.Setenv(EnvConfig, "{not json")
	_, err = Load("")
	assert.ErrorContains(t, err, EnvConfig, "env error")

	t.Setenv(EnvConfig, `{"compression": "gzip"}`)
	_, err = Load("")
	assert.ErrorContains(t, err, "unsupported compression", "validation")
}

func TestEndpoint_FallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultEndpoint = "https://default.example/api"
	assert.Equal(t, "https://default.example/api", cfg.Endpoint(), "default")

	cfg.CustomEndpoint = "https://custom.example/api"
	assert.Equal(t, "https://custom.example/api", cfg.Endpoint(), "custom wins")
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvAPIKey, "")
	path := filepath.Join(t.TempDir(), "nested", "scribe.yaml")
	cfg := DefaultConfig()
	cfg.SelectedModel = "m"
	cfg.EnableReplacements = true

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, cfg, loaded, "same config")
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Setenv(EnvConfig, "")

	path := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enable_replacements: false\n"), 0644))

	var mu sync.Mutex
	var latest *Config
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		latest = cfg
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte("enable_replacements: true\n"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest != nil && latest.EnableReplacements
	}, 2*time.Second, 20*time.Millisecond, "reloaded config delivered")

	w.Stop()
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Setenv(EnvConfig, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "scribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))

	calls := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) { calls <- cfg })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))

	select {
	case <-calls:
		t.Fatal("unexpected reload")
	case <-time.After(300 * time.Millisecond):
	}
	w.Stop()
}

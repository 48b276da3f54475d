package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Workflow.FreshnessWindow)
	assert.Equal(t, 5*time.Second, cfg.Quote.RequestTimeout)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.False(t, cfg.Workflow.AllowFallback)
	assert.Equal(t, []string{"EUR", "GBP", "JPY", "CHF"}, cfg.Board.Symbols)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
workflow:
  freshness_window: 2m
  allow_fallback: true
quote:
  base_url: http://rates.local
board:
  symbols: [EUR]
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("TRADESETTLE_QUOTE_REQUEST_TIMEOUT", "3s")
	t.Setenv("TRADESETTLE_EVENTS_ENABLED", "true")
	t.Setenv("TRADESETTLE_EVENTS_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Workflow.FreshnessWindow)
	assert.True(t, cfg.Workflow.AllowFallback)
	assert.Equal(t, "http://rates.local", cfg.Quote.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Quote.RequestTimeout)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, []string{"EUR"}, cfg.Board.Symbols)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Session.Backend = "redis"
	assert.Error(t, cfg.Validate(), "redis backend needs a url")
	cfg.Session.RedisURL = "redis://localhost:6379/0"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Session.Backend = "etcd"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Events.Enabled = true
	cfg.Events.Brokers = nil
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Notify.Telegram.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Quote.RequestTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Board: BoardConfig{MaxPoints: 500}}
	assert.Equal(t, 500, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 20, cfg.ResolveMaxPoints(20))
}

func TestLoadDotEnvMissingFileIsFine(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnvExportsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TRADESETTLE_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TRADESETTLE_TEST_DOTENV") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("TRADESETTLE_TEST_DOTENV"))
}

package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"RESONANCE_DB_PATH", "RESONANCE_LOCK_PATH", "RESONANCE_BUSY_TIMEOUT_SECONDS",
		"GENERATOR_PROVIDER", "GENERATOR_API_KEY", "GENERATOR_MODEL",
		"GENERATOR_BASE_URL", "GENERATOR_TIMEOUT_SECONDS",
		"VALIDATION_MIN_VIABLE_LEN", "VALIDATION_SHORT_FLOOR",
		"DISSONANCE_WINDOW_SECONDS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultDBPath, cfg.Store.DBPath)
	assert.Equal(t, DefaultBusyTimeout, cfg.Store.BusyTimeout)
	assert.Equal(t, "openai", cfg.Generator.Provider)
	assert.Equal(t, DefaultGeneratorTimeout, cfg.Generator.Timeout)
	assert.Equal(t, DefaultMinViableLength, cfg.Validation.MinViableLength)
	assert.Equal(t, DefaultShortOutputFloor, cfg.Validation.ShortOutputFloor)
	assert.Equal(t, DefaultDissonanceWindow, cfg.DissonanceWindow)
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("RESONANCE_DB_PATH", "/tmp/test-resonance.db")
	t.Setenv("RESONANCE_BUSY_TIMEOUT_SECONDS", "3")
	t.Setenv("GENERATOR_API_KEY", "test-key")
	t.Setenv("GENERATOR_MODEL", "sonar")
	t.Setenv("GENERATOR_BASE_URL", "https://api.perplexity.ai")
	t.Setenv("DISSONANCE_WINDOW_SECONDS", "120")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test-resonance.db", cfg.Store.DBPath)
	assert.Equal(t, 3*time.Second, cfg.Store.BusyTimeout)
	assert.Equal(t, "test-key", cfg.Generator.APIKey)
	assert.Equal(t, "sonar", cfg.Generator.Model)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Generator.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.DissonanceWindow)
}

func TestLoadConfigFromEnvIgnoresBadNumbers(t *testing.T) {
	t.Setenv("RESONANCE_BUSY_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("VALIDATION_MIN_VIABLE_LEN", "-5")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultBusyTimeout, cfg.Store.BusyTimeout)
	assert.Equal(t, DefaultMinViableLength, cfg.Validation.MinViableLength)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"store": {"db_path": "/tmp/json.db"},
		"generator": {"provider": "openai", "api_key": "k", "model": "sonar-pro"}
	}`), 0o644))

	cfg, err := LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/json.db", cfg.Store.DBPath)
	assert.Equal(t, "sonar-pro", cfg.Generator.Model)
	// Defaults fill the gaps.
	assert.Equal(t, DefaultBusyTimeout, cfg.Store.BusyTimeout)
	assert.Equal(t, DefaultDissonanceWindow, cfg.DissonanceWindow)
}

func TestLoadConfigFromJSONMissingFile(t *testing.T) {
	_, err := LoadConfigFromJSON(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.Validate())

	cfg.Store.DBPath = "./resonance.db"
	require.NoError(t, cfg.Validate())
}

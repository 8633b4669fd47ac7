// Package core provides the main Resonance client and shared types for the
// event substrate.
package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for a Resonance client.
//
// It includes settings for:
//   - The event store (local SQLite file + sentinel lock file)
//   - The generator collaborator (OpenAI-compatible JSON-over-HTTP)
//   - The validation engine thresholds
//   - The dissonance aggregation window
//
// Example:
//
//	config := &core.Config{
//	    Store: core.StoreConfig{
//	        DBPath: "./resonance.db",
//	    },
//	    Generator: core.GeneratorConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "sonar-pro",
//	        BaseURL:  "https://api.perplexity.ai",
//	    },
//	}
type Config struct {
	// Store contains event store configuration.
	Store StoreConfig `json:"store"`

	// Generator contains generator collaborator configuration.
	Generator GeneratorConfig `json:"generator"`

	// Validation contains validation engine configuration.
	Validation ValidationConfig `json:"validation"`

	// DissonanceWindow is the trailing window used by dissonance reporting.
	DissonanceWindow time.Duration `json:"dissonance_window"`
}

// StoreConfig contains configuration for the event store.
type StoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string `json:"db_path"`

	// LockPath is the path to the zero-byte sentinel file hosting the
	// cross-process initialization lock. Defaults to DBPath + ".lock".
	LockPath string `json:"lock_path,omitempty"`

	// BusyTimeout is the bounded wait for the backing file under write
	// contention. Defaults to 10s.
	BusyTimeout time.Duration `json:"busy_timeout,omitempty"`
}

// GeneratorConfig contains configuration for the generator collaborator.
//
// The collaborator speaks the OpenAI chat-completions wire format; BaseURL
// selects any compatible endpoint.
type GeneratorConfig struct {
	// Provider is the generator provider name. Currently "openai"
	// (covers all OpenAI-compatible endpoints via BaseURL).
	Provider string `json:"provider"`

	// APIKey is the API key for the generator endpoint.
	APIKey string `json:"api_key"`

	// Model is the model identifier sent with each request.
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses the provider
	// default if empty).
	BaseURL string `json:"base_url,omitempty"`

	// Timeout bounds every generator call, including the corrective retry.
	// Defaults to 60s.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// ValidationConfig contains thresholds for the validation engine.
type ValidationConfig struct {
	// MinViableLength is the rune floor below which a cleaned text is
	// considered mutilated and cleaning retreats to tag-stripping only.
	// Defaults to 40.
	MinViableLength int `json:"min_viable_length,omitempty"`

	// ShortOutputFloor is the character floor below which output is treated
	// as a process-leak signal. Defaults to 20.
	ShortOutputFloor int `json:"short_output_floor,omitempty"`

	// RetryTemperatureBoost is added to the persona temperature for the one
	// corrective regeneration, capped at 1.0. Defaults to 0.2.
	RetryTemperatureBoost float64 `json:"retry_temperature_boost,omitempty"`
}

// Default configuration values.
const (
	DefaultDBPath           = "./resonance.db"
	DefaultBusyTimeout      = 10 * time.Second
	DefaultGeneratorTimeout = 60 * time.Second
	DefaultDissonanceWindow = 60 * time.Second
	DefaultMinViableLength  = 40
	DefaultShortOutputFloor = 20
	DefaultRetryTempBoost   = 0.2
)

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - RESONANCE_DB_PATH, RESONANCE_LOCK_PATH, RESONANCE_BUSY_TIMEOUT_SECONDS
//   - GENERATOR_PROVIDER, GENERATOR_API_KEY, GENERATOR_MODEL,
//     GENERATOR_BASE_URL, GENERATOR_TIMEOUT_SECONDS
//   - VALIDATION_MIN_VIABLE_LEN, VALIDATION_SHORT_FLOOR
//   - DISSONANCE_WINDOW_SECONDS
//
// Returns a Config instance with defaults applied for anything unset.
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Store: StoreConfig{
			DBPath:      getEnvOrDefault("RESONANCE_DB_PATH", DefaultDBPath),
			LockPath:    os.Getenv("RESONANCE_LOCK_PATH"),
			BusyTimeout: envSeconds("RESONANCE_BUSY_TIMEOUT_SECONDS", DefaultBusyTimeout),
		},
		Generator: GeneratorConfig{
			Provider: getEnvOrDefault("GENERATOR_PROVIDER", "openai"),
			APIKey:   os.Getenv("GENERATOR_API_KEY"),
			Model:    getEnvOrDefault("GENERATOR_MODEL", "sonar-pro"),
			BaseURL:  os.Getenv("GENERATOR_BASE_URL"),
			Timeout:  envSeconds("GENERATOR_TIMEOUT_SECONDS", DefaultGeneratorTimeout),
		},
		Validation: ValidationConfig{
			MinViableLength:       envInt("VALIDATION_MIN_VIABLE_LEN", DefaultMinViableLength),
			ShortOutputFloor:      envInt("VALIDATION_SHORT_FLOOR", DefaultShortOutputFloor),
			RetryTemperatureBoost: DefaultRetryTempBoost,
		},
		DissonanceWindow: envSeconds("DISSONANCE_WINDOW_SECONDS", DefaultDissonanceWindow),
	}

	return cfg, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewStoreError("LoadConfigFromJSON", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, NewStoreError("LoadConfigFromJSON", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Validate validates the configuration.
//
// The store path is the only hard requirement: the generator collaborator is
// optional (a store-only process never dials out).
func (c *Config) Validate() error {
	if c.Store.DBPath == "" {
		return NewStoreError("Validate", ErrInvalidConfig)
	}
	return nil
}

// applyDefaults fills zero values with defaults.
func (c *Config) applyDefaults() {
	if c.Store.DBPath == "" {
		c.Store.DBPath = DefaultDBPath
	}
	if c.Store.BusyTimeout == 0 {
		c.Store.BusyTimeout = DefaultBusyTimeout
	}
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = DefaultGeneratorTimeout
	}
	if c.Validation.MinViableLength == 0 {
		c.Validation.MinViableLength = DefaultMinViableLength
	}
	if c.Validation.ShortOutputFloor == 0 {
		c.Validation.ShortOutputFloor = DefaultShortOutputFloor
	}
	if c.Validation.RetryTemperatureBoost == 0 {
		c.Validation.RetryTemperatureBoost = DefaultRetryTempBoost
	}
	if c.DissonanceWindow == 0 {
		c.DissonanceWindow = DefaultDissonanceWindow
	}
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envSeconds parses an integer-seconds environment variable into a Duration.
func envSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// envInt parses an integer environment variable.
func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	AutoSave    AutoSaveConfig    `yaml:"autosave"`
	Legacy      LegacyConfig      `yaml:"legacy"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Retry       RetryConfig       `yaml:"retry"`
	Log         LogConfig         `yaml:"log"`
}

// StorageConfig contains local draft/profile store settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// AutoSaveConfig contains draft auto-save settings.
type AutoSaveConfig struct {
	Debounce Duration `yaml:"debounce"`
}

// LegacyConfig contains legacy multipart endpoint settings.
type LegacyConfig struct {
	Endpoint string `yaml:"endpoint"`
	// SessionToken is the opaque verification token the hosting
	// environment supplies. Env-only, never in YAML.
	SessionToken string `yaml:"-"`
}

// ObjectStoreConfig contains modern object-store transport settings.
// An empty bucket means the modern transport is not configured.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool  `yaml:"use_ssl"`
}

// RetryConfig contains transport retry policy settings.
type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	BaseDelay      Duration `yaml:"base_delay"`
	RateLimitDelay Duration `yaml:"rate_limit_delay"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("REQFORMS_CONFIG_PATH", "config/reqforms.yaml")

	// Missing file is not an error; defaults apply
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: "data/reqforms.db",
		},
		AutoSave: AutoSaveConfig{
			Debounce: Duration(2 * time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BaseDelay:      Duration(500 * time.Millisecond),
			RateLimitDelay: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REQFORMS_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("REQFORMS_AUTOSAVE_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AutoSave.Debounce = Duration(d)
		}
	}

	if v := os.Getenv("REQFORMS_LEGACY_ENDPOINT"); v != "" {
		cfg.Legacy.Endpoint = v
	}
	if v := os.Getenv("REQFORMS_SESSION_TOKEN"); v != "" {
		cfg.Legacy.SessionToken = v
	}

	if v := os.Getenv("REQFORMS_S3_ENDPOINT"); v != "" {
		cfg.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("REQFORMS_S3_BUCKET"); v != "" {
		cfg.ObjectStore.Bucket = v
	}
	if v := os.Getenv("REQFORMS_S3_REGION"); v != "" {
		cfg.ObjectStore.Region = v
	}
	if v := os.Getenv("REQFORMS_S3_ACCESS_KEY"); v != "" {
		cfg.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("REQFORMS_S3_SECRET_KEY"); v != "" {
		cfg.ObjectStore.SecretKey = v
	}
	if v := os.Getenv("REQFORMS_S3_USE_SSL"); v != "" {
		ssl := v == "true" || v == "1"
		cfg.ObjectStore.UseSSL = &ssl
	}

	if v := os.Getenv("REQFORMS_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("REQFORMS_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.BaseDelay = Duration(d)
		}
	}
	if v := os.Getenv("REQFORMS_RETRY_RATE_LIMIT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.RateLimitDelay = Duration(d)
		}
	}

	if v := os.Getenv("REQFORMS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REQFORMS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	if c.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	if c.AutoSave.Debounce <= 0 {
		return errors.New("autosave.debounce must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return errors.New("retry.base_delay must be positive")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Package config provides environment-based configuration for the build plane.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the build plane.
type Config struct {
	// Database configuration
	DatabaseDSN string `yaml:"database_dsn"`

	// Server configuration
	APIHost string `yaml:"api_host"`
	APIPort int    `yaml:"api_port"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CI engine configuration
	CI CIConfig `yaml:"ci"`

	// Watchdog configuration
	Watchdog WatchdogConfig `yaml:"watchdog"`

	// Artifact storage configuration
	Artifact ArtifactConfig `yaml:"artifact"`

	// Notification configuration
	Notify NotifyConfig `yaml:"notify"`
}

// CIConfig holds configuration for the external CI engine.
type CIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Username       string        `yaml:"username"`
	APIToken       string        `yaml:"api_token"`
	Timeout        time.Duration `yaml:"timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollMaxElapsed time.Duration `yaml:"poll_max_elapsed"`
}

// WatchdogConfig holds configuration for the stale-build watchdog.
type WatchdogConfig struct {
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
}

// ArtifactConfig holds configuration for artifact storage.
type ArtifactConfig struct {
	RootDir string `yaml:"root_dir"`
}

// NotifyConfig holds configuration for the notification fan-out.
type NotifyConfig struct {
	// Transport selects the fan-out backend: "websocket" or "nats".
	Transport string `yaml:"transport"`
	NATSURL   string `yaml:"nats_url"`
}

// Load reads configuration from environment variables.
// If BUILDPLANE_CONFIG points at a YAML file, its values are loaded
// first and the environment overrides them.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("BUILDPLANE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration without validating required
// fields, useful for testing.
func LoadWithDefaults() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

func defaults() *Config {
	return &Config{
		DatabaseDSN:     "postgres://localhost:5432/buildplane?sslmode=disable",
		APIHost:         "0.0.0.0",
		APIPort:         8080,
		ShutdownTimeout: 30 * time.Second,
		CI: CIConfig{
			BaseURL:        "http://localhost:8081",
			Timeout:        30 * time.Second,
			PollInterval:   2 * time.Second,
			PollMaxElapsed: 10 * time.Minute,
		},
		Watchdog: WatchdogConfig{
			SweepInterval:  25 * time.Minute,
			StaleThreshold: 1 * time.Hour,
		},
		Artifact: ArtifactConfig{
			RootDir: "/var/lib/buildplane/artifacts",
		},
		Notify: NotifyConfig{
			Transport: "websocket",
			NATSURL:   "nats://localhost:4222",
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DatabaseDSN = getEnv("DATABASE_URL", c.DatabaseDSN)
	c.APIHost = getEnv("API_HOST", c.APIHost)
	c.APIPort = getIntEnv("API_PORT", c.APIPort)
	c.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.CI.BaseURL = getEnv("CI_BASE_URL", c.CI.BaseURL)
	c.CI.Username = getEnv("CI_USERNAME", c.CI.Username)
	c.CI.APIToken = getEnv("CI_API_TOKEN", c.CI.APIToken)
	c.CI.Timeout = getDurationEnv("CI_TIMEOUT", c.CI.Timeout)
	c.CI.PollInterval = getDurationEnv("CI_POLL_INTERVAL", c.CI.PollInterval)
	c.CI.PollMaxElapsed = getDurationEnv("CI_POLL_MAX_ELAPSED", c.CI.PollMaxElapsed)

	c.Watchdog.SweepInterval = getDurationEnv("WATCHDOG_SWEEP_INTERVAL", c.Watchdog.SweepInterval)
	c.Watchdog.StaleThreshold = getDurationEnv("WATCHDOG_STALE_THRESHOLD", c.Watchdog.StaleThreshold)

	c.Artifact.RootDir = getEnv("ARTIFACT_ROOT_DIR", c.Artifact.RootDir)

	c.Notify.Transport = getEnv("NOTIFY_TRANSPORT", c.Notify.Transport)
	c.Notify.NATSURL = getEnv("NATS_URL", c.Notify.NATSURL)
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.CI.APIToken == "" {
		return fmt.Errorf("CI_API_TOKEN is required")
	}
	if c.CI.Username == "" {
		return fmt.Errorf("CI_USERNAME is required")
	}
	if c.Watchdog.SweepInterval <= 0 {
		return fmt.Errorf("WATCHDOG_SWEEP_INTERVAL must be positive, got %v", c.Watchdog.SweepInterval)
	}
	if c.Watchdog.StaleThreshold <= 0 {
		return fmt.Errorf("WATCHDOG_STALE_THRESHOLD must be positive, got %v", c.Watchdog.StaleThreshold)
	}
	switch c.Notify.Transport {
	case "websocket", "nats":
	default:
		return fmt.Errorf("NOTIFY_TRANSPORT must be websocket or nats, got %q", c.Notify.Transport)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

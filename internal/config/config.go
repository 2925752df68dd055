package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/lahidna/internal/lang"
	"github.com/MeKo-Tech/lahidna/internal/relay"
	"github.com/MeKo-Tech/lahidna/internal/rewrite"
	"github.com/MeKo-Tech/lahidna/internal/telemetry"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	tel := telemetry.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Storage: StorageConfig{
			Driver: DriverMemory,
			Path:   "lahidna.db",
		},
		Telemetry: TelemetryConfig{
			Enabled:          tel.Enabled,
			Burst:            tel.Burst,
			RefillIntervalMS: int(tel.Refill / time.Millisecond),
			HighWater:        tel.HighWater,
		},
		Features: FeaturesConfig{
			RefreshIntervalMin: 60,
			Defaults:           []string{},
		},
		Relay: RelayConfig{
			TimeoutSec: int(relay.DefaultTimeout / time.Second),
		},
		HTTP: HTTPConfig{
			TimeoutSec: 15,
			UserAgent:  DefaultUserAgent,
		},
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			CORSOrigin:        "*",
			TimeoutSec:        30,
			ShutdownTimeout:   10,
			RateLimitEnabled:  false,
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			MaxRequestsPerDay: 5000,
		},
		Rewrite: RewriteConfig{
			RefreshIntervalMin: int(rewrite.DefaultInterval / time.Minute),
		},
		Preferences: PreferencesConfig{
			MoreLanguages: []string{"uk"},
			LessLanguages: []string{"ru"},
			Speed:         string(lang.DefaultSpeed),
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validDrivers := []string{DriverMemory, DriverSQLite}
	if !slices.Contains(validDrivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver: %s (must be one of: %s)", c.Storage.Driver, strings.Join(validDrivers, ", "))
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required for the %s driver", DriverSQLite)
	}

	if c.Telemetry.Burst <= 0 {
		return fmt.Errorf("invalid telemetry burst: %d (must be positive)", c.Telemetry.Burst)
	}
	if c.Telemetry.RefillIntervalMS <= 0 {
		return fmt.Errorf("invalid telemetry refill interval: %d (must be positive)", c.Telemetry.RefillIntervalMS)
	}
	if c.Telemetry.HighWater <= 0 {
		return fmt.Errorf("invalid telemetry high water: %d (must be positive)", c.Telemetry.HighWater)
	}

	if err := validatePositive(c.Features.RefreshIntervalMin, "features.refresh_interval_min"); err != nil {
		return err
	}
	if err := validatePositive(c.Relay.TimeoutSec, "relay.timeout_sec"); err != nil {
		return err
	}
	if err := validatePositive(c.HTTP.TimeoutSec, "http.timeout_sec"); err != nil {
		return err
	}
	if err := validatePositive(c.Rewrite.RefreshIntervalMin, "rewrite.refresh_interval_min"); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.RateLimitEnabled {
		if c.Server.RequestsPerMinute <= 0 || c.Server.RequestsPerHour <= 0 {
			return fmt.Errorf("invalid rate limit: %d/min %d/hour (must be positive)",
				c.Server.RequestsPerMinute, c.Server.RequestsPerHour)
		}
		if c.Server.MaxRequestsPerDay < 0 {
			return fmt.Errorf("invalid daily quota: %d (must not be negative)", c.Server.MaxRequestsPerDay)
		}
	}

	if c.Preferences.Speed != "" && !lang.Speed(c.Preferences.Speed).Valid() {
		return fmt.Errorf("invalid preference speed: %s", c.Preferences.Speed)
	}
	return nil
}

// ToTelemetryConfig converts the telemetry section for telemetry.New.
func (c *Config) ToTelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:   c.Telemetry.Enabled,
		APIBase:   c.Telemetry.APIBase,
		Version:   version,
		Burst:     c.Telemetry.Burst,
		Refill:    time.Duration(c.Telemetry.RefillIntervalMS) * time.Millisecond,
		HighWater: c.Telemetry.HighWater,
	}
}

// ToPreference returns the seed preference for an empty synced store.
func (c *Config) ToPreference() lang.Preference {
	return lang.Preference{
		MoreLanguages: c.Preferences.MoreLanguages,
		LessLanguages: c.Preferences.LessLanguages,
		Speed:         lang.Speed(c.Preferences.Speed),
		CollectStats:  c.Preferences.CollectStats,
	}.Normalized()
}

func (c *Config) FeaturesRefresh() time.Duration {
	return time.Duration(c.Features.RefreshIntervalMin) * time.Minute
}

func (c *Config) RewriteRefresh() time.Duration {
	return time.Duration(c.Rewrite.RefreshIntervalMin) * time.Minute
}

func (c *Config) RelayTimeout() time.Duration {
	return time.Duration(c.Relay.TimeoutSec) * time.Second
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSec) * time.Second
}

// Address returns host:port for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func validatePositive(value int, name string) error {
	if value <= 0 {
		return fmt.Errorf("invalid %s: %d (must be positive)", name, value)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "lahidna"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "LAHIDNA"
)

// Loader resolves a Config from defaults, a YAML file and LAHIDNA_*
// environment variables, in increasing precedence. Flags bound to the
// underlying viper instance win over all three.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so flag
// bindings made by the root command apply.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewIsolatedLoader creates a loader with its own viper instance.
func NewIsolatedLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load reads and validates the configuration. An empty file searches
// SearchPaths for lahidna.yaml and accepts its absence.
func (l *Loader) Load(file string) (*Config, error) {
	cfg, err := l.Read(file)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation.
func (l *Loader) Read(file string) (*Config, error) {
	if file != "" {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", file)
		}
		l.v.SetConfigFile(file)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		for _, p := range SearchPaths() {
			l.v.AddConfigPath(p)
		}
	}

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
	l.registerDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed is the file the last Read loaded, or "".
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// registerDefaults sets every key so AutomaticEnv can override it.
func (l *Loader) registerDefaults() {
	for key, value := range defaultKeys(DefaultConfig()) {
		l.v.SetDefault(key, value)
	}
}

func defaultKeys(d Config) map[string]any {
	return map[string]any{
		"log_level": d.LogLevel,
		"verbose":   d.Verbose,

		"storage.driver": d.Storage.Driver,
		"storage.path":   d.Storage.Path,

		"telemetry.enabled":            d.Telemetry.Enabled,
		"telemetry.api_base":           d.Telemetry.APIBase,
		"telemetry.burst":              d.Telemetry.Burst,
		"telemetry.refill_interval_ms": d.Telemetry.RefillIntervalMS,
		"telemetry.high_water":         d.Telemetry.HighWater,

		"features.url":                  d.Features.URL,
		"features.refresh_interval_min": d.Features.RefreshIntervalMin,
		"features.defaults":             d.Features.Defaults,

		"relay.url":         d.Relay.URL,
		"relay.timeout_sec": d.Relay.TimeoutSec,

		"http.timeout_sec": d.HTTP.TimeoutSec,
		"http.user_agent":  d.HTTP.UserAgent,

		"server.host":                 d.Server.Host,
		"server.port":                 d.Server.Port,
		"server.cors_origin":          d.Server.CORSOrigin,
		"server.timeout_sec":          d.Server.TimeoutSec,
		"server.shutdown_timeout":     d.Server.ShutdownTimeout,
		"server.rate_limit_enabled":   d.Server.RateLimitEnabled,
		"server.requests_per_minute":  d.Server.RequestsPerMinute,
		"server.requests_per_hour":    d.Server.RequestsPerHour,
		"server.max_requests_per_day": d.Server.MaxRequestsPerDay,

		"rewrite.refresh_interval_min": d.Rewrite.RefreshIntervalMin,

		"preferences.more_languages": d.Preferences.MoreLanguages,
		"preferences.less_languages": d.Preferences.LessLanguages,
		"preferences.speed":          d.Preferences.Speed,
		"preferences.collect_stats":  d.Preferences.CollectStats,
	}
}

// WriteDefaults writes the default configuration as YAML to file,
// lahidna.yaml when empty.
func WriteDefaults(file string) error {
	l := NewIsolatedLoader()
	l.registerDefaults()
	if file == "" {
		file = ConfigFileName + ".yaml"
	}
	return l.v.WriteConfigAs(file)
}

// SearchPaths lists the directories searched for lahidna.yaml.
func SearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}

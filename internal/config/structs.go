//nolint:lll
package config

// Config is the complete configuration of lahidna. It is loaded from a
// config file, LAHIDNA_ environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage" json:"storage"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
	Features    FeaturesConfig    `mapstructure:"features" yaml:"features" json:"features"`
	Relay       RelayConfig       `mapstructure:"relay" yaml:"relay" json:"relay"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http" json:"http"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server" json:"server"`
	Rewrite     RewriteConfig     `mapstructure:"rewrite" yaml:"rewrite" json:"rewrite"`
	Preferences PreferencesConfig `mapstructure:"preferences" yaml:"preferences" json:"preferences"`
}

// StorageConfig selects the key/value backend. Driver is "memory" or "sqlite".
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	Path   string `mapstructure:"path" yaml:"path" json:"path"`
}

// TelemetryConfig controls event and error delivery.
type TelemetryConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	APIBase          string `mapstructure:"api_base" yaml:"api_base" json:"api_base"`
	Burst            int    `mapstructure:"burst" yaml:"burst" json:"burst"`
	RefillIntervalMS int    `mapstructure:"refill_interval_ms" yaml:"refill_interval_ms" json:"refill_interval_ms"`
	HighWater        int    `mapstructure:"high_water" yaml:"high_water" json:"high_water"`
}

// FeaturesConfig points at the remote feature flag document. Flags named in
// Defaults are on until the document says otherwise. Without a URL every
// site adapter is on.
type FeaturesConfig struct {
	URL                string   `mapstructure:"url" yaml:"url" json:"url"`
	RefreshIntervalMin int      `mapstructure:"refresh_interval_min" yaml:"refresh_interval_min" json:"refresh_interval_min"`
	Defaults           []string `mapstructure:"defaults" yaml:"defaults" json:"defaults"`
}

// RelayConfig configures the page to background channel.
type RelayConfig struct {
	// URL is a websocket endpoint; empty means an in-process loopback.
	URL        string `mapstructure:"url" yaml:"url" json:"url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
}

// HTTPConfig applies to outgoing requests made by site adapters.
type HTTPConfig struct {
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	UserAgent  string `mapstructure:"user_agent" yaml:"user_agent" json:"user_agent"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string `mapstructure:"host" yaml:"host" json:"host"`
	Port              int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	TimeoutSec        int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimitEnabled  bool   `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int    `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	// MaxRequestsPerDay is the daily quota per client; 0 disables it.
	MaxRequestsPerDay int    `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
}

// RewriteConfig controls how often search rewrite rules are resynced.
type RewriteConfig struct {
	RefreshIntervalMin int `mapstructure:"refresh_interval_min" yaml:"refresh_interval_min" json:"refresh_interval_min"`
}

// PreferencesConfig seeds the synced preference when none is stored.
type PreferencesConfig struct {
	MoreLanguages []string `mapstructure:"more_languages" yaml:"more_languages" json:"more_languages"`
	LessLanguages []string `mapstructure:"less_languages" yaml:"less_languages" json:"less_languages"`
	Speed         string   `mapstructure:"speed" yaml:"speed" json:"speed"`
	CollectStats  bool     `mapstructure:"collect_stats" yaml:"collect_stats" json:"collect_stats"`
}

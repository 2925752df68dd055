package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage = StorageConfig{Driver: DriverSQLite, Path: "state.db"}
	cfg.Relay.URL = "ws://127.0.0.1:8080/relay"
	cfg.Preferences.LessLanguages = []string{"ru", "be"}

	raw, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var back Config
	require.NoError(t, yaml.Unmarshal(raw, &back))
	assert.Equal(t, cfg, back)
}

func TestConfig_YAMLKeys(t *testing.T) {
	raw, err := yaml.Marshal(DefaultConfig())
	require.NoError(t, err)

	var tree map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &tree))
	for _, key := range []string{"log_level", "verbose", "storage", "telemetry", "features", "relay", "http", "server", "rewrite", "preferences"} {
		assert.Contains(t, tree, key)
	}
	server, ok := tree["server"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, server, "requests_per_minute")
	assert.Contains(t, server, "rate_limit_enabled")
}

func TestConfig_JSONTags(t *testing.T) {
	raw, err := json.Marshal(DefaultConfig().Telemetry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"enabled":true,"api_base":"","burst":50,"refill_interval_ms":3000,"high_water":20}`, string(raw))
}

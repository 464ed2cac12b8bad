package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Platform.URL = "https://erp.example.com"
	cfg.Platform.APIKey = "a1b2c3d4e5f6g7h"
	cfg.Platform.APISecret = "z9y8x7w6v5u4t3s"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, []string{"*"}, cfg.Tools.Allow)
	assert.Equal(t, []string{"*"}, cfg.Tools.Permissions)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout())
	assert.Equal(t, 30*time.Second, cfg.PlatformTimeout())
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "@every 1m", cfg.Health.ProbeSchedule)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("defaults lack credentials", func(t *testing.T) {
		err := DefaultConfig().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "APIKey")
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "bad url", mutate: func(c *Config) { c.Platform.URL = "not a url" }, want: "URL"},
		{name: "bad transport", mutate: func(c *Config) { c.Server.Transport = "grpc" }, want: "Transport"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, want: "Level"},
		{name: "zero tool timeout", mutate: func(c *Config) { c.Tools.TimeoutSeconds = 0 }, want: "TimeoutSeconds"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Tracing.SampleRatio = 1.5 }, want: "SampleRatio"},
		{name: "bad probe schedule", mutate: func(c *Config) { c.Health.ProbeSchedule = "every minute" }, want: "probe_schedule"},
		{
			name: "public http without secret",
			mutate: func(c *Config) {
				c.Server.Transport = "http"
				c.Server.Host = "0.0.0.0"
			},
			want: "shared_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("disabled probe skips schedule check", func(t *testing.T) {
		cfg := validConfig()
		cfg.Health.Enabled = false
		cfg.Health.ProbeSchedule = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("loopback http without secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Transport = "http"
		cfg.Server.Host = "localhost"
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfigStringMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Server.SharedSecret = "gateway-secret"

	out := cfg.String()

	assert.NotContains(t, out, "z9y8x7w6v5u4t3s")
	assert.NotContains(t, out, "gateway-secret")
	assert.Contains(t, out, "a1b2c3d4e5f6g7h")
	assert.Equal(t, "z9y8x7w6v5u4t3s", cfg.Platform.APISecret, "String must not mutate the config")
}

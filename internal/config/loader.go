package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/harun/erptools/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. ERPTOOLS_PLATFORM_API_SECRET
const EnvPrefix = "ERPTOOLS"

// Loader handles configuration loading
type Loader struct {
	configPath string

	mu sync.Mutex
	v  *viper.Viper
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file, environment and defaults.
// A missing config file is not an error: defaults and environment still apply.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.v = v
	l.mu.Unlock()

	return cfg, nil
}

// Watch reloads the config file on change and passes the new config to onChange.
// Load must be called first. Invalid reloads are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) error {
	l.mu.Lock()
	v := l.v
	l.mu.Unlock()

	if v == nil {
		return fmt.Errorf("config not loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("Config reload failed")
			observability.RecordConfigReload(false)
			return
		}
		if err := cfg.Validate(); err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("Reloaded config is invalid, keeping previous")
			observability.RecordConfigReload(false)
			return
		}

		log.Info().Str("file", e.Name).Msg("Config reloaded")
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".erptools", "erptools.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("platform.url", cfg.Platform.URL)
	v.SetDefault("platform.api_key", cfg.Platform.APIKey)
	v.SetDefault("platform.api_secret", cfg.Platform.APISecret)
	v.SetDefault("platform.timeout_seconds", cfg.Platform.TimeoutSeconds)
	v.SetDefault("platform.default_company", cfg.Platform.DefaultCompany)
	v.SetDefault("platform.tls_skip_verify", cfg.Platform.TLSSkipVerify)

	v.SetDefault("server.transport", cfg.Server.Transport)
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.shared_secret", cfg.Server.SharedSecret)
	v.SetDefault("server.rate_limit_per_minute", cfg.Server.RateLimitPerMinute)
	v.SetDefault("server.max_concurrent", cfg.Server.MaxConcurrent)
	v.SetDefault("server.max_body_bytes", cfg.Server.MaxBodyBytes)

	v.SetDefault("tools.enabled", cfg.Tools.Enabled)
	v.SetDefault("tools.allow", cfg.Tools.Allow)
	v.SetDefault("tools.deny", cfg.Tools.Deny)
	v.SetDefault("tools.permissions", cfg.Tools.Permissions)
	v.SetDefault("tools.timeout_seconds", cfg.Tools.TimeoutSeconds)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("audit.enabled", cfg.Audit.Enabled)
	v.SetDefault("audit.file", cfg.Audit.File)

	v.SetDefault("health.enabled", cfg.Health.Enabled)
	v.SetDefault("health.probe_schedule", cfg.Health.ProbeSchedule)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", cfg.Tracing.SampleRatio)
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents the main erptools configuration
type Config struct {
	// ERP platform connection
	Platform PlatformConfig `json:"platform" mapstructure:"platform"`

	// Transport server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tool registration and access
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Audit log
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Platform health probe
	Health HealthConfig `json:"health" mapstructure:"health"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// PlatformConfig holds the ERP platform REST API settings
type PlatformConfig struct {
	URL            string `json:"url" mapstructure:"url" validate:"required,url"`
	APIKey         string `json:"api_key" mapstructure:"api_key" validate:"required"`
	APISecret      string `json:"api_secret" mapstructure:"api_secret" validate:"required"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds" validate:"min=1,max=300"`
	DefaultCompany string `json:"default_company" mapstructure:"default_company"` // empty: read from Global Defaults
	TLSSkipVerify  bool   `json:"tls_skip_verify" mapstructure:"tls_skip_verify"`
}

// ServerConfig holds transport settings
type ServerConfig struct {
	Transport          string `json:"transport" mapstructure:"transport" validate:"oneof=stdio http"`
	Host               string `json:"host" mapstructure:"host" validate:"required_if=Transport http"`
	Port               int    `json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	SharedSecret       string `json:"shared_secret" mapstructure:"shared_secret"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute" validate:"min=0"`
	MaxConcurrent      int    `json:"max_concurrent" mapstructure:"max_concurrent" validate:"min=0"`
	MaxBodyBytes       int64  `json:"max_body_bytes" mapstructure:"max_body_bytes" validate:"min=1024"`
}

// ToolsConfig controls which tools are exposed and what callers may do
type ToolsConfig struct {
	Enabled        []string `json:"enabled" mapstructure:"enabled"`         // empty: all tools
	Allow          []string `json:"allow" mapstructure:"allow"`             // policy allow list (* for all)
	Deny           []string `json:"deny" mapstructure:"deny"`               // policy deny list, overrides allow
	Permissions    []string `json:"permissions" mapstructure:"permissions"` // granted document types (* for all)
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds" validate:"min=1,max=600"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format    string `json:"format" mapstructure:"format" validate:"oneof=console json"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"` // empty: stderr
}

// HealthConfig holds the platform probe schedule
type HealthConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	ProbeSchedule string `json:"probe_schedule" mapstructure:"probe_schedule"` // cron spec, e.g. "@every 1m"
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			URL:            "http://localhost:8000",
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Transport:          "stdio",
			Host:               "127.0.0.1",
			Port:               8080,
			RateLimitPerMinute: 120,
			MaxConcurrent:      10,
			MaxBodyBytes:       1 << 20,
		},
		Tools: ToolsConfig{
			Enabled:        []string{},
			Allow:          []string{"*"},
			Deny:           []string{},
			Permissions:    []string{"*"},
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "console",
			Redaction: true,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Health: HealthConfig{
			Enabled:       true,
			ProbeSchedule: "@every 1m",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "erptools",
			SampleRatio: 1,
		},
	}
}

// PlatformTimeout returns the platform request timeout
func (c *Config) PlatformTimeout() time.Duration {
	return time.Duration(c.Platform.TimeoutSeconds) * time.Second
}

// ToolTimeout returns the per-execution tool timeout
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// String returns a JSON representation of the config with credentials masked
func (c *Config) String() string {
	masked := *c
	if masked.Platform.APISecret != "" {
		masked.Platform.APISecret = "********"
	}
	if masked.Server.SharedSecret != "" {
		masked.Server.SharedSecret = "********"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	v := NewValidator()
	if err := v.ValidateProbeSchedule(c.Health.ProbeSchedule); c.Health.Enabled && err != nil {
		return err
	}
	if c.Server.Transport == "http" && c.Server.SharedSecret == "" && !isLoopback(c.Server.Host) {
		return fmt.Errorf("server.shared_secret is required when serving http on non-loopback host %s", c.Server.Host)
	}

	return nil
}

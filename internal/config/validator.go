package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var credentialPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidateCredential validates a platform API key or secret.
// The platform issues alphanumeric credentials; anything else is a paste error.
func (v *Validator) ValidateCredential(value, field string) error {
	if value == "" {
		return fmt.Errorf("platform %s cannot be empty", field)
	}
	if !credentialPattern.MatchString(value) {
		return fmt.Errorf("invalid platform %s format (must be alphanumeric)", field)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateTransport validates the server transport
func (v *Validator) ValidateTransport(transport string) error {
	switch transport {
	case "stdio", "http":
		return nil
	}
	return fmt.Errorf("invalid transport: %s (must be one of: stdio, http)", transport)
}

// ValidateProbeSchedule validates the health probe cron spec
func (v *Validator) ValidateProbeSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return fmt.Errorf("health.probe_schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid health.probe_schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateToolNames checks that every name refers to a known tool. "*" is always accepted.
func (v *Validator) ValidateToolNames(field string, names, known []string) error {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	var unknown []string
	for _, name := range names {
		if name == "*" || knownSet[name] {
			continue
		}
		unknown = append(unknown, name)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%s: unknown tools: %s", field, strings.Join(unknown, ", "))
	}
	return nil
}

// ValidateConfig performs comprehensive validation.
// knownTools is the catalog of tool names; nil skips tool name checks.
func (v *Validator) ValidateConfig(cfg *Config, knownTools []string) []error {
	var errors []error

	if err := cfg.Validate(); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateCredential(cfg.Platform.APIKey, "api_key"); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateCredential(cfg.Platform.APISecret, "api_secret"); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTransport(cfg.Server.Transport); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if knownTools != nil {
		if err := v.ValidateToolNames("tools.enabled", cfg.Tools.Enabled, knownTools); err != nil {
			errors = append(errors, err)
		}
		if err := v.ValidateToolNames("tools.allow", cfg.Tools.Allow, knownTools); err != nil {
			errors = append(errors, err)
		}
		if err := v.ValidateToolNames("tools.deny", cfg.Tools.Deny, knownTools); err != nil {
			errors = append(errors, err)
		}
	}

	for i, perm := range cfg.Tools.Permissions {
		if strings.TrimSpace(perm) == "" {
			errors = append(errors, fmt.Errorf("tools.permissions[%d] cannot be empty", i))
		}
	}

	return errors
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

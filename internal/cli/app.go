package cli

import (
	"fmt"
	"time"

	"github.com/harun/erptools/internal/config"
	"github.com/harun/erptools/internal/logger"
	"github.com/harun/erptools/internal/observability"
	"github.com/harun/erptools/pkg/frappe"
	"github.com/harun/erptools/pkg/toolexecutor"
	"github.com/harun/erptools/pkg/tools"
	"github.com/rs/zerolog/log"
)

// app holds the wired components shared by serve and the one-shot tool commands
type app struct {
	cfg      *config.Config
	loader   *config.Loader
	log      *logger.Logger
	client   *frappe.Client
	executor *toolexecutor.ToolExecutor
	tools    []string
}

// loadConfig loads and validates the config, applying the --log-level override
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// newApp builds the logger, platform client and tool executor from config
func newApp() (*app, error) {
	cfg, loader, err := loadConfig()
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		File:      cfg.Logging.File,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	if err := observability.InitAuditLogger(cfg.Audit.File, cfg.Audit.Enabled); err != nil {
		lg.Close()
		return nil, fmt.Errorf("initializing audit log: %w", err)
	}

	client, err := frappe.NewClient(frappe.Config{
		BaseURL:        cfg.Platform.URL,
		APIKey:         cfg.Platform.APIKey,
		APISecret:      cfg.Platform.APISecret,
		Timeout:        cfg.PlatformTimeout(),
		TLSSkipVerify:  cfg.Platform.TLSSkipVerify,
		DefaultCompany: cfg.Platform.DefaultCompany,
		UserAgent:      "erptools/" + version,
	})
	if err != nil {
		lg.Close()
		return nil, fmt.Errorf("creating platform client: %w", err)
	}

	executor := toolexecutor.New()
	executor.SetDefaults(executionDefaults(cfg))

	registered, err := tools.Register(executor, tools.Env{Platform: client, Now: time.Now}, cfg.Tools.Enabled)
	if err != nil {
		lg.Close()
		return nil, err
	}
	observability.SetRegisteredTools(len(registered))

	log.Info().
		Str("platform", cfg.Platform.URL).
		Int("tools", len(registered)).
		Msg("erptools initialized")

	return &app{
		cfg:      cfg,
		loader:   loader,
		log:      lg,
		client:   client,
		executor: executor,
		tools:    registered,
	}, nil
}

// executionDefaults maps the tools section of the config onto executor defaults
func executionDefaults(cfg *config.Config) toolexecutor.ExecutionContext {
	policy := &toolexecutor.ToolPolicy{
		Allow: cfg.Tools.Allow,
		Deny:  cfg.Tools.Deny,
	}
	_ = policy.Validate()

	return toolexecutor.ExecutionContext{
		Grants:  cfg.Tools.Permissions,
		Policy:  policy,
		Timeout: cfg.ToolTimeout(),
	}
}

// applyReload pushes reloadable settings from a changed config file into the running app
func (a *app) applyReload(next *config.Config) {
	if logLevel != "" {
		next.Logging.Level = logLevel
	}
	if err := a.log.SetLevel(next.Logging.Level); err != nil {
		log.Warn().Err(err).Msg("Ignoring invalid log level from reloaded config")
	}
	a.executor.SetDefaults(executionDefaults(next))
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Close()
	}
	_ = observability.GetAuditLogger().Close()
}

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harun/erptools/internal/config"
	"github.com/harun/erptools/internal/health"
	"github.com/harun/erptools/internal/observability"
	"github.com/harun/erptools/internal/tracing"
	"github.com/harun/erptools/pkg/gateway"
	"github.com/harun/erptools/pkg/mcpserver"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const probeTimeout = 10 * time.Second

var (
	serveTransport string
	servePort      int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ERP tools to agents",
	Long: `Serve the ERP tools over the configured transport.

  stdio  MCP over stdin/stdout, for agents that launch erptools as a subprocess
  http   JSON-RPC on /rpc and /ws, MCP on /mcp, plus /healthz and /metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "transport override (stdio, http)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "http port override")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if serveTransport != "" {
		a.cfg.Server.Transport = serveTransport
	}
	if servePort != 0 {
		a.cfg.Server.Port = servePort
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if a.cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(a.cfg.Tracing.ServiceName, version, a.cfg.Tracing.SampleRatio); err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracing.ShutdownOpenTelemetry(ctx)
		}()
	}
	observability.EnsureRegistered()

	mcpSrv, err := mcpserver.New(a.executor, mcpserver.Options{Name: "erptools", Version: version})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var prober *health.Prober
	if a.cfg.Health.Enabled {
		prober, err = health.NewProber(a.client, a.cfg.Health.ProbeSchedule, probeTimeout)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := prober.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			prober.Stop()
			return nil
		})
	}

	watchConfig(gctx, a)

	switch a.cfg.Server.Transport {
	case "stdio":
		g.Go(func() error {
			defer cancel()
			return mcpSrv.ServeStdio(gctx, os.Stdin, os.Stdout)
		})
	case "http":
		var reporter gateway.StatusReporter
		if prober != nil {
			reporter = prober
		}
		gw, err := gateway.NewServer(gateway.Config{
			Host:               a.cfg.Server.Host,
			Port:               a.cfg.Server.Port,
			SharedSecret:       a.cfg.Server.SharedSecret,
			RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
			MaxConcurrent:      a.cfg.Server.MaxConcurrent,
			MaxBodyBytes:       a.cfg.Server.MaxBodyBytes,
			TickInterval:       30 * time.Second,
			Executor:           a.executor,
			Health:             reporter,
			MCPHandler:         mcpSrv.HTTPHandler(),
			Logger:             a.log.GetZerolog(),
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return gw.Serve(gctx)
		})
	default:
		return fmt.Errorf("unknown transport %q", a.cfg.Server.Transport)
	}

	log.Info().
		Str("transport", a.cfg.Server.Transport).
		Strs("tools", a.tools).
		Msg("erptools serving")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("erptools stopped")
	return nil
}

// watchConfig applies config file edits to the running server
func watchConfig(ctx context.Context, a *app) {
	err := a.loader.Watch(func(next *config.Config) {
		a.applyReload(next)
		observability.RecordConfigReload(true)
		observability.RecordConfigAudit(ctx, "config.reload", "file", map[string]interface{}{
			"path":        a.loader.GetConfigPath(),
			"log_level":   next.Logging.Level,
			"allow":       next.Tools.Allow,
			"deny":        next.Tools.Deny,
			"permissions": next.Tools.Permissions,
		})
	})
	if err != nil {
		log.Debug().Err(err).Msg("Config hot reload disabled")
	}
}

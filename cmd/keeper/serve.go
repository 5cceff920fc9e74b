package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/archive/retention"
	"archival-hq/keeper/pkg/cli"
	"archival-hq/keeper/pkg/config"
	"archival-hq/keeper/pkg/engine"
	"archival-hq/keeper/pkg/server"
	"archival-hq/keeper/pkg/telemetry/health"
)

var serveFlags struct {
	listenAddress string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled retention sweeps and the operations endpoint",
	Long: `Run Keeper as a long-lived process.

serve recovers jobs left unfinished by a previous process, runs retention
sweeps on the configured cron schedule, reloads the policy file when it
changes (retention.watch), and exposes /health, /ready, /version and the
Prometheus metrics endpoint.

Examples:
  # Start with the default config
  keeper serve

  # Override the operations listen address
  keeper serve --listen 0.0.0.0:9464

  # Validate config without starting
  keeper serve --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override the operations listen address")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Telemetry.Metrics.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Keeper v%s\n", Version)

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	e, err := engine.New(cfg, engine.WithVersion(Version))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Jobs.Timeout)
		defer cancel()
		if err := e.Close(closeCtx); err != nil {
			slog.Error("engine did not close cleanly", "error", err)
		}
	}()

	recovered, err := e.Recover(ctx)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	if recovered > 0 {
		slog.Warn("failed jobs left unfinished by a previous process", "jobs", recovered)
	}

	scheduler := retention.NewScheduler(e.Enforcer(), cfg.Retention.Schedule)
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	defer scheduler.Stop()
	if next := scheduler.NextRun(); next != nil {
		fmt.Fprintf(out, "✓ Retention sweeps scheduled (%s, next %s)\n", cfg.Retention.Schedule, formatTime(*next))
	}

	if cfg.Retention.Watch && cfg.Retention.PolicyFile != "" {
		watcher, err := retention.NewPolicyWatcher(e.Policies())
		if err != nil {
			return cli.NewCommandError("serve", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("policy watcher stopped", "error", err)
			}
		}()
		defer func() { _ = watcher.Stop() }()
		fmt.Fprintf(out, "✓ Watching %s\n", cfg.Retention.PolicyFile)
	}

	if cfg.Telemetry.Metrics.ListenAddress == "" {
		fmt.Fprintln(out, "\nPress Ctrl+C to stop")
		<-ctx.Done()
		fmt.Fprintln(out, "\nShutting down...")
		return nil
	}

	srv := newOpsServer(cfg, e)
	fmt.Fprintf(out, "✓ Operations endpoint: http://%s/health\n", cfg.Telemetry.Metrics.ListenAddress)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	// Start returns after a graceful shutdown once ctx is cancelled.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func newOpsServer(cfg *config.Config, e *engine.Engine) *server.Server {
	checker := health.New(0)
	checker.RegisterCheck("engine", e.Ping)

	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		metricsHandler = e.Collector().Handler()
	}

	return server.New(server.Config{
		ListenAddress: cfg.Telemetry.Metrics.ListenAddress,
		MetricsPath:   cfg.Telemetry.Metrics.Path,
		Version:       Version,
		Commit:        GitCommit,
		BuildTime:     BuildDate,
		Tracer:        e.Tracer(),
	}, checker, metricsHandler)
}

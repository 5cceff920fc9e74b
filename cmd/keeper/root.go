package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/cli"
	"archival-hq/keeper/pkg/config"
	"archival-hq/keeper/pkg/engine"
	"archival-hq/keeper/pkg/security/access"
	"archival-hq/keeper/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	actorID      string
	actorRoles   string
	outputFormat string
)

// closeTimeout bounds how long a one-shot command waits for in-flight jobs
// when it exits.
const closeTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Keeper - archival and retention engine",
	Long: `Keeper moves operational records into durable, verifiable archives and
deletes them again once their retention period has passed.

Archives are compressed, checksummed and optionally encrypted and signed.
Legal holds block deletion regardless of retention, and every create,
retrieve, verify, delete and hold is written to the audit trail.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code derived from the
// error kind.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", "", "caller id (default $KEEPER_ACTOR)")
	rootCmd.PersistentFlags().StringVar(&actorRoles, "roles", "", "comma-separated caller roles (default $KEEPER_ROLES)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, csv")
}

// loadConfig reads the configuration file. A missing file is only an error
// when --config was given explicitly; otherwise the defaults apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.DefaultConfig()
		err = config.Validate(cfg)
	}
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}

	logCfg := logging.FromConfig(cfg.Telemetry.Logging)
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)
	return cfg, nil
}

// caller resolves the identity a command acts as.
func caller() access.Identity {
	id := actorID
	if id == "" {
		id = os.Getenv("KEEPER_ACTOR")
	}
	roles := actorRoles
	if roles == "" {
		roles = os.Getenv("KEEPER_ROLES")
	}
	return access.Identity{ID: strings.TrimSpace(id), Roles: splitList(roles)}
}

// withEngine opens an engine for the duration of fn. The context passed to
// fn is cancelled on SIGINT or SIGTERM.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	e, err := engine.New(cfg, engine.WithVersion(Version))
	if err != nil {
		return err
	}

	ctx = logging.WithActor(ctx, caller().String())
	runErr := fn(ctx, e)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := e.Close(closeCtx); err != nil {
		slog.Warn("engine did not close cleanly", "error", err)
	}
	return runErr
}

// render writes v in the format chosen by --output.
func render(cmd *cobra.Command, v any) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package main

import (
	"context"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/engine"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive and retention statistics",
}

var statsMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show storage, archival and retention metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
			m, err := e.Metrics(ctx, engine.MetricsRequest{Caller: caller()})
			if err != nil {
				return err
			}
			return render(cmd, metricsTable(m))
		})
	},
}

var statsStorageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Show storage use per entity type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
			rows, err := e.StorageBreakdown(ctx, engine.StorageBreakdownRequest{Caller: caller()})
			if err != nil {
				return err
			}
			return render(cmd, storageTable(rows))
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsMetricsCmd, statsStorageCmd)
}

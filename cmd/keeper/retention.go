package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/engine"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Inspect and enforce retention policies",
	Long: `Inspect and enforce retention policies.

Subcommands:
  policies - list the effective retention policies
  enforce  - delete archives whose retention deadline has passed

Archives under legal hold are never deleted.`,
}

var retentionPoliciesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List retention policies",
	Args:  cobra.NoArgs,
	RunE:  runRetentionPolicies,
}

var enforceFlags struct {
	entity string
	dryRun bool
}

var retentionEnforceCmd = &cobra.Command{
	Use:   "enforce",
	Short: "Run a retention sweep",
	Long: `Delete every archive whose retention deadline has passed and that is not
under legal hold. Each deletion is audited.

Examples:
  # See what would be deleted
  keeper retention enforce --dry-run

  # Sweep a single entity type
  keeper retention enforce --entity samples`,
	Args: cobra.NoArgs,
	RunE: runRetentionEnforce,
}

func init() {
	rootCmd.AddCommand(retentionCmd)
	retentionCmd.AddCommand(retentionPoliciesCmd, retentionEnforceCmd)

	retentionEnforceCmd.Flags().StringVar(&enforceFlags.entity, "entity", "", "only this entity type")
	retentionEnforceCmd.Flags().BoolVar(&enforceFlags.dryRun, "dry-run", false, "report eligible archives without deleting them")
	_ = retentionEnforceCmd.RegisterFlagCompletionFunc("entity", completeEntityTypes)
}

func runRetentionPolicies(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		policies, err := e.ListRetentionPolicies(ctx, engine.ListRetentionPoliciesRequest{Caller: caller()})
		if err != nil {
			return err
		}
		return render(cmd, policiesTable(policies))
	})
}

func runRetentionEnforce(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		res, err := e.EnforceRetention(ctx, engine.EnforceRetentionRequest{
			Caller:     caller(),
			EntityType: enforceFlags.entity,
			DryRun:     enforceFlags.dryRun,
		})
		if err != nil {
			return err
		}
		if err := render(cmd, enforceTable(res)); err != nil {
			return err
		}
		for _, f := range res.Failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to delete %s: %s\n", f.ArchiveID, f.Error)
		}
		if n := len(res.Failures); n > 0 {
			return fmt.Errorf("%d of %d eligible archives could not be deleted", n, res.EligibleForDeletion)
		}
		return nil
	})
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/engine"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect archival jobs",
	Long: `Inspect archival jobs.

Subcommands:
  list - list jobs, newest first
  get  - show one job
  wait - block until a job finishes`,
}

var jobsListFlags struct {
	entity string
	status string
	active bool
	limit  int
	offset int
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsWaitFlags struct {
	timeout  time.Duration
	interval time.Duration
}

var jobsWaitCmd = &cobra.Command{
	Use:   "wait <job-id>",
	Short: "Wait for a job to finish",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsWait,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd, jobsWaitCmd)

	jobsListCmd.Flags().StringVar(&jobsListFlags.entity, "entity", "", "only this entity type")
	jobsListCmd.Flags().StringVar(&jobsListFlags.status, "status", "", "only this status: queued, running, completed, failed")
	jobsListCmd.Flags().BoolVar(&jobsListFlags.active, "active", false, "only queued or running jobs")
	jobsListCmd.Flags().IntVar(&jobsListFlags.limit, "limit", 0, "page size (0 = configured default)")
	jobsListCmd.Flags().IntVar(&jobsListFlags.offset, "offset", 0, "jobs to skip")
	jobsListCmd.MarkFlagsMutuallyExclusive("status", "active")
	_ = jobsListCmd.RegisterFlagCompletionFunc("entity", completeEntityTypes)
	_ = jobsListCmd.RegisterFlagCompletionFunc("status", completeJobStatuses)

	jobsWaitCmd.Flags().DurationVar(&jobsWaitFlags.timeout, "timeout", 30*time.Minute, "how long to wait")
	jobsWaitCmd.Flags().DurationVar(&jobsWaitFlags.interval, "interval", 2*time.Second, "how often to poll the job history")
}

func runJobsList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		list, err := e.ListJobs(ctx, engine.ListJobsRequest{
			Caller:     caller(),
			EntityType: jobsListFlags.entity,
			Status:     archive.JobStatus(jobsListFlags.status),
			ActiveOnly: jobsListFlags.active,
			Limit:      jobsListFlags.limit,
			Offset:     jobsListFlags.offset,
		})
		if err != nil {
			return err
		}
		return render(cmd, jobsTable(list))
	})
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		job, err := e.GetJob(ctx, engine.GetJobRequest{Caller: caller(), JobID: args[0]})
		if err != nil {
			return err
		}
		return render(cmd, jobsTable([]*archive.Job{job}))
	})
}

// runJobsWait polls the job history, since the job usually runs inside
// another process ("keeper serve") sharing the same history store.
func runJobsWait(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		ctx, cancel := context.WithTimeout(ctx, jobsWaitFlags.timeout)
		defer cancel()

		interval := jobsWaitFlags.interval
		if interval <= 0 {
			interval = 2 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			job, err := e.WaitJob(ctx, engine.WaitJobRequest{Caller: caller(), JobID: args[0]})
			if err != nil {
				return err
			}
			if job.Status.Terminal() {
				return render(cmd, jobsTable([]*archive.Job{job}))
			}
			select {
			case <-ctx.Done():
				return archive.NewError(archive.KindInternal, "jobs wait", job.ID,
					fmt.Errorf("job still %s: %w", job.Status, ctx.Err()))
			case <-ticker.C:
			}
		}
	})
}

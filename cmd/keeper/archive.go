package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/engine"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Create, inspect, retrieve and govern archives",
	Long: `Create, inspect, retrieve and govern archives.

Subcommands:
  create    - package live records into a new archive
  list      - list catalog entries, newest first
  get       - show one catalog entry
  search    - free-text search over archive metadata
  retrieve  - read an archive's records back
  verify    - check checksum, signature and decryptability
  export    - export catalog metadata as JSON or CSV
  hold      - place a legal hold
  release   - release a legal hold
  override  - change an archive's retention deadline`,
}

var createFlags struct {
	filters filterFlags
	retain  string
	wait    bool
	timeout time.Duration
}

var archiveCreateCmd = &cobra.Command{
	Use:   "create <entity-type>",
	Short: "Archive live records of an entity type",
	Long: `Submit an archival job for the live records of an entity type that match
the filters and are old enough under the entity's retention policy.

The command returns once the job is queued unless --wait is given.

Examples:
  # Archive all closed cases
  keeper archive create cases --attr status=closed

  # Archive January's samples and keep them for 10 years
  keeper archive create samples --from 2026-01-01 --to 2026-01-31 --retain 3650d --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runArchiveCreate,
}

var listFlags struct {
	entity        string
	createdAfter  string
	createdBefore string
	held          bool
	notHeld       bool
	limit         int
	offset        int
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives",
	Args:  cobra.NoArgs,
	RunE:  runArchiveList,
}

var archiveGetCmd = &cobra.Command{
	Use:   "get <archive-id>",
	Short: "Show one archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveGet,
}

var searchFlags struct {
	entity string
	limit  int
	offset int
}

var archiveSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search archive metadata",
	Long: `Case-insensitive substring search over archive ids, entity types,
creators, checksums, filters and legal hold reasons.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchiveSearch,
}

var retrieveFlags struct {
	filters filterFlags
	limit   int
	data    bool
}

var archiveRetrieveCmd = &cobra.Command{
	Use:   "retrieve <archive-id>",
	Short: "Read an archive's records",
	Long: `Read an archive back, check it against its catalog checksum and print
the matching records. Use --output json to include record payloads.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchiveRetrieve,
}

var archiveVerifyCmd = &cobra.Command{
	Use:   "verify <archive-id>",
	Short: "Verify an archive's integrity",
	Long: `Recompute the payload checksum, check the signature of signed archives
and the decryptability of encrypted ones. Exits with status 6 when any check
fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchiveVerify,
}

var exportFlags struct {
	format string
	entity string
	out    string
	limit  int
}

var archiveExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export catalog metadata",
	Long: `Export catalog metadata (never payloads) as a JSON array or CSV.

Examples:
  keeper archive export --format csv --entity cases --out cases.csv`,
	Args: cobra.NoArgs,
	RunE: runArchiveExport,
}

var holdFlags struct {
	reason string
}

var archiveHoldCmd = &cobra.Command{
	Use:   "hold <archive-id>",
	Short: "Place a legal hold",
	Long:  `Place a legal hold. A held archive is never deleted by retention.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveHold,
}

var releaseFlags struct {
	reason string
}

var archiveReleaseCmd = &cobra.Command{
	Use:   "release <archive-id>",
	Short: "Release a legal hold",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveRelease,
}

var overrideFlags struct {
	until      string
	indefinite bool
}

var archiveOverrideCmd = &cobra.Command{
	Use:   "override <archive-id>",
	Short: "Override an archive's retention deadline",
	Long: `Replace the retention deadline of one archive, or remove it with
--indefinite. A legal hold still blocks deletion after an override.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchiveOverride,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(
		archiveCreateCmd, archiveListCmd, archiveGetCmd, archiveSearchCmd,
		archiveRetrieveCmd, archiveVerifyCmd, archiveExportCmd,
		archiveHoldCmd, archiveReleaseCmd, archiveOverrideCmd,
	)

	createFlags.filters.register(archiveCreateCmd, true)
	archiveCreateCmd.Flags().StringVar(&createFlags.retain, "retain", "", "retention period override, e.g. 90d or 2160h")
	archiveCreateCmd.Flags().BoolVar(&createFlags.wait, "wait", false, "wait for the job to finish")
	archiveCreateCmd.Flags().DurationVar(&createFlags.timeout, "timeout", 30*time.Minute, "how long --wait waits")

	archiveListCmd.Flags().StringVar(&listFlags.entity, "entity", "", "only this entity type")
	archiveListCmd.Flags().StringVar(&listFlags.createdAfter, "created-after", "", "only archives created at or after this time")
	archiveListCmd.Flags().StringVar(&listFlags.createdBefore, "created-before", "", "only archives created at or before this time")
	archiveListCmd.Flags().BoolVar(&listFlags.held, "held", false, "only archives under legal hold")
	archiveListCmd.Flags().BoolVar(&listFlags.notHeld, "not-held", false, "only archives without a legal hold")
	archiveListCmd.Flags().IntVar(&listFlags.limit, "limit", 0, "page size (0 = configured default)")
	archiveListCmd.Flags().IntVar(&listFlags.offset, "offset", 0, "entries to skip")
	archiveListCmd.MarkFlagsMutuallyExclusive("held", "not-held")

	archiveSearchCmd.Flags().StringVar(&searchFlags.entity, "entity", "", "only this entity type")
	archiveSearchCmd.Flags().IntVar(&searchFlags.limit, "limit", 0, "page size (0 = configured default)")
	archiveSearchCmd.Flags().IntVar(&searchFlags.offset, "offset", 0, "entries to skip")

	retrieveFlags.filters.register(archiveRetrieveCmd, false)
	archiveRetrieveCmd.Flags().IntVar(&retrieveFlags.limit, "limit", 0, "return at most this many records (0 = all)")

	archiveExportCmd.Flags().StringVar(&exportFlags.format, "format", "json", "export format: json, csv")
	archiveExportCmd.Flags().StringVar(&exportFlags.entity, "entity", "", "only this entity type")
	archiveExportCmd.Flags().StringVar(&exportFlags.out, "out", "", "write to this file instead of stdout")
	archiveExportCmd.Flags().IntVar(&exportFlags.limit, "limit", 0, "export at most this many archives (0 = all)")

	archiveHoldCmd.Flags().StringVar(&holdFlags.reason, "reason", "", "why the archive is held (required)")
	_ = archiveHoldCmd.MarkFlagRequired("reason")

	archiveReleaseCmd.Flags().StringVar(&releaseFlags.reason, "reason", "", "why the hold is released")

	archiveOverrideCmd.Flags().StringVar(&overrideFlags.until, "until", "", "new retention deadline (RFC 3339 or YYYY-MM-DD)")
	archiveOverrideCmd.Flags().BoolVar(&overrideFlags.indefinite, "indefinite", false, "keep the archive indefinitely")
	archiveOverrideCmd.MarkFlagsMutuallyExclusive("until", "indefinite")
	archiveOverrideCmd.MarkFlagsOneRequired("until", "indefinite")

	archiveCreateCmd.ValidArgsFunction = completeEntityArg
	for _, c := range []*cobra.Command{archiveListCmd, archiveSearchCmd, archiveExportCmd} {
		_ = c.RegisterFlagCompletionFunc("entity", completeEntityTypes)
	}
	_ = archiveExportCmd.RegisterFlagCompletionFunc("format", completeExportFormats)
}

func runArchiveCreate(cmd *cobra.Command, args []string) error {
	filters, err := createFlags.filters.filters()
	if err != nil {
		return err
	}
	req := engine.CreateArchiveRequest{
		Caller:     caller(),
		EntityType: args[0],
		Filters:    filters,
	}
	if createFlags.retain != "" {
		d, err := parseDuration(createFlags.retain)
		if err != nil {
			return archive.Validationf("archive create", "--retain: %v", err)
		}
		req.RetentionOverride = &d
	}

	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		submitted, err := e.CreateArchive(ctx, req)
		if err != nil {
			return err
		}
		job := submitted.Job
		if submitted.Joined {
			fmt.Fprintf(cmd.ErrOrStderr(), "Joined in-flight job %s\n", job.ID)
		}

		// A one-shot process must wait anyway: closing the engine drains
		// in-flight jobs.
		if createFlags.wait {
			waitCtx, cancel := context.WithTimeout(ctx, createFlags.timeout)
			defer cancel()
			if job, err = e.WaitJob(waitCtx, engine.WaitJobRequest{Caller: req.Caller, JobID: job.ID}); err != nil {
				return err
			}
		}

		if err := render(cmd, jobsTable([]*archive.Job{job})); err != nil {
			return err
		}
		if job.Status == archive.JobFailed {
			return archive.NewError(archive.KindInternal, "archive create", job.ID, errors.New(job.ErrorDetail))
		}
		return nil
	})
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	q := archive.ListQuery{
		EntityType: listFlags.entity,
		Limit:      listFlags.limit,
		Offset:     listFlags.offset,
	}
	var err error
	if q.CreatedFrom, err = parseTimeFlag("created-after", listFlags.createdAfter); err != nil {
		return err
	}
	if q.CreatedTo, err = parseTimeFlag("created-before", listFlags.createdBefore); err != nil {
		return err
	}
	switch {
	case listFlags.held:
		held := true
		q.LegalHold = &held
	case listFlags.notHeld:
		held := false
		q.LegalHold = &held
	}

	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		page, err := e.ListArchives(ctx, engine.ListArchivesRequest{Caller: caller(), Query: q})
		if err != nil {
			return err
		}
		return render(cmd, archivesTable(page))
	})
}

func runArchiveGet(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		rec, err := e.GetArchive(ctx, engine.GetArchiveRequest{Caller: caller(), ArchiveID: args[0]})
		if err != nil {
			return err
		}
		return render(cmd, archiveTable(rec))
	})
}

func runArchiveSearch(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		page, err := e.SearchArchives(ctx, engine.SearchArchivesRequest{
			Caller:     caller(),
			Text:       args[0],
			EntityType: searchFlags.entity,
			Limit:      searchFlags.limit,
			Offset:     searchFlags.offset,
		})
		if err != nil {
			return err
		}
		return render(cmd, archivesTable(page))
	})
}

func runArchiveRetrieve(cmd *cobra.Command, args []string) error {
	filters, err := retrieveFlags.filters.filters()
	if err != nil {
		return err
	}
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		res, err := e.RetrieveArchive(ctx, engine.RetrieveArchiveRequest{
			Caller:    caller(),
			ArchiveID: args[0],
			Filters:   filters,
			Limit:     retrieveFlags.limit,
		})
		if err != nil {
			return err
		}
		if err := render(cmd, recordsTable(res)); err != nil {
			return err
		}
		if res.Truncated {
			fmt.Fprintf(cmd.ErrOrStderr(), "Showing %d of %d matching records\n", len(res.Records), res.Matched)
		}
		return nil
	})
}

func runArchiveVerify(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		report, err := e.VerifyArchive(ctx, engine.VerifyArchiveRequest{Caller: caller(), ArchiveID: args[0]})
		if err != nil {
			return err
		}
		if err := render(cmd, verifyTable(report)); err != nil {
			return err
		}
		if !report.Passed() {
			return archive.NewError(archive.KindIntegrity, "archive verify", report.ArchiveID,
				errors.New(strings.Join(report.Issues, "; ")))
		}
		return nil
	})
}

func runArchiveExport(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (err error) {
		var w io.Writer = cmd.OutOrStdout()
		if exportFlags.out != "" {
			f, err := os.Create(exportFlags.out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportFlags.out, err)
			}
			defer func() {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
			}()
			w = f
		}

		n, err := e.ExportMetadata(ctx, engine.ExportMetadataRequest{
			Caller: caller(),
			Format: exportFlags.format,
			Query:  archive.ListQuery{EntityType: exportFlags.entity, Limit: exportFlags.limit},
			Writer: w,
		})
		if err != nil {
			return err
		}
		if exportFlags.out != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d archives to %s\n", n, exportFlags.out)
		}
		return nil
	})
}

func runArchiveHold(cmd *cobra.Command, args []string) error {
	return setHold(cmd, args[0], true, holdFlags.reason)
}

func runArchiveRelease(cmd *cobra.Command, args []string) error {
	return setHold(cmd, args[0], false, releaseFlags.reason)
}

func setHold(cmd *cobra.Command, id string, hold bool, reason string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		rec, err := e.SetLegalHold(ctx, engine.SetLegalHoldRequest{
			Caller:    caller(),
			ArchiveID: id,
			Hold:      hold,
			Reason:    reason,
		})
		if err != nil {
			return err
		}
		return render(cmd, archiveTable(rec))
	})
}

func runArchiveOverride(cmd *cobra.Command, args []string) error {
	req := engine.OverrideRetentionRequest{
		Caller:     caller(),
		ArchiveID:  args[0],
		Indefinite: overrideFlags.indefinite,
	}
	if !overrideFlags.indefinite {
		until, err := parseTimeFlag("until", overrideFlags.until)
		if err != nil {
			return err
		}
		req.RetentionUntil = until
	}

	return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
		rec, err := e.OverrideRetention(ctx, req)
		if err != nil {
			return err
		}
		return render(cmd, archiveTable(rec))
	})
}

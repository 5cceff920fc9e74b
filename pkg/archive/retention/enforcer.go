package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/archive/blobstore"
	"archival-hq/keeper/pkg/telemetry/metrics"
)

// SystemActor is the actor recorded for sweeps without an explicit caller.
const SystemActor = "system:retention"

// DefaultPageSize is the number of catalog entries read per page.
const DefaultPageSize = 500

// EnforcerConfig contains the collaborators of an Enforcer.
type EnforcerConfig struct {
	Index    archive.Index
	Blobs    blobstore.Store
	Audit    audit.Sink         // optional
	Metrics  *metrics.Collector // optional
	Clock    func() time.Time   // defaults to time.Now
	PageSize int                // defaults to DefaultPageSize
}

// Enforcer deletes archives whose retention deadline has passed.
type Enforcer struct {
	index    archive.Index
	blobs    blobstore.Store
	audit    audit.Sink
	metrics  *metrics.Collector
	clock    func() time.Time
	pageSize int
	logger   *slog.Logger
}

// NewEnforcer creates an enforcer.
func NewEnforcer(cfg EnforcerConfig) *Enforcer {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Enforcer{
		index:    cfg.Index,
		blobs:    cfg.Blobs,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		clock:    cfg.Clock,
		pageSize: cfg.PageSize,
		logger:   slog.Default().With("component", "archive.retention"),
	}
}

// EnforceRequest scopes a sweep.
type EnforceRequest struct {
	EntityType string // empty = every entity type
	DryRun     bool
	Actor      string // recorded in audit events; defaults to SystemActor
}

// DeletionFailure describes an archive that could not be deleted.
type DeletionFailure struct {
	ArchiveID string `json:"archive_id"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// EnforceResult summarizes a sweep.
type EnforceResult struct {
	Evaluated           int               `json:"evaluated"`
	EligibleForDeletion int               `json:"eligible_for_deletion"`
	Deleted             int               `json:"deleted"`
	LegalHoldsBlocking  int               `json:"legal_holds_blocking"`
	DryRun              bool              `json:"dry_run"`
	DeletedIDs          []string          `json:"deleted_ids,omitempty"`
	EligibleIDs         []string          `json:"eligible_ids,omitempty"`
	BlockedIDs          []string          `json:"blocked_ids,omitempty"`
	Failures            []DeletionFailure `json:"failures,omitempty"`
	StartedAt           time.Time         `json:"started_at"`
	FinishedAt          time.Time         `json:"finished_at"`
}

// Outcome reports a sweep that hit deletion failures or expired held
// archives as a problem.
func (r *EnforceResult) Outcome() archive.Outcome {
	if len(r.Failures) > 0 || r.LegalHoldsBlocking > 0 {
		return archive.OutcomeProblem
	}
	return archive.OutcomeOK
}

// Enforce runs one sweep. Per-archive failures are collected in the result;
// the returned error is reserved for failures that stop the sweep itself
// (reading the catalog, cancellation).
func (e *Enforcer) Enforce(ctx context.Context, req EnforceRequest) (*EnforceResult, error) {
	if req.Actor == "" {
		req.Actor = SystemActor
	}

	now := e.clock().UTC()
	result := &EnforceResult{DryRun: req.DryRun, StartedAt: now}

	mode := "live"
	if req.DryRun {
		mode = "dry_run"
	}
	e.metrics.RecordSweep(mode)

	records, err := e.collect(ctx, req.EntityType)
	if err != nil {
		return nil, archive.NewRetentionError(req.EntityType, err)
	}

	for _, rec := range records {
		result.Evaluated++
		if !DeadlinePassed(rec, now) {
			continue
		}
		if rec.LegalHold {
			result.LegalHoldsBlocking++
			result.BlockedIDs = append(result.BlockedIDs, rec.ID)
			continue
		}

		result.EligibleForDeletion++
		result.EligibleIDs = append(result.EligibleIDs, rec.ID)
		if req.DryRun {
			continue
		}

		if err := ctx.Err(); err != nil {
			result.FinishedAt = e.clock().UTC()
			return result, archive.NewRetentionError(req.EntityType, err)
		}

		deleted, blocked, err := e.deleteArchive(ctx, rec, req.Actor)
		switch {
		case err != nil:
			result.Failures = append(result.Failures, DeletionFailure{
				ArchiveID: rec.ID,
				Kind:      archive.KindOf(err).String(),
				Error:     err.Error(),
			})
			e.metrics.RecordDeletion(rec.EntityType, "failed")
		case blocked:
			// A hold was placed after the catalog was read.
			result.EligibleForDeletion--
			result.EligibleIDs = result.EligibleIDs[:len(result.EligibleIDs)-1]
			result.LegalHoldsBlocking++
			result.BlockedIDs = append(result.BlockedIDs, rec.ID)
		case deleted:
			result.Deleted++
			result.DeletedIDs = append(result.DeletedIDs, rec.ID)
			e.metrics.RecordDeletion(rec.EntityType, "deleted")
		}
	}

	result.FinishedAt = e.clock().UTC()

	e.logger.Info("retention sweep completed",
		"entity_type", req.EntityType,
		"dry_run", req.DryRun,
		"evaluated", result.Evaluated,
		"eligible", result.EligibleForDeletion,
		"deleted", result.Deleted,
		"legal_holds_blocking", result.LegalHoldsBlocking,
		"failures", len(result.Failures),
	)

	return result, nil
}

// collect reads every catalog entry in scope before anything is deleted.
func (e *Enforcer) collect(ctx context.Context, entityType string) ([]*archive.ArchiveRecord, error) {
	var all []*archive.ArchiveRecord
	for offset := 0; ; offset += e.pageSize {
		page, err := e.index.List(ctx, &archive.ListQuery{
			EntityType: entityType,
			Limit:      e.pageSize,
			Offset:     offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list archives: %w", err)
		}
		all = append(all, page...)
		if len(page) < e.pageSize {
			return all, nil
		}
	}
}

// deleteArchive removes one archive. Entries left in the deleting state by an
// interrupted sweep are resumed without a status change.
func (e *Enforcer) deleteArchive(ctx context.Context, rec *archive.ArchiveRecord, actor string) (deleted, blocked bool, err error) {
	const op = "retention.delete"

	if rec.Status != archive.StatusDeleting {
		deleting := archive.StatusDeleting
		_, err := e.index.Update(ctx, rec.ID, archive.Mutation{
			Status:        &deleting,
			IfStatus:      archive.StatusComplete,
			RequireNoHold: true,
		})
		switch {
		case errors.Is(err, archive.ErrNotFound):
			e.logger.Debug("archive vanished before deletion", "archive_id", rec.ID)
			return false, false, nil
		case errors.Is(err, archive.ErrPrecondition):
			current, getErr := e.index.Get(ctx, rec.ID)
			if getErr == nil && current.LegalHold {
				return false, true, nil
			}
			return false, false, archive.NewError(archive.KindConflict, op, rec.ID, err)
		case err != nil:
			return false, false, archive.NewError(archive.KindInternal, op, rec.ID, err)
		}
	}

	if err := e.blobs.Delete(ctx, rec.ID); err != nil {
		complete := archive.StatusComplete
		if _, revertErr := e.index.Update(ctx, rec.ID, archive.Mutation{
			Status:   &complete,
			IfStatus: archive.StatusDeleting,
		}); revertErr != nil {
			e.logger.Error("failed to revert archive status",
				"archive_id", rec.ID,
				"error", revertErr,
			)
		}
		e.recordAudit(ctx, rec.ID, actor, audit.OutcomeFailure, err)
		return false, false, archive.NewError(archive.KindInternal, op, rec.ID, fmt.Errorf("payload delete: %w", err))
	}

	if err := e.index.Delete(ctx, rec.ID); err != nil && !errors.Is(err, archive.ErrNotFound) {
		e.recordAudit(ctx, rec.ID, actor, audit.OutcomeFailure, err)
		return false, false, archive.NewError(archive.KindInternal, op, rec.ID, fmt.Errorf("catalog delete: %w", err))
	}

	e.recordAudit(ctx, rec.ID, actor, audit.OutcomeSuccess, nil)
	e.logger.Info("archive deleted by retention",
		"archive_id", rec.ID,
		"entity_type", rec.EntityType,
	)
	return true, false, nil
}

func (e *Enforcer) recordAudit(ctx context.Context, archiveID, actor string, outcome audit.Outcome, cause error) {
	if e.audit == nil {
		return
	}
	event := audit.Event{
		Action:    audit.ActionDelete,
		ActorID:   actor,
		TargetID:  archiveID,
		Timestamp: e.clock().UTC(),
		Outcome:   outcome,
	}
	if cause != nil {
		event.Detail = map[string]string{"error": cause.Error()}
	}
	if err := e.audit.LogEvent(ctx, event); err != nil {
		e.logger.Error("failed to write audit event", "archive_id", archiveID, "error", err)
	}
}

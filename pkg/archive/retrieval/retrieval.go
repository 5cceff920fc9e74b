// Package retrieval serves the contents of stored archives to authorized
// callers.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/archive/blobstore"
	"archival-hq/keeper/pkg/archive/packager"
	"archival-hq/keeper/pkg/security/access"
	"archival-hq/keeper/pkg/telemetry/logging"
	"archival-hq/keeper/pkg/telemetry/metrics"
)

const op = "archive.retrieve"

// Config contains the collaborators of a Service.
type Config struct {
	Index    archive.Index
	Blobs    blobstore.Store
	Packager *packager.Packager
	Access   *access.Policy

	Audit   audit.Sink         // optional
	Metrics *metrics.Collector // optional
	Clock   func() time.Time   // defaults to time.Now
}

// Request asks for the records of one archive.
type Request struct {
	ArchiveID string
	Caller    access.Identity

	// Limit caps the returned records after filtering. 0 returns all.
	Limit int

	// Filters is applied to the unpacked records. MaxRecords is ignored;
	// use Limit.
	Filters archive.Filters
}

// Result is a successful retrieval.
type Result struct {
	Archive *archive.ArchiveRecord
	Records []*archive.Record

	// Matched is the number of records passing Filters before Limit.
	Matched   int
	Truncated bool
}

// Service retrieves archive contents.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a retrieval service.
func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Access == nil {
		cfg.Access, _ = access.NewPolicy(nil)
	}
	return &Service{
		cfg:    cfg,
		logger: slog.Default().With("component", "archive.retrieval"),
	}
}

// Retrieve authorizes the caller, reads and checks the payload, and returns
// the records matching req.Filters. Archives are always read in full and
// filtered in memory.
func (s *Service) Retrieve(ctx context.Context, req Request) (*Result, error) {
	result, err := s.retrieve(ctx, req)
	s.cfg.Metrics.RecordRetrieval(string(archive.Classify(err)))
	return result, err
}

func (s *Service) retrieve(ctx context.Context, req Request) (*Result, error) {
	if req.ArchiveID == "" {
		return nil, archive.Validationf(op, "archive id is required")
	}
	if req.Limit < 0 {
		return nil, archive.Validationf(op, "limit must be >= 0")
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, archive.NewError(archive.KindValidation, op, req.ArchiveID, err)
	}

	ctx = logging.WithArchiveID(logging.WithActor(ctx, req.Caller.ID), req.ArchiveID)

	if err := s.cfg.Access.Require(req.Caller, access.PermArchiveRetrieve, op); err != nil {
		s.audit(ctx, req, audit.OutcomeDenied, map[string]string{"reason": err.Error()})
		s.logger.WarnContext(ctx, "retrieval denied", "roles", req.Caller.Roles)
		return nil, err
	}

	rec, err := s.cfg.Index.Get(ctx, req.ArchiveID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, archive.NewError(archive.KindNotFound, op, req.ArchiveID, err)
		}
		return nil, archive.NewError(archive.KindInternal, op, req.ArchiveID, err)
	}
	if rec.Status != archive.StatusComplete {
		return nil, archive.NewError(archive.KindConflict, op, req.ArchiveID,
			fmt.Errorf("archive is %s", rec.Status))
	}

	data, err := s.cfg.Blobs.Get(ctx, rec.ID)
	if err != nil {
		kind := archive.KindInternal
		if errors.Is(err, archive.ErrBlobNotFound) {
			kind = archive.KindUnreadable
		}
		return nil, s.fail(ctx, req, archive.NewError(kind, op, rec.ID, fmt.Errorf("read payload: %w", err)))
	}

	// A payload that no longer matches its checksum is corrupt and cannot
	// be read back.
	if actual := packager.Checksum(data); actual != rec.Checksum {
		err := archive.NewError(archive.KindUnreadable, op, rec.ID,
			fmt.Errorf("%w: expected %s, got %s", archive.ErrChecksumMismatch, rec.Checksum, actual))
		return nil, s.fail(ctx, req, err)
	}

	contents, err := s.cfg.Packager.Unpack(rec.ID, data)
	if err != nil {
		return nil, s.fail(ctx, req, archive.NewError(archive.KindUnreadable, op, rec.ID, err))
	}

	filters := req.Filters
	filters.MaxRecords = 0
	matched := make([]*archive.Record, 0, len(contents.Records))
	for _, r := range contents.Records {
		if filters.Matches(r) {
			matched = append(matched, r)
		}
	}

	result := &Result{Archive: rec, Matched: len(matched), Records: matched}
	if req.Limit > 0 && len(matched) > req.Limit {
		result.Records = matched[:req.Limit]
		result.Truncated = true
	}

	s.audit(ctx, req, audit.OutcomeSuccess, map[string]string{
		"returned": fmt.Sprint(len(result.Records)),
		"matched":  fmt.Sprint(result.Matched),
	})
	s.logger.InfoContext(ctx, "archive retrieved",
		"entity_type", rec.EntityType,
		"returned", len(result.Records),
		"matched", result.Matched,
	)

	return result, nil
}

// fail audits a retrieval that ran into a stored-data problem.
func (s *Service) fail(ctx context.Context, req Request, err error) error {
	outcome := audit.OutcomeFailure
	if errors.Is(err, archive.ErrChecksumMismatch) {
		outcome = audit.OutcomeIntegrityFailure
	}
	s.audit(ctx, req, outcome, map[string]string{"error": err.Error()})
	s.logger.ErrorContext(ctx, "retrieval failed", "error_kind", archive.KindOf(err).String(), "error", err)
	return err
}

func (s *Service) audit(ctx context.Context, req Request, outcome audit.Outcome, detail map[string]string) {
	if s.cfg.Audit == nil {
		return
	}
	event := audit.Event{
		Action:    audit.ActionRetrieve,
		ActorID:   req.Caller.ID,
		TargetID:  req.ArchiveID,
		Timestamp: s.cfg.Clock().UTC(),
		Outcome:   outcome,
		Detail:    detail,
	}
	if err := s.cfg.Audit.LogEvent(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to write audit event", "error", err)
	}
}

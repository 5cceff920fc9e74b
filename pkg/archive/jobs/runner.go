package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/archive/blobstore"
	"archival-hq/keeper/pkg/archive/packager"
	"archival-hq/keeper/pkg/archive/retention"
	"archival-hq/keeper/pkg/telemetry/logging"
	"archival-hq/keeper/pkg/telemetry/metrics"
	"archival-hq/keeper/pkg/telemetry/tracing"
)

// DuplicatePolicy controls duplicate submissions of an in-flight request.
type DuplicatePolicy string

const (
	// DuplicateJoin returns the in-flight job.
	DuplicateJoin DuplicatePolicy = "join"

	// DuplicateReject fails the submission with a conflict.
	DuplicateReject DuplicatePolicy = "reject"
)

// Defaults for Config.
const (
	DefaultTimeout       = 30 * time.Minute
	DefaultMaxConcurrent = 4
)

// interruptedDetail is recorded on jobs a previous process left unfinished.
const interruptedDetail = "interrupted: the process stopped before the job finished"

// PolicySource resolves the retention policy of an entity type.
type PolicySource interface {
	Policy(entityType string) archive.RetentionPolicy
}

// Config contains the collaborators and limits of a Runner.
type Config struct {
	Index    archive.Index
	Blobs    blobstore.Store
	Source   archive.RecordSource
	Packager *packager.Packager
	Policies PolicySource
	Store    Store

	Audit   audit.Sink         // optional
	Metrics *metrics.Collector // optional
	Tracer  *tracing.Tracer    // optional
	Clock   func() time.Time   // defaults to time.Now

	Timeout         time.Duration
	MaxConcurrent   int
	DuplicatePolicy DuplicatePolicy
}

// SubmitRequest asks for a new archive.
type SubmitRequest struct {
	EntityType  string
	Filters     archive.Filters
	RequestedBy string

	// RetentionOverride replaces the policy retention period for the
	// resulting archive. Authorization is the caller's responsibility.
	RetentionOverride *time.Duration
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	Job    *archive.Job
	Joined bool // true when an identical in-flight job was returned
}

// flight is an active job.
type flight struct {
	job  *archive.Job // guarded by Runner.mu
	done chan struct{}
	link trace.SpanContext // span that submitted the job

	// draining is set once a timed-out job is failed while its pipeline
	// has not yet returned. The signature stays reserved until it does.
	draining bool // guarded by Runner.mu

	commitMu  sync.Mutex
	committed bool
	abandoned bool
}

// Runner executes archival jobs asynchronously.
type Runner struct {
	cfg    Config
	sem    chan struct{}
	logger *slog.Logger

	mu          sync.Mutex
	bySignature map[string]*flight
	byID        map[string]*flight
	closed      bool
	wg          sync.WaitGroup
}

// NewRunner creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	switch {
	case cfg.Index == nil:
		return nil, errors.New("jobs: index is required")
	case cfg.Blobs == nil:
		return nil, errors.New("jobs: blob store is required")
	case cfg.Source == nil:
		return nil, errors.New("jobs: record source is required")
	case cfg.Packager == nil:
		return nil, errors.New("jobs: packager is required")
	case cfg.Policies == nil:
		return nil, errors.New("jobs: policy source is required")
	case cfg.Store == nil:
		return nil, errors.New("jobs: job store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	switch cfg.DuplicatePolicy {
	case "":
		cfg.DuplicatePolicy = DuplicateJoin
	case DuplicateJoin, DuplicateReject:
	default:
		return nil, fmt.Errorf("jobs: unknown duplicate policy %q", cfg.DuplicatePolicy)
	}

	return &Runner{
		cfg:         cfg,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
		logger:      slog.Default().With("component", "archive.jobs"),
		bySignature: make(map[string]*flight),
		byID:        make(map[string]*flight),
	}, nil
}

// Submit validates req, records a queued job and starts it in the
// background. It never waits for packaging.
func (r *Runner) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	const op = "jobs.submit"

	if req.EntityType == "" {
		return nil, archive.Validationf(op, "entity type is required")
	}
	if req.RequestedBy == "" {
		return nil, archive.Validationf(op, "requested_by is required")
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, archive.NewError(archive.KindValidation, op, "", err)
	}
	if req.RetentionOverride != nil && *req.RetentionOverride < 0 {
		return nil, archive.Validationf(op, "retention override must not be negative")
	}

	signature, err := Signature(req.EntityType, req.Filters)
	if err != nil {
		return nil, archive.NewError(archive.KindInternal, op, "", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, archive.NewError(archive.KindInternal, op, "", errors.New("runner is closed"))
	}

	if existing, ok := r.bySignature[signature]; ok {
		if existing.draining {
			return nil, archive.NewError(archive.KindConflict, op, existing.job.ID,
				fmt.Errorf("%w: timed-out job %s is still stopping", archive.ErrDuplicateInFlight, existing.job.ID))
		}
		if r.cfg.DuplicatePolicy == DuplicateReject {
			return nil, archive.NewError(archive.KindConflict, op, existing.job.ID,
				fmt.Errorf("%w: signature %s", archive.ErrDuplicateInFlight, signature[:16]))
		}
		r.logger.Info("joined in-flight job",
			"job_id", existing.job.ID,
			"entity_type", req.EntityType,
			"requested_by", req.RequestedBy,
		)
		return &SubmitResult{Job: existing.job.Clone(), Joined: true}, nil
	}

	job := &archive.Job{
		ID:          uuid.NewString(),
		EntityType:  req.EntityType,
		Filters:     req.Filters.Clone(),
		RequestedBy: req.RequestedBy,
		CreatedAt:   r.cfg.Clock().UTC(),
		Status:      archive.JobQueued,
		Signature:   signature,
	}
	if req.RetentionOverride != nil {
		d := *req.RetentionOverride
		job.RetentionOverride = &d
	}

	if err := r.cfg.Store.Create(ctx, job); err != nil {
		return nil, archive.NewError(archive.KindInternal, op, job.ID, err)
	}

	f := &flight{job: job, done: make(chan struct{}), link: trace.SpanContextFromContext(ctx)}
	r.bySignature[signature] = f
	r.byID[job.ID] = f

	r.wg.Add(1)
	go r.run(f)

	r.logger.Info("job queued",
		"job_id", job.ID,
		"entity_type", job.EntityType,
		"filters", job.Filters.String(),
		"requested_by", job.RequestedBy,
	)

	return &SubmitResult{Job: job.Clone()}, nil
}

// GetStatus returns a job by id.
func (r *Runner) GetStatus(ctx context.Context, id string) (*archive.Job, error) {
	r.mu.Lock()
	if f, ok := r.byID[id]; ok {
		job := f.job.Clone()
		r.mu.Unlock()
		return job, nil
	}
	r.mu.Unlock()

	job, err := r.cfg.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, archive.NewError(archive.KindNotFound, "jobs.get", id, err)
		}
		return nil, archive.NewError(archive.KindInternal, "jobs.get", id, err)
	}
	return job, nil
}

// ListActive returns the jobs of this runner that are queued or running,
// oldest first.
func (r *Runner) ListActive() []*archive.Job {
	r.mu.Lock()
	out := make([]*archive.Job, 0, len(r.byID))
	for _, f := range r.byID {
		out = append(out, f.job.Clone())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// List returns job history.
func (r *Runner) List(ctx context.Context, query JobQuery) ([]*archive.Job, error) {
	jobs, err := r.cfg.Store.List(ctx, query)
	if err != nil {
		return nil, archive.NewError(archive.KindInternal, "jobs.list", "", err)
	}
	return jobs, nil
}

// Wait blocks until the job reaches a terminal state or ctx is done.
func (r *Runner) Wait(ctx context.Context, id string) (*archive.Job, error) {
	r.mu.Lock()
	f, active := r.byID[id]
	r.mu.Unlock()

	if active {
		select {
		case <-f.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.GetStatus(ctx, id)
}

// Recover fails jobs that a previous process left queued or running. It
// returns the number of jobs recovered.
func (r *Runner) Recover(ctx context.Context) (int, error) {
	stale, err := r.cfg.Store.List(ctx, JobQuery{ActiveOnly: true})
	if err != nil {
		return 0, archive.NewError(archive.KindInternal, "jobs.recover", "", err)
	}

	recovered := 0
	for _, job := range stale {
		r.mu.Lock()
		_, ours := r.byID[job.ID]
		r.mu.Unlock()
		if ours {
			continue
		}

		now := r.cfg.Clock().UTC()
		job.Status = archive.JobFailed
		job.FinishedAt = &now
		job.ErrorDetail = interruptedDetail
		job.ErrorKind = archive.KindInternal.String()
		if err := r.cfg.Store.Update(ctx, job); err != nil {
			return recovered, archive.NewError(archive.KindInternal, "jobs.recover", job.ID, err)
		}
		recovered++
		r.logger.Warn("recovered interrupted job", "job_id", job.ID, "entity_type", job.EntityType)
	}
	return recovered, nil
}

// Close stops accepting jobs and waits for running ones until ctx is done.
// Jobs still running when ctx ends are failed by the next Recover.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}

// jobOutcome is the result of the pipeline.
type jobOutcome struct {
	archiveID string
	records   int
	bytes     int64
	warnings  []string
	err       error
}

func (r *Runner) run(f *flight) {
	defer r.wg.Done()

	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	started := r.cfg.Clock().UTC()
	r.mu.Lock()
	f.job.Status = archive.JobRunning
	f.job.StartedAt = &started
	snapshot := f.job.Clone()
	r.mu.Unlock()

	// The job outlives the submitting request, so it starts its own trace.
	ctx, span := r.cfg.Tracer.StartWith(context.Background(), "archive.job",
		tracing.LinkFrom(trace.ContextWithSpanContext(context.Background(), f.link)),
		trace.WithAttributes(tracing.JobID(snapshot.ID), tracing.EntityType(snapshot.EntityType)),
	)
	ctx = logging.WithJobID(ctx, snapshot.ID)
	if err := r.cfg.Store.Update(ctx, snapshot); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist job state", "status", snapshot.Status, "error", err)
	}
	r.cfg.Metrics.JobStarted()
	r.logger.InfoContext(ctx, "job started", "entity_type", snapshot.EntityType)

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resultCh := make(chan jobOutcome, 1)
	go func() { resultCh <- r.execute(runCtx, f, snapshot) }()

	var outcome jobOutcome
	select {
	case outcome = <-resultCh:
	case <-runCtx.Done():
		f.commitMu.Lock()
		committed := f.committed
		f.abandoned = !committed
		f.commitMu.Unlock()

		if committed {
			outcome = <-resultCh
		} else {
			outcome = jobOutcome{err: archive.NewError(archive.KindInternal, "jobs.run", snapshot.ID,
				fmt.Errorf("%w after %s", archive.ErrJobTimeout, r.cfg.Timeout))}
			r.finish(ctx, f, started, outcome, false)
			endJobSpan(span, outcome)
			// The pipeline sees the abandoned flag and removes its payload.
			<-resultCh
			r.mu.Lock()
			if r.bySignature[snapshot.Signature] == f {
				delete(r.bySignature, snapshot.Signature)
			}
			r.mu.Unlock()
			r.logger.InfoContext(ctx, "timed-out pipeline stopped")
			return
		}
	}

	r.finish(ctx, f, started, outcome, true)
	endJobSpan(span, outcome)
}

func endJobSpan(span trace.Span, outcome jobOutcome) {
	if outcome.err != nil {
		span.SetAttributes(tracing.ErrorKind(archive.KindOf(outcome.err).String()))
	} else {
		span.SetAttributes(
			tracing.ArchiveID(outcome.archiveID),
			tracing.Records(outcome.records),
			tracing.Bytes(outcome.bytes),
		)
	}
	tracing.End(span, outcome.err)
}

// execute runs the archival pipeline. It must not touch f.job.
func (r *Runner) execute(ctx context.Context, f *flight, job *archive.Job) jobOutcome {
	const op = "jobs.run"
	fail := func(kind archive.Kind, err error) jobOutcome {
		return jobOutcome{err: archive.NewError(kind, op, job.ID, err)}
	}

	records, err := r.cfg.Source.QueryRecords(ctx, job.EntityType, job.Filters)
	if err != nil {
		return fail(archive.KindInternal, fmt.Errorf("query records: %w", err))
	}

	policy := r.cfg.Policies.Policy(job.EntityType)
	now := r.cfg.Clock().UTC()
	eligible := records[:0:0]
	for _, rec := range records {
		if retention.EligibleForArchival(rec, policy, now) {
			eligible = append(eligible, rec)
		}
	}
	if job.Filters.MaxRecords > 0 && len(eligible) > job.Filters.MaxRecords {
		eligible = eligible[:job.Filters.MaxRecords]
	}
	if len(eligible) == 0 {
		return fail(archive.KindValidation, archive.ErrEmptyRecordSet)
	}

	archiveID := uuid.NewString()
	ctx = logging.WithArchiveID(ctx, archiveID)

	pkg, err := r.cfg.Packager.Pack(packager.PackRequest{
		ArchiveID:  archiveID,
		EntityType: job.EntityType,
		Records:    eligible,
	})
	if err != nil {
		return fail(archive.KindOf(err), fmt.Errorf("pack: %w", err))
	}

	if err := r.cfg.Blobs.Put(ctx, archiveID, pkg.Data); err != nil {
		return fail(archive.KindInternal, fmt.Errorf("store payload: %w", err))
	}

	createdAt := r.cfg.Clock().UTC()
	rec := &archive.ArchiveRecord{
		ID:                archiveID,
		EntityType:        job.EntityType,
		Filters:           job.Filters.Clone(),
		RecordCount:       pkg.RecordCount,
		SizeBytes:         pkg.SizeBytes,
		UncompressedBytes: pkg.UncompressedBytes,
		Checksum:          pkg.Checksum,
		Compression:       pkg.Compression,
		Encrypted:         pkg.Encrypted,
		EncryptionScheme:  pkg.EncryptionScheme,
		Signature:         pkg.Signature,
		SigningKeyID:      pkg.SigningKeyID,
		RetentionUntil:    retention.ComputeRetentionUntil(createdAt, policy, job.RetentionOverride),
		CreatedAt:         createdAt,
		CreatedBy:         job.RequestedBy,
		JobID:             job.ID,
		Status:            archive.StatusComplete,
	}

	// Commit point: the archive becomes visible once indexed.
	f.commitMu.Lock()
	if f.abandoned || ctx.Err() != nil {
		f.commitMu.Unlock()
		r.discardPayload(ctx, archiveID)
		return fail(archive.KindInternal, archive.ErrJobTimeout)
	}
	_, err = r.cfg.Index.Create(ctx, rec)
	if err == nil {
		f.committed = true
	}
	f.commitMu.Unlock()

	if err != nil {
		r.discardPayload(ctx, archiveID)
		return fail(archive.KindInternal, fmt.Errorf("register archive: %w", err))
	}

	// Past the commit point nothing may fail the job.
	postCtx := context.WithoutCancel(ctx)
	var warnings []string

	ids := make([]string, len(eligible))
	for i, rec := range eligible {
		ids[i] = rec.ID
	}
	if err := r.cfg.Source.MarkArchived(postCtx, archiveID, ids); err != nil {
		r.logger.WarnContext(postCtx, "failed to mark records archived", "error", err)
		warnings = append(warnings, fmt.Sprintf("mark records archived: %v", err))
	}

	r.recordAudit(postCtx, audit.Event{
		Action:   audit.ActionCreate,
		ActorID:  job.RequestedBy,
		TargetID: archiveID,
		Outcome:  audit.OutcomeSuccess,
		Detail: map[string]string{
			"job_id":       job.ID,
			"entity_type":  job.EntityType,
			"record_count": fmt.Sprint(pkg.RecordCount),
			"checksum":     pkg.Checksum,
		},
	})

	return jobOutcome{
		archiveID: archiveID,
		records:   pkg.RecordCount,
		bytes:     pkg.SizeBytes,
		warnings:  warnings,
	}
}

// discardPayload removes a payload that was never committed.
func (r *Runner) discardPayload(ctx context.Context, archiveID string) {
	if err := r.cfg.Blobs.Delete(context.WithoutCancel(ctx), archiveID); err != nil {
		r.logger.ErrorContext(ctx, "failed to remove uncommitted payload", "error", err)
	}
}

// finish records the terminal state. With release false the signature stays
// reserved for the caller to free once the pipeline has returned.
func (r *Runner) finish(ctx context.Context, f *flight, started time.Time, outcome jobOutcome, release bool) {
	finished := r.cfg.Clock().UTC()

	r.mu.Lock()
	job := f.job
	job.FinishedAt = &finished
	if outcome.err != nil {
		job.Status = archive.JobFailed
		job.ErrorDetail = outcome.err.Error()
		job.ErrorKind = archive.KindOf(outcome.err).String()
	} else {
		job.Status = archive.JobCompleted
		job.ResultArchiveID = outcome.archiveID
		job.RecordCount = outcome.records
		job.Warnings = outcome.warnings
	}
	snapshot := job.Clone()
	r.mu.Unlock()

	if err := r.cfg.Store.Update(ctx, snapshot); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist job state", "status", snapshot.Status, "error", err)
	}

	// Release the signature only once the terminal state is readable.
	r.mu.Lock()
	if release {
		delete(r.bySignature, snapshot.Signature)
	} else {
		f.draining = true
	}
	delete(r.byID, snapshot.ID)
	close(f.done)
	r.mu.Unlock()

	r.cfg.Metrics.RecordJob(snapshot.EntityType, string(snapshot.Status), finished.Sub(started),
		outcome.records, outcome.bytes)

	if outcome.err != nil {
		r.recordAudit(ctx, audit.Event{
			Action:  audit.ActionCreate,
			ActorID: snapshot.RequestedBy,
			Outcome: audit.OutcomeFailure,
			Detail: map[string]string{
				"job_id":      snapshot.ID,
				"entity_type": snapshot.EntityType,
				"error":       snapshot.ErrorDetail,
			},
		})
		r.logger.WarnContext(ctx, "job failed",
			"entity_type", snapshot.EntityType,
			"error_kind", snapshot.ErrorKind,
			"error", outcome.err,
		)
		return
	}

	r.logger.InfoContext(ctx, "job completed",
		"entity_type", snapshot.EntityType,
		"archive_id", snapshot.ResultArchiveID,
		"record_count", snapshot.RecordCount,
		"size_bytes", outcome.bytes,
		"duration_ms", finished.Sub(started).Milliseconds(),
	)
}

func (r *Runner) recordAudit(ctx context.Context, event audit.Event) {
	if r.cfg.Audit == nil {
		return
	}
	event.Timestamp = r.cfg.Clock().UTC()
	if err := r.cfg.Audit.LogEvent(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to write audit event", "action", event.Action, "error", err)
	}
}

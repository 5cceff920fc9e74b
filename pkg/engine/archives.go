package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/archive/export"
	"archival-hq/keeper/pkg/archive/jobs"
	"archival-hq/keeper/pkg/archive/retrieval"
	"archival-hq/keeper/pkg/archive/verify"
	"archival-hq/keeper/pkg/security/access"
	"archival-hq/keeper/pkg/telemetry/tracing"
)

// RecordImporter is implemented by record sources that accept new records.
type RecordImporter interface {
	Insert(ctx context.Context, records ...*archive.Record) error
}

// CreateArchive submits an archival job and returns without waiting for it.
// An identical request already in flight is joined or rejected according to
// the configured duplicate policy.
func (e *Engine) CreateArchive(ctx context.Context, req CreateArchiveRequest) (res *jobs.SubmitResult, err error) {
	const op = "engine.create_archive"

	ctx, span := e.startSpan(ctx, "archive.create", req.Caller, tracing.EntityType(req.EntityType))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.EntityType) == "" {
		return nil, archive.Validationf(op, "entity type is required")
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, archive.NewError(archive.KindValidation, op, "", err)
	}
	if req.RetentionOverride != nil && *req.RetentionOverride < 0 {
		return nil, archive.Validationf(op, "retention override must not be negative")
	}

	if err := e.authorize(ctx, req.Caller, access.PermArchiveCreate, op, audit.ActionCreate, ""); err != nil {
		return nil, err
	}
	if req.RetentionOverride != nil {
		if err := e.authorize(ctx, req.Caller, access.PermRetentionOverride, op, audit.ActionRetentionOverride, ""); err != nil {
			return nil, err
		}
	}

	res, err = e.runner.Submit(ctx, jobs.SubmitRequest{
		EntityType:        req.EntityType,
		Filters:           req.Filters,
		RequestedBy:       req.Caller.ID,
		RetentionOverride: req.RetentionOverride,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.JobID(res.Job.ID))
	return res, nil
}

// ListArchives returns a page of catalog entries, newest first.
func (e *Engine) ListArchives(ctx context.Context, req ListArchivesRequest) (*ArchivePage, error) {
	const op = "engine.list_archives"

	q := req.Query
	e.limits.ApplyDefaults(&q)
	if err := e.limits.Validate(&q); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, req.Caller, access.PermArchiveRead, op, "", ""); err != nil {
		return nil, err
	}
	return e.listPage(ctx, op, &q)
}

// SearchArchives runs a case-insensitive substring search over archive ids,
// entity types, creators, checksums, filters and hold reasons.
func (e *Engine) SearchArchives(ctx context.Context, req SearchArchivesRequest) (*ArchivePage, error) {
	const op = "engine.search_archives"

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, archive.Validationf(op, "search text is required")
	}
	q := archive.ListQuery{
		EntityType: req.EntityType,
		Search:     text,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}
	e.limits.ApplyDefaults(&q)
	if err := e.limits.Validate(&q); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, req.Caller, access.PermArchiveRead, op, "", ""); err != nil {
		return nil, err
	}
	return e.listPage(ctx, op, &q)
}

func (e *Engine) listPage(ctx context.Context, op string, q *archive.ListQuery) (*ArchivePage, error) {
	records, err := e.index.List(ctx, q)
	if err != nil {
		return nil, tag(op, "", err)
	}
	total, err := e.index.Count(ctx, q)
	if err != nil {
		return nil, tag(op, "", err)
	}
	if records == nil {
		records = []*archive.ArchiveRecord{}
	}
	return &ArchivePage{Archives: records, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// GetArchive returns one catalog entry.
func (e *Engine) GetArchive(ctx context.Context, req GetArchiveRequest) (*archive.ArchiveRecord, error) {
	const op = "engine.get_archive"

	if req.ArchiveID == "" {
		return nil, archive.Validationf(op, "archive id is required")
	}
	if err := e.authorize(ctx, req.Caller, access.PermArchiveRead, op, "", req.ArchiveID); err != nil {
		return nil, err
	}

	rec, err := e.index.Get(ctx, req.ArchiveID)
	if err != nil {
		return nil, tag(op, req.ArchiveID, err)
	}
	return rec, nil
}

// RetrieveArchive reads an archive back, checks it against its catalog
// checksum and returns the matching records.
func (e *Engine) RetrieveArchive(ctx context.Context, req RetrieveArchiveRequest) (res *retrieval.Result, err error) {
	ctx, span := e.startSpan(ctx, "archive.retrieve", req.Caller, tracing.ArchiveID(req.ArchiveID))
	defer func() { endSpan(span, err) }()

	res, err = e.retrieval.Retrieve(ctx, retrieval.Request{
		ArchiveID: req.ArchiveID,
		Caller:    req.Caller,
		Limit:     req.Limit,
		Filters:   req.Filters,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.Records(len(res.Records)))
	return res, nil
}

// VerifyArchive checks an archive's checksum, signature and decryptability
// without modifying it.
func (e *Engine) VerifyArchive(ctx context.Context, req VerifyArchiveRequest) (report *verify.Report, err error) {
	ctx, span := e.startSpan(ctx, "archive.verify", req.Caller, tracing.ArchiveID(req.ArchiveID))
	defer func() { endSpan(span, err) }()

	return e.verifier.Verify(ctx, verify.Request{
		ArchiveID: req.ArchiveID,
		Caller:    req.Caller,
	})
}

// ExportMetadata streams the catalog entries matching the query to the
// request's writer and returns how many were written. Payloads are never
// exported.
func (e *Engine) ExportMetadata(ctx context.Context, req ExportMetadataRequest) (n int, err error) {
	const op = "engine.export_metadata"

	ctx, span := e.startSpan(ctx, "archive.export", req.Caller)
	defer func() { endSpan(span, err) }()

	if req.Writer == nil {
		return 0, archive.Validationf(op, "writer is required")
	}
	exporter, err := export.New(req.Format, export.Options{
		JSONPretty:       e.cfg.Export.JSONPretty,
		CSVIncludeHeader: e.cfg.Export.CSVIncludeHeader,
	})
	if err != nil {
		return 0, archive.NewError(archive.KindValidation, op, "", err)
	}
	q := req.Query
	if err := e.limits.Validate(&q); err != nil {
		return 0, err
	}
	if err := e.authorize(ctx, req.Caller, access.PermArchiveRead, op, "", ""); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recordsCh := make(chan *archive.ArchiveRecord, e.limits.DefaultLimit)
	producerErr := make(chan error, 1)
	sent := 0

	go func() {
		defer close(recordsCh)
		producerErr <- e.pageAll(ctx, q, func(rec *archive.ArchiveRecord) error {
			select {
			case recordsCh <- rec:
				sent++
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	exportErr := exporter.ExportStream(ctx, recordsCh, req.Writer)
	cancel()
	// Drain so the producer never blocks after an early export failure.
	for range recordsCh {
	}
	listErr := <-producerErr

	if exportErr != nil {
		return 0, archive.NewError(archive.KindInternal, op, "", exportErr)
	}
	if listErr != nil && !errors.Is(listErr, context.Canceled) {
		return 0, tag(op, "", listErr)
	}

	e.logger.Info("metadata exported", "format", req.Format, "archives", sent, "actor_id", req.Caller.ID)
	return sent, nil
}

// pageAll walks the catalog in pages of the maximum listing size, honoring
// the query's own offset and limit.
func (e *Engine) pageAll(ctx context.Context, q archive.ListQuery, fn func(*archive.ArchiveRecord) error) error {
	remaining := q.Limit
	pageSize := e.limits.MaxLimit

	for {
		page := q
		page.Limit = pageSize
		if remaining > 0 && remaining < pageSize {
			page.Limit = remaining
		}

		records, err := e.index.List(ctx, &page)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := fn(rec); err != nil {
				return err
			}
		}

		if remaining > 0 {
			remaining -= len(records)
			if remaining <= 0 {
				return nil
			}
		}
		if len(records) < page.Limit {
			return nil
		}
		q.Offset += len(records)
	}
}

// ImportRecords adds live records to the record source so they can be
// archived. It returns the number imported.
func (e *Engine) ImportRecords(ctx context.Context, req ImportRecordsRequest) (int, error) {
	const op = "engine.import_records"

	if len(req.Records) == 0 {
		return 0, archive.Validationf(op, "no records to import")
	}
	for i, rec := range req.Records {
		switch {
		case rec == nil:
			return 0, archive.Validationf(op, "record %d is empty", i)
		case rec.ID == "":
			return 0, archive.Validationf(op, "record %d: id is required", i)
		case rec.EntityType == "":
			return 0, archive.Validationf(op, "record %s: entity type is required", rec.ID)
		case rec.CreatedAt.IsZero():
			return 0, archive.Validationf(op, "record %s: created_at is required", rec.ID)
		case rec.SizeBytes < 0:
			return 0, archive.Validationf(op, "record %s: size must be >= 0", rec.ID)
		}
	}
	if err := e.authorize(ctx, req.Caller, access.PermArchiveCreate, op, "", ""); err != nil {
		return 0, err
	}

	importer, ok := e.source.(RecordImporter)
	if !ok {
		return 0, archive.NewError(archive.KindInternal, op, "", fmt.Errorf("record source %T does not accept imports", e.source))
	}
	if err := importer.Insert(ctx, req.Records...); err != nil {
		return 0, tag(op, "", err)
	}

	e.logger.Info("records imported", "records", len(req.Records), "actor_id", req.Caller.ID)
	return len(req.Records), nil
}

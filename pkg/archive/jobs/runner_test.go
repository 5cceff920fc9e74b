package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/audit"
	"archival-hq/keeper/pkg/archive/blobstore"
	"archival-hq/keeper/pkg/archive/index"
	"archival-hq/keeper/pkg/archive/packager"
	"archival-hq/keeper/pkg/config"
	"archival-hq/keeper/pkg/recordsource"
	"archival-hq/keeper/pkg/telemetry/tracing"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// staticPolicies serves fixed policies.
type staticPolicies map[string]archive.RetentionPolicy

func (p staticPolicies) Policy(entityType string) archive.RetentionPolicy {
	if policy, ok := p[entityType]; ok {
		return policy
	}
	return archive.RetentionPolicy{EntityType: entityType}
}

// gatedSource blocks QueryRecords until the gate opens. It ignores context
// cancellation to simulate a slow source.
type gatedSource struct {
	archive.RecordSource
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedSource(inner archive.RecordSource) *gatedSource {
	return &gatedSource{RecordSource: inner, gate: make(chan struct{}), entered: make(chan struct{})}
}

func (s *gatedSource) QueryRecords(ctx context.Context, entityType string, filters archive.Filters) ([]*archive.Record, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.gate
	return s.RecordSource.QueryRecords(ctx, entityType, filters)
}

type runnerFixture struct {
	index  *index.MemoryIndex
	blobs  *blobstore.MemoryStore
	source *recordsource.MemorySource
	store  *MemoryStore
	audit  *audit.MemorySink
	cfg    Config
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		index:  index.NewMemoryIndex(),
		blobs:  blobstore.NewMemoryStore(),
		source: recordsource.NewMemorySource(sampleRecords()...),
		store:  NewMemoryStore(),
		audit:  audit.NewMemorySink(),
	}
	f.cfg = Config{
		Index:    f.index,
		Blobs:    f.blobs,
		Source:   f.source,
		Packager: packager.New(packager.Options{Compression: packager.CompressionZstd}),
		Policies: staticPolicies{
			"samples": {EntityType: "samples", RetentionPeriod: 365 * 24 * time.Hour, ArchiveAfter: 30 * 24 * time.Hour},
		},
		Store: f.store,
		Audit: f.audit,
		Clock: func() time.Time { return now },
	}
	return f
}

func (f *runnerFixture) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(f.cfg)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Close(ctx)
	})
	return r
}

// sampleRecords returns three records old enough to archive and one that is
// too recent.
func sampleRecords() []*archive.Record {
	return []*archive.Record{
		{ID: "S-1", EntityType: "samples", CreatedAt: now.Add(-90 * 24 * time.Hour), SizeBytes: 10, Attributes: map[string]string{"lab": "north"}, Data: []byte("one")},
		{ID: "S-2", EntityType: "samples", CreatedAt: now.Add(-60 * 24 * time.Hour), SizeBytes: 20, Attributes: map[string]string{"lab": "north"}, Data: []byte("two")},
		{ID: "S-3", EntityType: "samples", CreatedAt: now.Add(-45 * 24 * time.Hour), SizeBytes: 30, Attributes: map[string]string{"lab": "south"}, Data: []byte("three")},
		{ID: "S-4", EntityType: "samples", CreatedAt: now.Add(-24 * time.Hour), SizeBytes: 40, Attributes: map[string]string{"lab": "north"}, Data: []byte("four")},
	}
}

func wait(t *testing.T, r *Runner, id string) *archive.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := r.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s) failed: %v", id, err)
	}
	return job
}

func TestRunner_CompletesJob(t *testing.T) {
	f := newRunnerFixture(t)
	r := f.runner(t)
	ctx := context.Background()

	res, err := r.Submit(ctx, SubmitRequest{
		EntityType:  "samples",
		Filters:     archive.Filters{Attributes: map[string]string{"lab": "north"}},
		RequestedBy: "alice",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Joined || res.Job.Status != archive.JobQueued {
		t.Errorf("Submit() = %+v, want a fresh queued job", res)
	}

	job := wait(t, r, res.Job.ID)
	if job.Status != archive.JobCompleted {
		t.Fatalf("job status = %s (%s), want completed", job.Status, job.ErrorDetail)
	}
	// S-4 is younger than ArchiveAfter.
	if job.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", job.RecordCount)
	}

	rec, err := f.index.Get(ctx, job.ResultArchiveID)
	if err != nil {
		t.Fatalf("archive not indexed: %v", err)
	}
	if rec.JobID != job.ID || rec.CreatedBy != "alice" || rec.Status != archive.StatusComplete {
		t.Errorf("archive record = %+v", rec)
	}
	wantDeadline := now.Add(365 * 24 * time.Hour)
	if rec.RetentionUntil == nil || !rec.RetentionUntil.Equal(wantDeadline) {
		t.Errorf("RetentionUntil = %v, want %v", rec.RetentionUntil, wantDeadline)
	}

	payload, err := f.blobs.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("payload missing: %v", err)
	}
	if packager.Checksum(payload) != rec.Checksum {
		t.Error("stored payload does not match indexed checksum")
	}

	for _, id := range []string{"S-1", "S-2"} {
		if archiveID, ok := f.source.ArchivedIn(id); !ok || archiveID != rec.ID {
			t.Errorf("record %s not marked archived in %s", id, rec.ID)
		}
	}
	if _, ok := f.source.ArchivedIn("S-4"); ok {
		t.Error("recent record S-4 should not be archived")
	}

	if events := f.audit.Find(audit.ActionCreate, audit.OutcomeSuccess); len(events) != 1 || events[0].TargetID != rec.ID {
		t.Errorf("create audit events = %+v", events)
	}

	stored, err := f.store.Get(ctx, job.ID)
	if err != nil || stored.Status != archive.JobCompleted {
		t.Errorf("job history = %+v, %v", stored, err)
	}
}

func TestRunner_TracesJob(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := tracing.NewWithExporter(&config.TracingConfig{Enabled: true, Sampler: tracing.SamplerAlways, ServiceName: "keeper-test"}, "test", exporter)
	if err != nil {
		t.Fatalf("NewWithExporter failed: %v", err)
	}

	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	f := newRunnerFixture(t)
	f.cfg.Tracer = tracer
	r := f.runner(t)

	ctx, submit := tracer.Start(context.Background(), "archive.create")
	res, err := r.Submit(ctx, SubmitRequest{EntityType: "samples", RequestedBy: "alice"})
	submit.End()
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	job := wait(t, r, res.Job.ID)

	// Close waits for the job goroutine, which ends the span.
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(closeCtx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tracer.Flush(closeCtx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	var jobSpan *tracetest.SpanStub
	spans := exporter.GetSpans()
	for i := range spans {
		if spans[i].Name == "archive.job" {
			jobSpan = &spans[i]
		}
	}
	if jobSpan == nil {
		t.Fatalf("no archive.job span in %d spans", len(spans))
	}
	if len(jobSpan.Links) != 1 || jobSpan.Links[0].SpanContext.SpanID() != submit.SpanContext().SpanID() {
		t.Errorf("job span links = %+v, want the submitting span", jobSpan.Links)
	}
	attrs := map[string]string{}
	for _, kv := range jobSpan.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[tracing.AttrJobID] != job.ID || attrs[tracing.AttrArchiveID] != job.ResultArchiveID {
		t.Errorf("job span attributes = %v", attrs)
	}
}

func TestRunner_RetentionOverride(t *testing.T) {
	f := newRunnerFixture(t)
	r := f.runner(t)

	override := 7 * 24 * time.Hour
	res, err := r.Submit(context.Background(), SubmitRequest{EntityType: "samples", RequestedBy: "alice", RetentionOverride: &override})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	job := wait(t, r, res.Job.ID)

	rec, err := f.index.Get(context.Background(), job.ResultArchiveID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.RetentionUntil == nil || !rec.RetentionUntil.Equal(now.Add(override)) {
		t.Errorf("RetentionUntil = %v, want %v", rec.RetentionUntil, now.Add(override))
	}
}

func TestRunner_MaxRecordsCap(t *testing.T) {
	f := newRunnerFixture(t)
	r := f.runner(t)

	res, err := r.Submit(context.Background(), SubmitRequest{EntityType: "samples", RequestedBy: "alice", Filters: archive.Filters{MaxRecords: 2}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	job := wait(t, r, res.Job.ID)
	if job.RecordCount != 2 {
		t.Fatalf("RecordCount = %d, want 2", job.RecordCount)
	}
	// The oldest records are taken first.
	if _, ok := f.source.ArchivedIn("S-3"); ok {
		t.Error("S-3 should be left for a later job")
	}
}

func TestRunner_EmptyRecordSet(t *testing.T) {
	f := newRunnerFixture(t)
	r := f.runner(t)

	res, err := r.Submit(context.Background(), SubmitRequest{
		EntityType:  "samples",
		Filters:     archive.Filters{Attributes: map[string]string{"lab": "east"}},
		RequestedBy: "alice",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job := wait(t, r, res.Job.ID)
	if job.Status != archive.JobFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.ErrorKind != archive.KindValidation.String() || !strings.Contains(job.ErrorDetail, archive.ErrEmptyRecordSet.Error()) {
		t.Errorf("error = %s / %s", job.ErrorKind, job.ErrorDetail)
	}
	if job.ResultArchiveID != "" || f.blobs.Len() != 0 {
		t.Error("failed job must not leave an archive behind")
	}
	if n, _ := f.index.Count(context.Background(), nil); n != 0 {
		t.Errorf("index holds %d archives, want 0", n)
	}
	if events := f.audit.Find(audit.ActionCreate, audit.OutcomeFailure); len(events) != 1 {
		t.Errorf("failure audit events = %d, want 1", len(events))
	}
}

func TestRunner_SubmitValidation(t *testing.T) {
	f := newRunnerFixture(t)
	r := f.runner(t)
	from := now
	to := now.Add(-time.Hour)
	negative := -time.Hour

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing entity type", SubmitRequest{RequestedBy: "alice"}},
		{"missing requester", SubmitRequest{EntityType: "samples"}},
		{"inverted range", SubmitRequest{EntityType: "samples", RequestedBy: "alice", Filters: archive.Filters{From: &from, To: &to}}},
		{"negative override", SubmitRequest{EntityType: "samples", RequestedBy: "alice", RetentionOverride: &negative}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Submit(context.Background(), tt.req)
			if !archive.IsKind(err, archive.KindValidation) {
				t.Errorf("Submit() error = %v, want validation", err)
			}
		})
	}
	if jobs, _ := f.store.List(context.Background(), JobQuery{}); len(jobs) != 0 {
		t.Errorf("rejected submissions created %d jobs", len(jobs))
	}
}

func TestRunner_DuplicateInFlight(t *testing.T) {
	req := SubmitRequest{EntityType: "samples", RequestedBy: "alice", Filters: archive.Filters{Attributes: map[string]string{"lab": "north"}}}

	t.Run("join", func(t *testing.T) {
		f := newRunnerFixture(t)
		gated := newGatedSource(f.source)
		f.cfg.Source = gated
		r := f.runner(t)
		ctx := context.Background()

		first, err := r.Submit(ctx, req)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		<-gated.entered

		req2 := req
		req2.RequestedBy = "bob"
		second, err := r.Submit(ctx, req2)
		if err != nil {
			t.Fatalf("duplicate Submit failed: %v", err)
		}
		if !second.Joined || second.Job.ID != first.Job.ID {
			t.Errorf("duplicate Submit() = %+v, want join of %s", second, first.Job.ID)
		}
		if active := r.ListActive(); len(active) != 1 || active[0].Status != archive.JobRunning {
			t.Errorf("ListActive() = %+v, want one running job", active)
		}

		close(gated.gate)
		wait(t, r, first.Job.ID)

		// The signature is free again once the job is terminal.
		third, err := r.Submit(ctx, req)
		if err != nil {
			t.Fatalf("Submit after completion failed: %v", err)
		}
		if third.Joined || third.Job.ID == first.Job.ID {
			t.Error("submission after completion should start a new job")
		}
		wait(t, r, third.Job.ID)
	})

	t.Run("reject", func(t *testing.T) {
		f := newRunnerFixture(t)
		gated := newGatedSource(f.source)
		f.cfg.Source = gated
		f.cfg.DuplicatePolicy = DuplicateReject
		r := f.runner(t)
		ctx := context.Background()

		first, err := r.Submit(ctx, req)
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		_, err = r.Submit(ctx, req)
		if !errors.Is(err, archive.ErrDuplicateInFlight) || !archive.IsKind(err, archive.KindConflict) {
			t.Errorf("duplicate Submit() error = %v, want conflict", err)
		}

		close(gated.gate)
		wait(t, r, first.Job.ID)
	})
}

func TestRunner_Timeout(t *testing.T) {
	f := newRunnerFixture(t)
	gated := newGatedSource(f.source)
	f.cfg.Source = gated
	f.cfg.Timeout = 50 * time.Millisecond
	r := f.runner(t)

	res, err := r.Submit(context.Background(), SubmitRequest{EntityType: "samples", RequestedBy: "alice"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	job := wait(t, r, res.Job.ID)
	if job.Status != archive.JobFailed || !strings.Contains(job.ErrorDetail, archive.ErrJobTimeout.Error()) {
		t.Fatalf("job = %s / %s, want timeout failure", job.Status, job.ErrorDetail)
	}

	// Let the abandoned pipeline finish; it must not publish its archive.
	close(gated.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n, _ := f.index.Count(context.Background(), nil); n != 0 {
		t.Errorf("index holds %d archives after timeout, want 0", n)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("blob store holds %d payloads after timeout, want 0", f.blobs.Len())
	}
	if _, ok := f.source.ArchivedIn("S-1"); ok {
		t.Error("records must stay pending after a timed out job")
	}
}

// countingSource tracks how many QueryRecords calls run at once.
type countingSource struct {
	archive.RecordSource
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (s *countingSource) QueryRecords(ctx context.Context, entityType string, filters archive.Filters) ([]*archive.Record, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()
	return s.RecordSource.QueryRecords(ctx, entityType, filters)
}

func TestRunner_TimedOutJobKeepsSignatureUntilPipelineStops(t *testing.T) {
	f := newRunnerFixture(t)
	gated := newGatedSource(f.source)
	counting := &countingSource{RecordSource: gated}
	f.cfg.Source = counting
	f.cfg.Timeout = 50 * time.Millisecond
	r := f.runner(t)

	req := SubmitRequest{EntityType: "samples", RequestedBy: "alice"}
	first, err := r.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	job := wait(t, r, first.Job.ID)
	if job.Status != archive.JobFailed {
		t.Fatalf("first job status = %s, want failed", job.Status)
	}

	// The first pipeline is still blocked in the source.
	_, err = r.Submit(context.Background(), req)
	if !archive.IsKind(err, archive.KindConflict) || !errors.Is(err, archive.ErrDuplicateInFlight) {
		t.Fatalf("Submit while draining error = %v, want duplicate in-flight conflict", err)
	}
	if active := r.ListActive(); len(active) != 0 {
		t.Errorf("ListActive() = %d jobs, want 0 for a failed job", len(active))
	}

	close(gated.gate)

	var second *SubmitResult
	deadline := time.Now().Add(5 * time.Second)
	for {
		second, err = r.Submit(context.Background(), req)
		if err == nil {
			break
		}
		if !archive.IsKind(err, archive.KindConflict) || time.Now().After(deadline) {
			t.Fatalf("Submit after pipeline stopped failed: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if second.Joined || second.Job.ID == first.Job.ID {
		t.Fatalf("second submission = %+v, want a new job", second)
	}
	if job := wait(t, r, second.Job.ID); job.Status != archive.JobCompleted {
		t.Fatalf("second job status = %s (%s), want completed", job.Status, job.ErrorDetail)
	}

	counting.mu.Lock()
	maxSeen := counting.maxSeen
	counting.mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("%d pipelines queried records at once for one signature, want 1", maxSeen)
	}
	if n, _ := f.index.Count(context.Background(), nil); n != 1 {
		t.Errorf("index holds %d archives, want 1", n)
	}
}

func TestRunner_Recover(t *testing.T) {
	f := newRunnerFixture(t)
	ctx := context.Background()

	stale := testJob("stale-1", now.Add(-time.Hour), archive.JobRunning)
	done := testJob("done-1", now.Add(-2*time.Hour), archive.JobCompleted)
	for _, job := range []*archive.Job{stale, done} {
		if err := f.store.Create(ctx, job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	r := f.runner(t)
	n, err := r.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Recover() = %d, want 1", n)
	}

	got, err := r.GetStatus(ctx, "stale-1")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if got.Status != archive.JobFailed || got.FinishedAt == nil || !strings.HasPrefix(got.ErrorDetail, "interrupted") {
		t.Errorf("recovered job = %+v", got)
	}
	if got, _ := r.GetStatus(ctx, "done-1"); got.Status != archive.JobCompleted {
		t.Errorf("completed job changed to %s", got.Status)
	}
}

func TestRunner_GetStatusNotFound(t *testing.T) {
	r := newRunnerFixture(t).runner(t)
	_, err := r.GetStatus(context.Background(), "missing")
	if !archive.IsKind(err, archive.KindNotFound) {
		t.Errorf("GetStatus() error = %v, want not found", err)
	}
}

func TestRunner_ClosedRejectsSubmit(t *testing.T) {
	r := newRunnerFixture(t).runner(t)
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := r.Submit(context.Background(), SubmitRequest{EntityType: "samples", RequestedBy: "alice"}); err == nil {
		t.Error("Submit() after Close should fail")
	}
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	f := newRunnerFixture(t)
	cfg := f.cfg
	cfg.Index = nil
	if _, err := NewRunner(cfg); err == nil {
		t.Error("NewRunner() without index should fail")
	}

	cfg = f.cfg
	cfg.DuplicatePolicy = "merge"
	if _, err := NewRunner(cfg); err == nil {
		t.Error("NewRunner() with unknown duplicate policy should fail")
	}
}

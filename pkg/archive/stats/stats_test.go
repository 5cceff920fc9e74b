package stats

import (
	"context"
	"math"
	"testing"
	"time"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/index"
	"archival-hq/keeper/pkg/archive/jobs"
)

var now = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

type policyList []archive.RetentionPolicy

func (p policyList) List() []archive.RetentionPolicy { return p }

func seed(t *testing.T) (*index.MemoryIndex, *jobs.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	idx := index.NewMemoryIndex()
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	archives := []*archive.ArchiveRecord{
		{ID: "a1", EntityType: "samples", RecordCount: 10, SizeBytes: 100, UncompressedBytes: 400, RetentionUntil: &past},
		{ID: "a2", EntityType: "samples", RecordCount: 5, SizeBytes: 50, UncompressedBytes: 100, RetentionUntil: &past, LegalHold: true},
		{ID: "a3", EntityType: "cases", RecordCount: 2, SizeBytes: 500, UncompressedBytes: 500, RetentionUntil: &future},
	}
	for i, rec := range archives {
		rec.Checksum = "sum"
		rec.CreatedAt = now.Add(-time.Duration(48+i) * time.Hour)
		rec.CreatedBy = "alice"
		rec.Status = archive.StatusComplete
		if _, err := idx.Create(ctx, rec); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	store := jobs.NewMemoryStore()
	statuses := []archive.JobStatus{archive.JobCompleted, archive.JobCompleted, archive.JobCompleted, archive.JobFailed, archive.JobRunning}
	for i, status := range statuses {
		job := &archive.Job{ID: string(rune('j' + i)), EntityType: "samples", CreatedAt: now, Status: status, RequestedBy: "alice"}
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create job failed: %v", err)
		}
	}
	return idx, store
}

func TestAggregator_Metrics(t *testing.T) {
	idx, store := seed(t)
	policies := policyList{
		{EntityType: "samples", RetentionPeriod: time.Hour},
		{EntityType: "cases", RetentionPeriod: 0},
	}
	agg := NewAggregator(idx, store, policies, func() time.Time { return now })

	m, err := agg.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}

	if m.Storage.TotalArchives != 3 || m.Storage.TotalSizeBytes != 650 || m.Storage.TotalUncompressedBytes != 1000 {
		t.Errorf("Storage = %+v", m.Storage)
	}
	if m.Archival.CompletedJobs != 3 || m.Archival.FailedJobs != 1 || m.Archival.ActiveJobs != 1 {
		t.Errorf("job counts = %+v", m.Archival)
	}
	if m.Archival.TotalRecordsArchived != 17 {
		t.Errorf("TotalRecordsArchived = %d, want 17", m.Archival.TotalRecordsArchived)
	}
	// (4 + 2 + 1) / 3
	if math.Abs(m.Archival.AvgCompressionRatio-7.0/3.0) > 1e-9 {
		t.Errorf("AvgCompressionRatio = %f", m.Archival.AvgCompressionRatio)
	}
	if m.Archival.JobSuccessRate != 0.75 {
		t.Errorf("JobSuccessRate = %f, want 0.75", m.Archival.JobSuccessRate)
	}
	if m.Retention.PoliciesEnforced != 1 || m.Retention.LegalHoldsActive != 1 || m.Retention.ExpiredArchives != 1 {
		t.Errorf("Retention = %+v", m.Retention)
	}
}

func TestAggregator_AlwaysRecomputes(t *testing.T) {
	idx, store := seed(t)
	agg := NewAggregator(idx, store, nil, func() time.Time { return now })
	ctx := context.Background()

	first, _ := agg.Metrics(ctx)
	if err := idx.Delete(ctx, "a3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	second, _ := agg.Metrics(ctx)

	if second.Storage.TotalArchives != first.Storage.TotalArchives-1 {
		t.Errorf("TotalArchives = %d after delete, want %d", second.Storage.TotalArchives, first.Storage.TotalArchives-1)
	}
}

func TestAggregator_Empty(t *testing.T) {
	agg := NewAggregator(index.NewMemoryIndex(), jobs.NewMemoryStore(), nil, nil)
	m, err := agg.Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if m.Archival.AvgCompressionRatio != 0 || m.Archival.JobSuccessRate != 0 || m.Storage.TotalArchives != 0 {
		t.Errorf("Metrics() on empty engine = %+v", m)
	}
}

func TestAggregator_StorageBreakdown(t *testing.T) {
	idx, store := seed(t)
	agg := NewAggregator(idx, store, nil, nil)

	breakdown, err := agg.StorageBreakdown(context.Background())
	if err != nil {
		t.Fatalf("StorageBreakdown failed: %v", err)
	}
	if len(breakdown) != 2 {
		t.Fatalf("StorageBreakdown() returned %d entries, want 2", len(breakdown))
	}

	cases, samples := breakdown[0], breakdown[1]
	if cases.EntityType != "cases" || cases.SizeBytes != 500 || cases.Archives != 1 {
		t.Errorf("cases = %+v", cases)
	}
	if samples.EntityType != "samples" || samples.Archives != 2 || samples.Records != 15 || samples.LegalHolds != 1 {
		t.Errorf("samples = %+v", samples)
	}
	if math.Abs(samples.AvgCompressionRatio-3) > 1e-9 {
		t.Errorf("samples ratio = %f, want 3", samples.AvgCompressionRatio)
	}
}

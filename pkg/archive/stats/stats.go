// Package stats computes archive statistics from the catalog and job
// history. Every call recomputes from scratch.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/archive/jobs"
	"archival-hq/keeper/pkg/archive/retention"
)

// pageSize is the number of catalog entries read per List call.
const pageSize = 1000

// PolicyLister lists the configured retention policies.
type PolicyLister interface {
	List() []archive.RetentionPolicy
}

// Storage summarizes stored archives.
type Storage struct {
	TotalArchives          int64 `json:"total_archives"`
	TotalSizeBytes         int64 `json:"total_size_bytes"`
	TotalUncompressedBytes int64 `json:"total_uncompressed_bytes"`
}

// Archival summarizes archival jobs and archived records.
type Archival struct {
	CompletedJobs        int     `json:"completed_jobs"`
	FailedJobs           int     `json:"failed_jobs"`
	ActiveJobs           int     `json:"active_jobs"`
	TotalRecordsArchived int64   `json:"total_records_archived"`
	AvgCompressionRatio  float64 `json:"avg_compression_ratio"`

	// JobSuccessRate is completed / (completed + failed), 0 without
	// finished jobs.
	JobSuccessRate float64 `json:"job_success_rate"`
}

// Retention summarizes retention state.
type Retention struct {
	// PoliciesEnforced counts configured policies with a finite period.
	PoliciesEnforced int `json:"policies_enforced"`
	LegalHoldsActive int `json:"legal_holds_active"`

	// ExpiredArchives counts archives a live sweep would delete now.
	ExpiredArchives int `json:"expired_archives"`
}

// Metrics is the aggregate returned by Aggregator.Metrics.
type Metrics struct {
	Storage    Storage   `json:"storage"`
	Archival   Archival  `json:"archival"`
	Retention  Retention `json:"retention"`
	ComputedAt time.Time `json:"computed_at"`
}

// EntityStorage is the storage used by one entity type.
type EntityStorage struct {
	EntityType          string  `json:"entity_type"`
	Archives            int64   `json:"archives"`
	Records             int64   `json:"records"`
	SizeBytes           int64   `json:"size_bytes"`
	UncompressedBytes   int64   `json:"uncompressed_bytes"`
	AvgCompressionRatio float64 `json:"avg_compression_ratio"`
	LegalHolds          int     `json:"legal_holds"`
}

// Aggregator computes statistics.
type Aggregator struct {
	index    archive.Index
	jobs     jobs.Store
	policies PolicyLister
	clock    func() time.Time
}

// NewAggregator creates an aggregator. policies may be nil.
func NewAggregator(index archive.Index, jobStore jobs.Store, policies PolicyLister, clock func() time.Time) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{index: index, jobs: jobStore, policies: policies, clock: clock}
}

// Metrics computes storage, archival and retention statistics.
func (a *Aggregator) Metrics(ctx context.Context) (*Metrics, error) {
	now := a.clock().UTC()
	m := &Metrics{ComputedAt: now}

	var ratioSum float64
	var ratioCount int
	err := a.eachArchive(ctx, func(rec *archive.ArchiveRecord) {
		m.Storage.TotalArchives++
		m.Storage.TotalSizeBytes += rec.SizeBytes
		m.Storage.TotalUncompressedBytes += rec.UncompressedBytes
		m.Archival.TotalRecordsArchived += int64(rec.RecordCount)
		if r := rec.CompressionRatio(); r > 0 {
			ratioSum += r
			ratioCount++
		}
		if rec.LegalHold {
			m.Retention.LegalHoldsActive++
		}
		if retention.IsExpired(rec, now) {
			m.Retention.ExpiredArchives++
		}
	})
	if err != nil {
		return nil, err
	}
	if ratioCount > 0 {
		m.Archival.AvgCompressionRatio = ratioSum / float64(ratioCount)
	}

	if a.jobs != nil {
		history, err := a.jobs.List(ctx, jobs.JobQuery{})
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		for _, job := range history {
			switch job.Status {
			case archive.JobCompleted:
				m.Archival.CompletedJobs++
			case archive.JobFailed:
				m.Archival.FailedJobs++
			default:
				m.Archival.ActiveJobs++
			}
		}
		if finished := m.Archival.CompletedJobs + m.Archival.FailedJobs; finished > 0 {
			m.Archival.JobSuccessRate = float64(m.Archival.CompletedJobs) / float64(finished)
		}
	}

	if a.policies != nil {
		for _, p := range a.policies.List() {
			if p.RetentionPeriod > 0 {
				m.Retention.PoliciesEnforced++
			}
		}
	}

	return m, nil
}

// StorageBreakdown returns per-entity-type storage, largest first.
func (a *Aggregator) StorageBreakdown(ctx context.Context) ([]EntityStorage, error) {
	byType := make(map[string]*EntityStorage)
	ratios := make(map[string][2]float64) // sum, count

	err := a.eachArchive(ctx, func(rec *archive.ArchiveRecord) {
		es, ok := byType[rec.EntityType]
		if !ok {
			es = &EntityStorage{EntityType: rec.EntityType}
			byType[rec.EntityType] = es
		}
		es.Archives++
		es.Records += int64(rec.RecordCount)
		es.SizeBytes += rec.SizeBytes
		es.UncompressedBytes += rec.UncompressedBytes
		if rec.LegalHold {
			es.LegalHolds++
		}
		if r := rec.CompressionRatio(); r > 0 {
			acc := ratios[rec.EntityType]
			ratios[rec.EntityType] = [2]float64{acc[0] + r, acc[1] + 1}
		}
	})
	if err != nil {
		return nil, err
	}

	out := make([]EntityStorage, 0, len(byType))
	for entityType, es := range byType {
		if acc := ratios[entityType]; acc[1] > 0 {
			es.AvgCompressionRatio = acc[0] / acc[1]
		}
		out = append(out, *es)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SizeBytes != out[j].SizeBytes {
			return out[i].SizeBytes > out[j].SizeBytes
		}
		return out[i].EntityType < out[j].EntityType
	})
	return out, nil
}

// eachArchive visits every catalog entry, page by page.
func (a *Aggregator) eachArchive(ctx context.Context, fn func(*archive.ArchiveRecord)) error {
	for offset := 0; ; offset += pageSize {
		page, err := a.index.List(ctx, &archive.ListQuery{Limit: pageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("list archives: %w", err)
		}
		for _, rec := range page {
			fn(rec)
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

package engine

import (
	"io"
	"time"

	"archival-hq/keeper/pkg/archive"
	"archival-hq/keeper/pkg/security/access"
)

// CreateArchiveRequest asks for the matching live records of an entity type
// to be packaged into a new archive.
type CreateArchiveRequest struct {
	Caller     access.Identity
	EntityType string
	Filters    archive.Filters

	// RetentionOverride replaces the policy retention period for this
	// archive. Requires the retention override permission.
	RetentionOverride *time.Duration
}

// ListArchivesRequest lists catalog entries.
type ListArchivesRequest struct {
	Caller access.Identity
	Query  archive.ListQuery
}

// SearchArchivesRequest runs a free-text search over catalog metadata.
type SearchArchivesRequest struct {
	Caller     access.Identity
	Text       string
	EntityType string
	Limit      int
	Offset     int
}

// ArchivePage is one page of catalog entries.
type ArchivePage struct {
	Archives []*archive.ArchiveRecord `json:"archives"`
	Total    int64                    `json:"total"`
	Limit    int                      `json:"limit"`
	Offset   int                      `json:"offset"`
}

// GetArchiveRequest fetches one catalog entry.
type GetArchiveRequest struct {
	Caller    access.Identity
	ArchiveID string
}

// RetrieveArchiveRequest reads the records of an archive back.
type RetrieveArchiveRequest struct {
	Caller    access.Identity
	ArchiveID string

	// Filters narrows the returned records. MaxRecords is ignored.
	Filters archive.Filters

	// Limit caps the number of records returned. 0 returns all.
	Limit int
}

// VerifyArchiveRequest checks an archive's integrity.
type VerifyArchiveRequest struct {
	Caller    access.Identity
	ArchiveID string
}

// ExportMetadataRequest writes catalog metadata to Writer.
type ExportMetadataRequest struct {
	Caller access.Identity

	// Format is "json" or "csv".
	Format string

	// Query selects the archives. A zero Limit exports every match.
	Query archive.ListQuery

	Writer io.Writer
}

// ImportRecordsRequest loads live records into the record source.
type ImportRecordsRequest struct {
	Caller  access.Identity
	Records []*archive.Record
}

// ListJobsRequest lists archival jobs, newest first.
type ListJobsRequest struct {
	Caller     access.Identity
	EntityType string
	Status     archive.JobStatus
	ActiveOnly bool
	Limit      int
	Offset     int
}

// GetJobRequest fetches one job.
type GetJobRequest struct {
	Caller access.Identity
	JobID  string
}

// WaitJobRequest blocks until a job reaches a terminal state.
type WaitJobRequest struct {
	Caller access.Identity
	JobID  string
}

// ListRetentionPoliciesRequest lists the effective retention policies.
type ListRetentionPoliciesRequest struct {
	Caller access.Identity
}

// EnforceRetentionRequest runs a retention sweep.
type EnforceRetentionRequest struct {
	Caller     access.Identity
	EntityType string // empty sweeps every entity type
	DryRun     bool
}

// MetricsRequest computes archive statistics.
type MetricsRequest struct {
	Caller access.Identity
}

// StorageBreakdownRequest computes storage use per entity type.
type StorageBreakdownRequest struct {
	Caller access.Identity
}

// SetLegalHoldRequest places (Hold=true) or releases a legal hold.
type SetLegalHoldRequest struct {
	Caller    access.Identity
	ArchiveID string
	Hold      bool

	// Reason justifies the hold. Required when placing.
	Reason string
}

// OverrideRetentionRequest replaces an archive's retention deadline. Exactly
// one of RetentionUntil and Indefinite must be set.
type OverrideRetentionRequest struct {
	Caller         access.Identity
	ArchiveID      string
	RetentionUntil *time.Time
	Indefinite     bool
}

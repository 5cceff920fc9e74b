package archive

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of an archive catalog entry.
type Status string

const (
	// StatusComplete marks a fully written and indexed archive.
	StatusComplete Status = "complete"

	// StatusDeleting marks an archive whose deletion is in progress.
	StatusDeleting Status = "deleting"
)

// Valid reports whether s is a known archive status.
func (s Status) Valid() bool {
	return s == StatusComplete || s == StatusDeleting
}

// ArchiveRecord is the catalog entry for a single archive. It is owned
// exclusively by the Archive Index.
//
// Once created, only LegalHold (with its holder fields), RetentionUntil and
// Status may change; see Mutation.
type ArchiveRecord struct {
	// Identity
	ID         string  `json:"id"`          // UUID v4, assigned at creation
	EntityType string  `json:"entity_type"` // e.g. "samples", "cases"
	Filters    Filters `json:"filters"`     // Predicate used to select records

	// Content
	RecordCount       int    `json:"record_count"`
	SizeBytes         int64  `json:"size_bytes"`         // Stored payload size
	UncompressedBytes int64  `json:"uncompressed_bytes"` // Serialized size before compression
	Checksum          string `json:"checksum"`           // SHA-256 of stored payload
	Compression       string `json:"compression"`        // "zstd", "lz4", "none"
	Encrypted         bool   `json:"encrypted"`
	EncryptionScheme  string `json:"encryption_scheme,omitempty"`
	Signature         string `json:"signature,omitempty"` // base64 ed25519 over checksum
	SigningKeyID      string `json:"signing_key_id,omitempty"`

	// Retention
	RetentionUntil  *time.Time `json:"retention_until,omitempty"` // nil = indefinite
	LegalHold       bool       `json:"legal_hold"`
	LegalHoldBy     string     `json:"legal_hold_by,omitempty"`
	LegalHoldReason string     `json:"legal_hold_reason,omitempty"`
	LegalHoldAt     *time.Time `json:"legal_hold_at,omitempty"`

	// Provenance
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
	JobID     string    `json:"job_id,omitempty"`

	Status Status `json:"status"`
}

// CompressionRatio returns uncompressed bytes per stored byte, or 0 when
// the archive has no size.
func (r *ArchiveRecord) CompressionRatio() float64 {
	if r.SizeBytes <= 0 {
		return 0
	}
	return float64(r.UncompressedBytes) / float64(r.SizeBytes)
}

// Clone returns a deep copy of the record.
func (r *ArchiveRecord) Clone() *ArchiveRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Filters = r.Filters.Clone()
	c.RetentionUntil = cloneTime(r.RetentionUntil)
	c.LegalHoldAt = cloneTime(r.LegalHoldAt)
	return &c
}

// HoldChange places or releases a legal hold.
type HoldChange struct {
	Active bool
	By     string
	Reason string
	At     time.Time
}

// Mutation is the complete set of changes the index accepts after creation.
// Nil fields are left untouched.
type Mutation struct {
	// LegalHold places or releases a hold together with its holder details.
	LegalHold *HoldChange

	// RetentionUntil sets a new retention deadline.
	RetentionUntil *time.Time

	// ClearRetention removes the deadline (retain indefinitely).
	ClearRetention bool

	// Status moves the archive between complete and deleting.
	Status *Status

	// IfStatus, when set, fails the update with ErrPrecondition unless the
	// current status matches.
	IfStatus Status

	// RequireNoHold fails the update with ErrPrecondition if the archive is
	// currently under legal hold.
	RequireNoHold bool
}

// Apply checks the preconditions against rec and applies the mutation in
// place. Index implementations call it inside their critical section.
func (m Mutation) Apply(rec *ArchiveRecord) error {
	if m.IfStatus != "" && rec.Status != m.IfStatus {
		return fmt.Errorf("%w: archive status is %s, expected %s", ErrPrecondition, rec.Status, m.IfStatus)
	}
	if m.RequireNoHold && rec.LegalHold {
		return fmt.Errorf("%w: archive is under legal hold", ErrPrecondition)
	}
	if m.Status != nil && !m.Status.Valid() {
		return fmt.Errorf("invalid status %q", *m.Status)
	}

	if m.LegalHold != nil {
		if m.LegalHold.Active {
			at := m.LegalHold.At
			rec.LegalHold = true
			rec.LegalHoldBy = m.LegalHold.By
			rec.LegalHoldReason = m.LegalHold.Reason
			rec.LegalHoldAt = &at
		} else {
			rec.LegalHold = false
			rec.LegalHoldBy = ""
			rec.LegalHoldReason = ""
			rec.LegalHoldAt = nil
		}
	}
	if m.ClearRetention {
		rec.RetentionUntil = nil
	} else if m.RetentionUntil != nil {
		rec.RetentionUntil = cloneTime(m.RetentionUntil)
	}
	if m.Status != nil {
		rec.Status = *m.Status
	}
	return nil
}

// Filters is the predicate used to select live records for archival. All
// set fields compose with logical AND.
type Filters struct {
	From       *time.Time        `json:"from,omitempty" cbor:"from,omitempty" yaml:"from,omitempty"`
	To         *time.Time        `json:"to,omitempty" cbor:"to,omitempty" yaml:"to,omitempty"`
	MinSize    *int64            `json:"min_size,omitempty" cbor:"min_size,omitempty" yaml:"min_size,omitempty"`
	MaxSize    *int64            `json:"max_size,omitempty" cbor:"max_size,omitempty" yaml:"max_size,omitempty"`
	MaxRecords int               `json:"max_records,omitempty" cbor:"max_records,omitempty" yaml:"max_records,omitempty"`
	Text       string            `json:"text,omitempty" cbor:"text,omitempty" yaml:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" cbor:"attributes,omitempty" yaml:"attributes,omitempty"`
}

var attributeKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Validate checks that the filter ranges are well formed.
func (f Filters) Validate() error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return fmt.Errorf("filter from must be before to")
	}
	if f.MinSize != nil && *f.MinSize < 0 {
		return fmt.Errorf("filter min_size must be >= 0")
	}
	if f.MinSize != nil && f.MaxSize != nil && *f.MinSize > *f.MaxSize {
		return fmt.Errorf("filter min_size must be <= max_size")
	}
	if f.MaxRecords < 0 {
		return fmt.Errorf("filter max_records must be >= 0")
	}
	for key := range f.Attributes {
		if !attributeKeyPattern.MatchString(key) {
			return fmt.Errorf("invalid attribute key %q", key)
		}
	}
	return nil
}

// Matches reports whether a live record satisfies the filter. MaxRecords is
// a selection cap and is not evaluated per record.
func (f Filters) Matches(r *Record) bool {
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CreatedAt.After(*f.To) {
		return false
	}
	if f.MinSize != nil && r.SizeBytes < *f.MinSize {
		return false
	}
	if f.MaxSize != nil && r.SizeBytes > *f.MaxSize {
		return false
	}
	for key, want := range f.Attributes {
		if got, ok := r.Attributes[key]; !ok || got != want {
			return false
		}
	}
	if f.Text != "" && !r.containsText(f.Text) {
		return false
	}
	return true
}

// IsZero reports whether no predicate is set.
func (f Filters) IsZero() bool {
	return f.From == nil && f.To == nil && f.MinSize == nil && f.MaxSize == nil &&
		f.MaxRecords == 0 && f.Text == "" && len(f.Attributes) == 0
}

// Clone returns a deep copy of the filter.
func (f Filters) Clone() Filters {
	c := f
	c.From = cloneTime(f.From)
	c.To = cloneTime(f.To)
	if f.MinSize != nil {
		v := *f.MinSize
		c.MinSize = &v
	}
	if f.MaxSize != nil {
		v := *f.MaxSize
		c.MaxSize = &v
	}
	if f.Attributes != nil {
		c.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			c.Attributes[k] = v
		}
	}
	return c
}

// String renders the filter in a stable, human readable form.
func (f Filters) String() string {
	var parts []string
	if f.From != nil {
		parts = append(parts, "from="+f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		parts = append(parts, "to="+f.To.UTC().Format(time.RFC3339))
	}
	if f.MinSize != nil {
		parts = append(parts, fmt.Sprintf("min_size=%d", *f.MinSize))
	}
	if f.MaxSize != nil {
		parts = append(parts, fmt.Sprintf("max_size=%d", *f.MaxSize))
	}
	if f.MaxRecords > 0 {
		parts = append(parts, fmt.Sprintf("max_records=%d", f.MaxRecords))
	}
	if f.Text != "" {
		parts = append(parts, fmt.Sprintf("text=%q", f.Text))
	}
	keys := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, f.Attributes[k]))
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, " ")
}

// Record is a live operational record as returned by a RecordSource. The
// engine treats Data as opaque.
type Record struct {
	ID         string            `json:"id" cbor:"id"`
	EntityType string            `json:"entity_type" cbor:"entity_type"`
	CreatedAt  time.Time         `json:"created_at" cbor:"created_at"`
	SizeBytes  int64             `json:"size_bytes" cbor:"size_bytes"`
	Attributes map[string]string `json:"attributes,omitempty" cbor:"attributes,omitempty"`
	Data       []byte            `json:"data,omitempty" cbor:"data,omitempty"`
}

func (r *Record) containsText(text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(r.ID), needle) {
		return true
	}
	for k, v := range r.Attributes {
		if strings.Contains(strings.ToLower(k), needle) || strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// JobStatus is the lifecycle state of an archival job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is an archival job. Owned exclusively by the job runner; transitions
// are queued → running → completed|failed and terminal states are final.
type Job struct {
	ID                string         `json:"id"`
	EntityType        string         `json:"entity_type"`
	Filters           Filters        `json:"filters"`
	RequestedBy       string         `json:"requested_by"`
	CreatedAt         time.Time      `json:"created_at"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`
	Status            JobStatus      `json:"status"`
	ResultArchiveID   string         `json:"result_archive_id,omitempty"` // completed only
	ErrorDetail       string         `json:"error_detail,omitempty"`      // failed only
	ErrorKind         string         `json:"error_kind,omitempty"`        // failed only
	Signature         string         `json:"signature"`
	RetentionOverride *time.Duration `json:"retention_override,omitempty"`
	RecordCount       int            `json:"record_count"`
	Warnings          []string       `json:"warnings,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Filters = j.Filters.Clone()
	c.StartedAt = cloneTime(j.StartedAt)
	c.FinishedAt = cloneTime(j.FinishedAt)
	if j.RetentionOverride != nil {
		d := *j.RetentionOverride
		c.RetentionOverride = &d
	}
	if j.Warnings != nil {
		c.Warnings = append([]string(nil), j.Warnings...)
	}
	return &c
}

// RetentionPolicy governs how long archives of an entity type are kept.
type RetentionPolicy struct {
	EntityType string `json:"entity_type" yaml:"entity_type"`

	// RetentionPeriod is added to an archive's creation time to compute its
	// deadline. 0 means retain indefinitely.
	RetentionPeriod time.Duration `json:"retention_period" yaml:"retention_period"`

	// LegalHoldOverridable allows hold managers to release holds on this
	// entity type. When false, releasing requires the hold override permission.
	LegalHoldOverridable bool `json:"legal_hold_overridable" yaml:"legal_hold_overridable"`

	// ArchiveAfter is the minimum age a live record must reach before it is
	// eligible for archival. 0 means any age.
	ArchiveAfter time.Duration `json:"archive_after" yaml:"archive_after"`
}

// ListQuery filters and paginates archive catalog listings. All set fields
// compose with logical AND. Results are ordered newest first.
type ListQuery struct {
	EntityType  string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	MinSize     *int64
	MaxSize     *int64
	MinRecords  *int
	MaxRecords  *int
	Search      string // case-insensitive substring over id and metadata
	LegalHold   *bool
	Status      Status

	Limit  int // 0 = unlimited
	Offset int
}

// Matches reports whether rec satisfies every predicate of the query.
func (q *ListQuery) Matches(rec *ArchiveRecord) bool {
	if q.EntityType != "" && rec.EntityType != q.EntityType {
		return false
	}
	if q.CreatedFrom != nil && rec.CreatedAt.Before(*q.CreatedFrom) {
		return false
	}
	if q.CreatedTo != nil && rec.CreatedAt.After(*q.CreatedTo) {
		return false
	}
	if q.MinSize != nil && rec.SizeBytes < *q.MinSize {
		return false
	}
	if q.MaxSize != nil && rec.SizeBytes > *q.MaxSize {
		return false
	}
	if q.MinRecords != nil && rec.RecordCount < *q.MinRecords {
		return false
	}
	if q.MaxRecords != nil && rec.RecordCount > *q.MaxRecords {
		return false
	}
	if q.LegalHold != nil && rec.LegalHold != *q.LegalHold {
		return false
	}
	if q.Status != "" && rec.Status != q.Status {
		return false
	}
	if q.Search != "" && !strings.Contains(SearchText(rec), strings.ToLower(q.Search)) {
		return false
	}
	return true
}

// SearchText is the lower-cased text free-text search runs against.
func SearchText(rec *ArchiveRecord) string {
	return strings.ToLower(strings.Join([]string{
		rec.ID, rec.EntityType, rec.CreatedBy, rec.Checksum,
		rec.Filters.String(), rec.LegalHoldReason,
	}, "\n"))
}

// Index is the durable catalog of archive metadata. Create, Update and
// Delete are individually atomic per archive id.
type Index interface {
	// Create registers a new archive and returns its id. An empty ID is
	// assigned by the index. Fails with ErrDuplicateID on collision.
	Create(ctx context.Context, rec *ArchiveRecord) (string, error)

	// Get returns the archive with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*ArchiveRecord, error)

	// List returns archives matching the query, newest first.
	List(ctx context.Context, query *ListQuery) ([]*ArchiveRecord, error)

	// Count returns the number of archives matching the query, ignoring
	// pagination.
	Count(ctx context.Context, query *ListQuery) (int64, error)

	// Update applies a mutation and returns the updated record, or
	// ErrNotFound / ErrPrecondition.
	Update(ctx context.Context, id string, m Mutation) (*ArchiveRecord, error)

	// Delete removes the archive entry or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Close releases resources held by the index.
	Close() error
}

// RecordSource is the live record store, consumed read-only apart from
// marking records as archived.
type RecordSource interface {
	// QueryRecords returns the not-yet-archived records of an entity type
	// matching the filters, oldest first.
	QueryRecords(ctx context.Context, entityType string, filters Filters) ([]*Record, error)

	// MarkArchived records that the given live records are contained in
	// the archive.
	MarkArchived(ctx context.Context, archiveID string, recordIDs []string) error
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

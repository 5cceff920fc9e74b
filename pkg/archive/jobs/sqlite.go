package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"archival-hq/keeper/pkg/archive"

	_ "modernc.org/sqlite" // SQLite driver
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	filters TEXT NOT NULL,
	requested_by TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	finished_at INTEGER,
	status TEXT NOT NULL,
	result_archive_id TEXT NOT NULL DEFAULT '',
	error_detail TEXT NOT NULL DEFAULT '',
	error_kind TEXT NOT NULL DEFAULT '',
	signature TEXT NOT NULL,
	retention_override INTEGER,
	record_count INTEGER NOT NULL DEFAULT 0,
	warnings TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_entity_type ON jobs(entity_type);
`

const jobColumns = `id, entity_type, filters, requested_by, created_at, started_at, finished_at,
	status, result_archive_id, error_detail, error_kind, signature, retention_override,
	record_count, warnings`

// SQLiteStoreConfig configures the SQLite job history.
type SQLiteStoreConfig struct {
	// Path is the SQLite database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore persists job history in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed creates) the job history database.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(jobsSchema); err != nil {
		db.Close()
		return nil, archive.NewStorageError("sqlite", "schema", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "archive.jobs.sqlite"),
	}
	s.logger.Info("job history initialized", "path", cfg.Path)
	return s, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, job *archive.Job) error {
	args, err := jobArgs(job)
	if err != nil {
		return archive.NewStorageError("sqlite", "create", err)
	}

	query := fmt.Sprintf("INSERT INTO jobs (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", jobColumns)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: job %s", archive.ErrDuplicateID, job.ID)
		}
		return archive.NewStorageError("sqlite", "create", err)
	}
	return nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, job *archive.Job) error {
	args, err := jobArgs(job)
	if err != nil {
		return archive.NewStorageError("sqlite", "update", err)
	}

	// The id moves from the first argument to the WHERE clause.
	args = append(args[1:], job.ID)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET entity_type = ?, filters = ?, requested_by = ?, created_at = ?,
			started_at = ?, finished_at = ?, status = ?, result_archive_id = ?,
			error_detail = ?, error_kind = ?, signature = ?, retention_override = ?,
			record_count = ?, warnings = ?
		WHERE id = ?`, args...)
	if err != nil {
		return archive.NewStorageError("sqlite", "update", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return archive.NewStorageError("sqlite", "update", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s", archive.ErrNotFound, job.ID)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*archive.Job, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM jobs WHERE id = ?", jobColumns), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: job %s", archive.ErrNotFound, id)
	}
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "get", err)
	}
	return job, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, query JobQuery) ([]*archive.Job, error) {
	var conditions []string
	var args []interface{}

	if query.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, query.EntityType)
	}
	if query.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(query.Status))
	}
	if query.ActiveOnly {
		conditions = append(conditions, "status IN (?, ?)")
		args = append(args, string(archive.JobQueued), string(archive.JobRunning))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = -1
	}
	sqlQuery := fmt.Sprintf("SELECT %s FROM jobs %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d",
		jobColumns, where, limit, query.Offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "list", err)
	}
	defer rows.Close()

	var out []*archive.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, archive.NewStorageError("sqlite", "list", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, archive.NewStorageError("sqlite", "list", err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func jobArgs(job *archive.Job) ([]interface{}, error) {
	filters, err := json.Marshal(job.Filters)
	if err != nil {
		return nil, fmt.Errorf("marshal filters: %w", err)
	}
	warnings := job.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}

	var override interface{}
	if job.RetentionOverride != nil {
		override = int64(*job.RetentionOverride)
	}

	return []interface{}{
		job.ID,
		job.EntityType,
		string(filters),
		job.RequestedBy,
		job.CreatedAt.UnixNano(),
		nanos(job.StartedAt),
		nanos(job.FinishedAt),
		string(job.Status),
		job.ResultArchiveID,
		job.ErrorDetail,
		job.ErrorKind,
		job.Signature,
		override,
		job.RecordCount,
		string(warningsJSON),
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*archive.Job, error) {
	var (
		job                   archive.Job
		filters, warnings     string
		status                string
		createdAt             int64
		startedAt, finishedAt sql.NullInt64
		override              sql.NullInt64
	)

	err := row.Scan(
		&job.ID, &job.EntityType, &filters, &job.RequestedBy, &createdAt,
		&startedAt, &finishedAt, &status, &job.ResultArchiveID, &job.ErrorDetail,
		&job.ErrorKind, &job.Signature, &override, &job.RecordCount, &warnings,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(filters), &job.Filters); err != nil {
		return nil, fmt.Errorf("unmarshal filters: %w", err)
	}
	if err := json.Unmarshal([]byte(warnings), &job.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	if len(job.Warnings) == 0 {
		job.Warnings = nil
	}

	job.Status = archive.JobStatus(status)
	job.CreatedAt = time.Unix(0, createdAt).UTC()
	job.StartedAt = fromNanos(startedAt)
	job.FinishedAt = fromNanos(finishedAt)
	if override.Valid {
		d := time.Duration(override.Int64)
		job.RetentionOverride = &d
	}
	return &job, nil
}

func nanos(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

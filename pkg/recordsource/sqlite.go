package recordsource

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"archival-hq/keeper/pkg/archive"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    attributes TEXT NOT NULL DEFAULT '{}',
    data BLOB,
    archive_id TEXT NOT NULL DEFAULT '',
    archived_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_records_pending ON records(entity_type, created_at) WHERE archive_id = '';
CREATE INDEX IF NOT EXISTS idx_records_archive ON records(archive_id) WHERE archive_id != '';
`

// SQLiteConfig contains configuration for the SQLite record source.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// WALMode enables Write-Ahead Logging mode.
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

func (c *SQLiteConfig) dsn() string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	params.Set("_txlock", "immediate")
	if c.WALMode {
		params.Set("_journal_mode", "WAL")
	}
	return "file:" + c.Path + "?" + params.Encode()
}

// SQLiteSource implements archive.RecordSource on a SQLite table.
type SQLiteSource struct {
	db     *sql.DB
	clock  func() time.Time
	logger *slog.Logger
}

// NewSQLiteSource opens the record database and creates its table.
func NewSQLiteSource(config *SQLiteConfig) (*SQLiteSource, error) {
	if config == nil || config.Path == "" {
		return nil, errors.New("recordsource: sqlite path is required")
	}
	cfg := *config
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, archive.NewStorageError("sqlite", "create_schema", err)
	}

	logger := slog.Default().With("component", "recordsource.sqlite")
	logger.Info("SQLite record source initialized", "path", cfg.Path, "wal_mode", cfg.WALMode)

	return &SQLiteSource{db: db, clock: time.Now, logger: logger}, nil
}

// Insert adds records in one transaction. A duplicate id fails the whole
// batch with archive.ErrDuplicateID.
func (s *SQLiteSource) Insert(ctx context.Context, records ...*archive.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return archive.NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (id, entity_type, created_at, size_bytes, attributes, data)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return archive.NewStorageError("sqlite", "insert", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.ID == "" || rec.EntityType == "" {
			return fmt.Errorf("record id and entity type are required")
		}
		attrs := rec.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		attrJSON, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("marshal attributes of %s: %w", rec.ID, err)
		}
		_, err = stmt.ExecContext(ctx, rec.ID, rec.EntityType, rec.CreatedAt.UnixNano(), rec.SizeBytes, string(attrJSON), rec.Data)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
				return fmt.Errorf("%w: record %s", archive.ErrDuplicateID, rec.ID)
			}
			return archive.NewStorageError("sqlite", "insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return archive.NewStorageError("sqlite", "commit", err)
	}
	s.logger.Debug("records inserted", "count", len(records))
	return nil
}

// QueryRecords implements archive.RecordSource. Range and attribute
// predicates run in SQL; text search is applied to the scanned rows.
func (s *SQLiteSource) QueryRecords(ctx context.Context, entityType string, filters archive.Filters) ([]*archive.Record, error) {
	where, args := buildRecordWhere(entityType, filters)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, created_at, size_bytes, attributes, data FROM records WHERE `+where+
			` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "query_records", err)
	}
	defer rows.Close()

	var out []*archive.Record
	for rows.Next() {
		var (
			rec      archive.Record
			created  int64
			attrJSON string
		)
		if err := rows.Scan(&rec.ID, &rec.EntityType, &created, &rec.SizeBytes, &attrJSON, &rec.Data); err != nil {
			return nil, archive.NewStorageError("sqlite", "scan", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(attrJSON), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("record %s has malformed attributes: %w", rec.ID, err)
		}
		if len(rec.Attributes) == 0 {
			rec.Attributes = nil
		}
		if filters.Text != "" && !filters.Matches(&rec) {
			continue
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, archive.NewStorageError("sqlite", "query_records", err)
	}
	return out, nil
}

// MarkArchived implements archive.RecordSource. Records already marked keep
// their first archive id.
func (s *SQLiteSource) MarkArchived(ctx context.Context, archiveID string, recordIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return archive.NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	now := s.clock().UnixNano()
	var missing []string
	for _, id := range recordIDs {
		result, err := tx.ExecContext(ctx,
			`UPDATE records SET archive_id = ?, archived_at = ? WHERE id = ? AND archive_id = ''`,
			archiveID, now, id)
		if err != nil {
			return archive.NewStorageError("sqlite", "mark_archived", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			missing = append(missing, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return archive.NewStorageError("sqlite", "commit", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: records %v not pending", archive.ErrNotFound, missing)
	}
	return nil
}

// ArchivedIn returns the ids of records packaged into an archive.
func (s *SQLiteSource) ArchivedIn(ctx context.Context, archiveID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM records WHERE archive_id = ? ORDER BY id`, archiveID)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "archived_in", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, archive.NewStorageError("sqlite", "scan", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	if err := s.db.Close(); err != nil {
		return archive.NewStorageError("sqlite", "close", err)
	}
	return nil
}

// buildRecordWhere translates filters into a WHERE clause over pending
// records. Attribute keys are validated by Filters.Validate, so quoting them
// inside the JSON path is safe.
func buildRecordWhere(entityType string, f archive.Filters) (string, []interface{}) {
	conditions := []string{"entity_type = ?", "archive_id = ''"}
	args := []interface{}{entityType}

	if f.From != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.From.UnixNano())
	}
	if f.To != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, f.To.UnixNano())
	}
	if f.MinSize != nil {
		conditions = append(conditions, "size_bytes >= ?")
		args = append(args, *f.MinSize)
	}
	if f.MaxSize != nil {
		conditions = append(conditions, "size_bytes <= ?")
		args = append(args, *f.MaxSize)
	}
	for key, value := range f.Attributes {
		conditions = append(conditions, "json_extract(attributes, ?) = ?")
		args = append(args, `$."`+key+`"`, value)
	}

	return strings.Join(conditions, " AND "), args
}

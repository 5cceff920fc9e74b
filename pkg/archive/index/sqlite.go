package index

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

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"archival-hq/keeper/pkg/archive"
)

// SQLiteConfig contains configuration for the SQLite catalog.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/index.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// DSN builds a mattn/go-sqlite3 connection string. Journal mode and busy
// timeout are connection parameters so every pooled connection gets them,
// and _txlock=immediate makes read-modify-write transactions take the write
// lock up front.
func (c *SQLiteConfig) DSN() string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeout.Milliseconds()))
	params.Set("_txlock", "immediate")
	params.Set("_foreign_keys", "on")
	if c.WALMode {
		params.Set("_journal_mode", "WAL")
	}
	return "file:" + c.Path + "?" + params.Encode()
}

// SQLiteIndex implements archive.Index using SQLite.
type SQLiteIndex struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteIndex opens the catalog database and initializes its schema.
func NewSQLiteIndex(config *SQLiteConfig) (*SQLiteIndex, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "archive.index.sqlite")

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteIndex{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite index initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize creates the schema and verifies its version.
func (s *SQLiteIndex) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return archive.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return archive.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return archive.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return archive.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Create implements archive.Index.
func (s *SQLiteIndex) Create(ctx context.Context, rec *archive.ArchiveRecord) (string, error) {
	c := rec.Clone()
	if err := prepareNew(c); err != nil {
		return "", err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	filters, err := json.Marshal(c.Filters)
	if err != nil {
		return "", archive.NewStorageError("sqlite", "create", err)
	}

	query := `INSERT INTO archives (` + archiveColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.EntityType, string(filters),
		c.RecordCount, c.SizeBytes, c.UncompressedBytes, c.Checksum, c.Compression, c.Encrypted, c.EncryptionScheme, c.Signature, c.SigningKeyID,
		nullableNanos(c.RetentionUntil), c.LegalHold, c.LegalHoldBy, c.LegalHoldReason, nullableNanos(c.LegalHoldAt),
		c.CreatedAt.UnixNano(), c.CreatedBy, c.JobID, string(c.Status), archive.SearchText(c),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return "", fmt.Errorf("%w: %s", archive.ErrDuplicateID, c.ID)
		}
		return "", archive.NewStorageError("sqlite", "create", err)
	}

	rec.ID = c.ID
	rec.Status = c.Status
	return c.ID, nil
}

// Get implements archive.Index.
func (s *SQLiteIndex) Get(ctx context.Context, id string) (*archive.ArchiveRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+archiveColumns+` FROM archives WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: archive %s", archive.ErrNotFound, id)
	}
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "get", err)
	}
	return rec, nil
}

// List implements archive.Index.
func (s *SQLiteIndex) List(ctx context.Context, query *archive.ListQuery) ([]*archive.ArchiveRecord, error) {
	if query == nil {
		query = &archive.ListQuery{}
	}

	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT " + archiveColumns + " FROM archives"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}
	sqlQuery += " ORDER BY created_at DESC, id DESC"

	// SQLite requires a LIMIT before OFFSET; -1 means unlimited.
	limit := -1
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "list", err)
	}
	defer rows.Close()

	records := []*archive.ArchiveRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, archive.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, archive.NewStorageError("sqlite", "list", err)
	}

	return records, nil
}

// Count implements archive.Index.
func (s *SQLiteIndex) Count(ctx context.Context, query *archive.ListQuery) (int64, error) {
	if query == nil {
		query = &archive.ListQuery{}
	}
	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM archives"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, archive.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Update implements archive.Index. The read, precondition check and write
// run in one immediate transaction.
func (s *SQLiteIndex) Update(ctx context.Context, id string, mutation archive.Mutation) (*archive.ArchiveRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+archiveColumns+` FROM archives WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: archive %s", archive.ErrNotFound, id)
	}
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "update", err)
	}

	if err := mutation.Apply(rec); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE archives SET
			retention_until = ?, legal_hold = ?, legal_hold_by = ?, legal_hold_reason = ?, legal_hold_at = ?,
			status = ?, search_text = ?
		WHERE id = ?`,
		nullableNanos(rec.RetentionUntil), rec.LegalHold, rec.LegalHoldBy, rec.LegalHoldReason, nullableNanos(rec.LegalHoldAt),
		string(rec.Status), archive.SearchText(rec),
		id,
	)
	if err != nil {
		return nil, archive.NewStorageError("sqlite", "update", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, archive.NewStorageError("sqlite", "commit", err)
	}
	return rec, nil
}

// Delete implements archive.Index.
func (s *SQLiteIndex) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM archives WHERE id = ?`, id)
	if err != nil {
		return archive.NewStorageError("sqlite", "delete", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return archive.NewStorageError("sqlite", "delete", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: archive %s", archive.ErrNotFound, id)
	}
	return nil
}

// Close implements archive.Index.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return archive.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite index closed")
	return nil
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the WHERE clause (without "WHERE" keyword) and the query arguments.
func buildWhereClause(query *archive.ListQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if query.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, query.EntityType)
	}

	if query.CreatedFrom != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, query.CreatedFrom.UnixNano())
	}
	if query.CreatedTo != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, query.CreatedTo.UnixNano())
	}

	if query.MinSize != nil {
		conditions = append(conditions, "size_bytes >= ?")
		args = append(args, *query.MinSize)
	}
	if query.MaxSize != nil {
		conditions = append(conditions, "size_bytes <= ?")
		args = append(args, *query.MaxSize)
	}

	if query.MinRecords != nil {
		conditions = append(conditions, "record_count >= ?")
		args = append(args, *query.MinRecords)
	}
	if query.MaxRecords != nil {
		conditions = append(conditions, "record_count <= ?")
		args = append(args, *query.MaxRecords)
	}

	if query.LegalHold != nil {
		conditions = append(conditions, "legal_hold = ?")
		args = append(args, *query.LegalHold)
	}
	if query.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(query.Status))
	}

	if query.Search != "" {
		conditions = append(conditions, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(query.Search))+"%")
	}

	return strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a database row into an ArchiveRecord.
func scanRecord(row rowScanner) (*archive.ArchiveRecord, error) {
	var rec archive.ArchiveRecord
	var filters, status, searchText string
	var retentionUntil, legalHoldAt sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&rec.ID, &rec.EntityType, &filters,
		&rec.RecordCount, &rec.SizeBytes, &rec.UncompressedBytes, &rec.Checksum, &rec.Compression, &rec.Encrypted, &rec.EncryptionScheme, &rec.Signature, &rec.SigningKeyID,
		&retentionUntil, &rec.LegalHold, &rec.LegalHoldBy, &rec.LegalHoldReason, &legalHoldAt,
		&createdAt, &rec.CreatedBy, &rec.JobID, &status, &searchText,
	)
	if err != nil {
		return nil, err
	}

	if filters != "" {
		if err := json.Unmarshal([]byte(filters), &rec.Filters); err != nil {
			return nil, fmt.Errorf("decode filters: %w", err)
		}
	}
	rec.RetentionUntil = fromNullableNanos(retentionUntil)
	rec.LegalHoldAt = fromNullableNanos(legalHoldAt)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.Status = archive.Status(status)

	return &rec, nil
}

func nullableNanos(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNullableNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

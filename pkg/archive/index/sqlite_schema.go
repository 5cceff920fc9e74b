package index

// SchemaVersion is the current catalog schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the archive catalog.
// Timestamps are stored as Unix nanoseconds so ordering and range filters
// are plain integer comparisons.
const Schema = `
CREATE TABLE IF NOT EXISTS archives (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    filters TEXT NOT NULL,

    -- Content
    record_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    uncompressed_bytes INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    compression TEXT NOT NULL,
    encrypted BOOLEAN NOT NULL,
    encryption_scheme TEXT NOT NULL DEFAULT '',
    signature TEXT NOT NULL DEFAULT '',
    signing_key_id TEXT NOT NULL DEFAULT '',

    -- Retention
    retention_until INTEGER,
    legal_hold BOOLEAN NOT NULL DEFAULT 0,
    legal_hold_by TEXT NOT NULL DEFAULT '',
    legal_hold_reason TEXT NOT NULL DEFAULT '',
    legal_hold_at INTEGER,

    -- Provenance
    created_at INTEGER NOT NULL,
    created_by TEXT NOT NULL,
    job_id TEXT NOT NULL DEFAULT '',

    status TEXT NOT NULL,
    search_text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archives_entity_created ON archives(entity_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_archives_created ON archives(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_archives_retention ON archives(retention_until) WHERE retention_until IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_archives_legal_hold ON archives(legal_hold) WHERE legal_hold = 1;

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `INSERT INTO schema_version (version) VALUES (?) ON CONFLICT DO NOTHING`

// GetSchemaVersion returns the newest recorded schema version.
const GetSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`

const archiveColumns = `id, entity_type, filters,
	record_count, size_bytes, uncompressed_bytes, checksum, compression, encrypted, encryption_scheme, signature, signing_key_id,
	retention_until, legal_hold, legal_hold_by, legal_hold_reason, legal_hold_at,
	created_at, created_by, job_id, status, search_text`

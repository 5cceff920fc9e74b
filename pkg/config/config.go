package config

import "time"

// Config is the root configuration structure for Keeper.
// It contains every section needed to assemble an archival engine: catalog
// and payload storage, job execution, packaging, retention, the live record
// source, access control, audit, telemetry and secrets.
type Config struct {
	// Index contains configuration for the archive catalog.
	Index IndexConfig `yaml:"index"`

	// Storage contains configuration for the archive payload store.
	Storage StorageConfig `yaml:"storage"`

	// Jobs contains configuration for the archival job runner and its
	// history store.
	Jobs JobsConfig `yaml:"jobs"`

	// Packaging contains compression, encryption and signing settings for
	// new archives.
	Packaging PackagingConfig `yaml:"packaging"`

	// Retention contains retention policies, the policy file and the sweep
	// schedule.
	Retention RetentionConfig `yaml:"retention"`

	// Source contains configuration for the live record store.
	Source SourceConfig `yaml:"source"`

	// Access maps role names to permissions.
	Access AccessConfig `yaml:"access"`

	// Audit selects where audit events are written.
	Audit AuditConfig `yaml:"audit"`

	// Query contains archive listing limits.
	Query QueryConfig `yaml:"query"`

	// Export contains metadata export settings.
	Export ExportConfig `yaml:"export"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures where key material is resolved from.
	Secrets SecretsConfig `yaml:"secrets"`
}

// IndexConfig contains configuration for the archive catalog.
type IndexConfig struct {
	// Backend specifies the catalog backend.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/index.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// StorageConfig contains configuration for the payload store.
type StorageConfig struct {
	// Backend specifies where archive payloads are written.
	// Options: "filesystem", "memory"
	// Default: "filesystem"
	Backend string `yaml:"backend"`

	// Path is the root directory for the filesystem backend.
	// Default: "data/archives"
	Path string `yaml:"path"`
}

// JobsConfig contains configuration for the archival job runner.
type JobsConfig struct {
	// HistoryBackend specifies where job history is kept.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	HistoryBackend string `yaml:"history_backend"`

	// HistoryPath is the SQLite file for job history.
	// Default: "data/jobs.db"
	HistoryPath string `yaml:"history_path"`

	// Timeout bounds a single job's packaging run. A job that exceeds it
	// transitions to failed.
	// Default: 30m
	Timeout time.Duration `yaml:"timeout"`

	// MaxConcurrent is the maximum number of jobs packaging at once.
	// Default: 4
	MaxConcurrent int `yaml:"max_concurrent"`

	// DuplicatePolicy controls what happens when an identical request is
	// submitted while a job for it is still in flight.
	// Options: "join" (return the in-flight job), "reject" (conflict error)
	// Default: "join"
	DuplicatePolicy string `yaml:"duplicate_policy"`
}

// PackagingConfig contains settings for new archives.
type PackagingConfig struct {
	// Compression selects the payload compression algorithm.
	// Options: "zstd", "lz4", "none"
	// Default: "zstd"
	Compression string `yaml:"compression"`

	// Encryption contains payload encryption settings.
	Encryption EncryptionConfig `yaml:"encryption"`

	// Signing contains archive signing settings.
	Signing SigningConfig `yaml:"signing"`
}

// EncryptionConfig contains payload encryption settings.
type EncryptionConfig struct {
	// Enabled controls whether new archives are encrypted.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Scheme selects the encryption scheme.
	// Options: "xchacha20poly1305", "age"
	// Default: "xchacha20poly1305"
	Scheme string `yaml:"scheme"`

	// KeySecret names the secret holding the 32-byte master key (hex or
	// base64) for the xchacha20poly1305 scheme.
	// Default: "archive-encryption-key"
	KeySecret string `yaml:"key_secret"`

	// Recipients lists age X25519 public keys for the age scheme.
	Recipients []string `yaml:"recipients"`

	// IdentitySecret names the secret holding the age X25519 identity used
	// to decrypt archives.
	// Default: "archive-age-identity"
	IdentitySecret string `yaml:"identity_secret"`
}

// SigningConfig contains archive signing settings.
type SigningConfig struct {
	// Enabled controls whether new archives are signed.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// KeyID identifies the signing key. Signatures record it so verification
	// can find the matching public key.
	KeyID string `yaml:"key_id"`

	// PrivateKeyPath is the PEM file of the ed25519 private key.
	// Default: "<keyring_dir>/<key_id>_private.pem"
	PrivateKeyPath string `yaml:"private_key_path"`

	// KeyringDir holds "<key_id>_public.pem" files used for verification.
	// Default: "keys"
	KeyringDir string `yaml:"keyring_dir"`
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	// DefaultPeriod applies to entity types without an explicit policy.
	// 0 means retain indefinitely.
	// Default: 0
	DefaultPeriod time.Duration `yaml:"default_period"`

	// Policies lists per-entity-type retention policies.
	Policies []PolicyConfig `yaml:"policies"`

	// PolicyFile is an optional YAML file with additional policies. Entries
	// in the file take precedence over Policies.
	PolicyFile string `yaml:"policy_file"`

	// Watch reloads PolicyFile when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// Schedule is a cron expression for retention sweeps run by "keeper serve".
	// Empty disables scheduled sweeps.
	// Default: "0 3 * * *" (daily at 3 AM)
	Schedule string `yaml:"schedule"`

	// PageSize is the number of catalog entries read per page during a sweep.
	// Default: 500
	PageSize int `yaml:"page_size"`
}

// PolicyConfig is a single retention policy.
type PolicyConfig struct {
	// EntityType is the entity type the policy governs.
	EntityType string `yaml:"entity_type"`

	// RetentionPeriod is added to an archive's creation time to compute its
	// retention deadline. 0 means retain indefinitely.
	RetentionPeriod time.Duration `yaml:"retention_period"`

	// LegalHoldOverridable allows hold managers to release legal holds.
	// Default: false
	LegalHoldOverridable bool `yaml:"legal_hold_overridable"`

	// ArchiveAfter is the minimum age of a live record before it may be
	// archived.
	// Default: 0
	ArchiveAfter time.Duration `yaml:"archive_after"`
}

// SourceConfig contains configuration for the live record store.
type SourceConfig struct {
	// Backend specifies the record source.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// AccessConfig maps role names to permission lists. Roles given here replace
// the built-in role of the same name.
type AccessConfig struct {
	Roles map[string][]string `yaml:"roles"`
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	// Backend specifies where audit events go.
	// Options: "log", "memory"
	// Default: "log"
	Backend string `yaml:"backend"`
}

// QueryConfig contains archive listing limits.
type QueryConfig struct {
	// DefaultLimit is the page size when none is given.
	// Default: 100
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit is the largest page size accepted.
	// Default: 10000
	MaxLimit int `yaml:"max_limit"`
}

// ExportConfig contains metadata export configuration.
type ExportConfig struct {
	// JSONPretty enables pretty-printing for JSON exports.
	// Default: true
	JSONPretty bool `yaml:"json_pretty"`

	// CSVIncludeHeader includes a header row in CSV exports.
	// Default: true
	CSVIncludeHeader bool `yaml:"csv_include_header"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where "keeper serve" exposes the metrics endpoint.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "keeper"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "archive"
	Subsystem string `yaml:"subsystem"`

	// JobDurationBuckets defines histogram buckets for job duration (seconds).
	// Default: [0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800]
	JobDurationBuckets []float64 `yaml:"job_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "keeper"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// SecretsConfig configures secret resolution.
type SecretsConfig struct {
	// EnvPrefix is prepended to secret names looked up in the environment.
	// Default: "KEEPER_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// FileDir is an optional directory of secret files (one file per
	// secret, mode 0600 or 0400). Checked before the environment.
	FileDir string `yaml:"file_dir"`

	// Watch invalidates cached file secrets when they change.
	// Default: false
	Watch bool `yaml:"watch"`
}

package config

import "time"

// Default values for configuration fields.
const (
	// Index defaults
	DefaultIndexBackend       = "sqlite"
	DefaultIndexSQLitePath    = "data/index.db"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteMaxIdleConns = 5
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second

	// Storage defaults
	DefaultStorageBackend = "filesystem"
	DefaultStoragePath    = "data/archives"

	// Jobs defaults
	DefaultJobsHistoryBackend  = "sqlite"
	DefaultJobsHistoryPath     = "data/jobs.db"
	DefaultJobsTimeout         = 30 * time.Minute
	DefaultJobsMaxConcurrent   = 4
	DefaultJobsDuplicatePolicy = "join"

	// Packaging defaults
	DefaultCompression              = "zstd"
	DefaultEncryptionScheme         = "xchacha20poly1305"
	DefaultEncryptionKeySecret      = "archive-encryption-key"
	DefaultEncryptionIdentitySecret = "archive-age-identity"
	DefaultKeyringDir               = "keys"

	// Retention defaults
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultRetentionPageSize = 500

	// Source defaults
	DefaultSourceBackend    = "sqlite"
	DefaultSourceSQLitePath = "data/records.db"

	// Audit defaults
	DefaultAuditBackend = "log"

	// Query defaults
	DefaultQueryDefaultLimit = 100
	DefaultQueryMaxLimit     = 10000

	// Export defaults
	DefaultExportJSONPretty       = true
	DefaultExportCSVIncludeHeader = true

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9464"
	DefaultPrometheusPath       = "/metrics"
	DefaultMetricsNamespace     = "keeper"
	DefaultMetricsSubsystem     = "archive"
	DefaultTracingSampler       = "always"
	DefaultTracingSampleRatio   = 1.0
	DefaultTracingEndpoint      = "localhost:4317"
	DefaultTracingServiceName   = "keeper"
	DefaultTracingOTLPInsecure  = true
	DefaultTracingOTLPTimeout   = 10 * time.Second

	// Secrets defaults
	DefaultSecretsEnvPrefix = "KEEPER_SECRET_"
)

// DefaultJobDurationBuckets are histogram buckets for job duration in seconds.
var DefaultJobDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800}

// DefaultConfig returns a configuration with every default applied,
// including the boolean defaults that ApplyDefaults cannot infer from a zero
// value.
func DefaultConfig() *Config {
	cfg := &Config{}
		cfg.Index.SQLite.WALMode = DefaultSQLiteWALMode
		cfg.Source.SQLite.WALMode = DefaultSQLiteWALMode
		cfg.Export.JSONPretty = DefaultExportJSONPretty
		cfg.Export.CSVIncludeHeader = DefaultExportCSVIncludeHeader
		cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
		cfg.Retention.Schedule = DefaultRetentionSchedule
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
		cfg.Telemetry.Tracing.OTLP.Insecure = DefaultTracingOTLPInsecure
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	// Index defaults
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = DefaultIndexBackend
	}
	applySQLiteDefaults(&cfg.Index.SQLite, DefaultIndexSQLitePath)

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}

	// Jobs defaults
	if cfg.Jobs.HistoryBackend == "" {
		cfg.Jobs.HistoryBackend = DefaultJobsHistoryBackend
	}
	if cfg.Jobs.HistoryPath == "" {
		cfg.Jobs.HistoryPath = DefaultJobsHistoryPath
	}
	if cfg.Jobs.Timeout == 0 {
		cfg.Jobs.Timeout = DefaultJobsTimeout
	}
	if cfg.Jobs.MaxConcurrent == 0 {
		cfg.Jobs.MaxConcurrent = DefaultJobsMaxConcurrent
	}
	if cfg.Jobs.DuplicatePolicy == "" {
		cfg.Jobs.DuplicatePolicy = DefaultJobsDuplicatePolicy
	}

	// Packaging defaults
	if cfg.Packaging.Compression == "" {
		cfg.Packaging.Compression = DefaultCompression
	}
	if cfg.Packaging.Encryption.Scheme == "" {
		cfg.Packaging.Encryption.Scheme = DefaultEncryptionScheme
	}
	if cfg.Packaging.Encryption.KeySecret == "" {
		cfg.Packaging.Encryption.KeySecret = DefaultEncryptionKeySecret
	}
	if cfg.Packaging.Encryption.IdentitySecret == "" {
		cfg.Packaging.Encryption.IdentitySecret = DefaultEncryptionIdentitySecret
	}
	if cfg.Packaging.Signing.KeyringDir == "" {
		cfg.Packaging.Signing.KeyringDir = DefaultKeyringDir
	}

	// Retention defaults
	if cfg.Retention.PageSize == 0 {
		cfg.Retention.PageSize = DefaultRetentionPageSize
	}

	// Source defaults
	if cfg.Source.Backend == "" {
		cfg.Source.Backend = DefaultSourceBackend
	}
	applySQLiteDefaults(&cfg.Source.SQLite, DefaultSourceSQLitePath)

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}

	// Query defaults
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = DefaultQueryDefaultLimit
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = DefaultQueryMaxLimit
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.JobDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.JobDurationBuckets = append([]float64(nil), DefaultJobDurationBuckets...)
	}

	tr := &cfg.Telemetry.Tracing
	if tr.Sampler == "" {
		tr.Sampler = DefaultTracingSampler
	}
	if tr.Endpoint == "" {
		tr.Endpoint = DefaultTracingEndpoint
	}
	if tr.ServiceName == "" {
		tr.ServiceName = DefaultTracingServiceName
	}
	if tr.OTLP.Timeout == 0 {
		tr.OTLP.Timeout = DefaultTracingOTLPTimeout
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
}

func applySQLiteDefaults(cfg *SQLiteConfig, path string) {
	if cfg.Path == "" {
		cfg.Path = path
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

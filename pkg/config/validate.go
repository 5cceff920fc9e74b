package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "jobs.timeout").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateIndex(&cfg.Index)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateJobs(&cfg.Jobs)...)
	errs = append(errs, validatePackaging(&cfg.Packaging)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateSource(&cfg.Source)...)
	errs = append(errs, validateAccess(&cfg.Access)...)
	errs = append(errs, validateMisc(cfg)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func oneOf(field, value string, allowed ...string) []FieldError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return []FieldError{{
		Field:   field,
		Message: fmt.Sprintf("invalid value %q: must be one of %s", value, strings.Join(allowed, ", ")),
	}}
}

func validateSQLite(prefix string, cfg *SQLiteConfig) []FieldError {
	var errs []FieldError
	if cfg.Path == "" {
		errs = append(errs, FieldError{Field: prefix + ".path", Message: "path is required for sqlite backend"})
	}
	if cfg.MaxOpenConns < 1 {
		errs = append(errs, FieldError{Field: prefix + ".max_open_conns", Message: "max open connections must be at least 1"})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{Field: prefix + ".max_idle_conns", Message: "max idle connections must be non-negative"})
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		errs = append(errs, FieldError{Field: prefix + ".max_idle_conns", Message: "max idle connections cannot exceed max open connections"})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: prefix + ".busy_timeout", Message: "busy timeout must be non-negative"})
	}
	return errs
}

// validateIndex validates catalog configuration.
func validateIndex(cfg *IndexConfig) []FieldError {
	errs := oneOf("index.backend", cfg.Backend, "sqlite", "memory")
	if cfg.Backend == "sqlite" {
		errs = append(errs, validateSQLite("index.sqlite", &cfg.SQLite)...)
	}
	return errs
}

// validateStorage validates payload store configuration.
func validateStorage(cfg *StorageConfig) []FieldError {
	errs := oneOf("storage.backend", cfg.Backend, "filesystem", "memory")
	if cfg.Backend == "filesystem" && cfg.Path == "" {
		errs = append(errs, FieldError{Field: "storage.path", Message: "path is required for filesystem backend"})
	}
	return errs
}

// validateJobs validates job runner configuration.
func validateJobs(cfg *JobsConfig) []FieldError {
	errs := oneOf("jobs.history_backend", cfg.HistoryBackend, "sqlite", "memory")
	if cfg.HistoryBackend == "sqlite" && cfg.HistoryPath == "" {
		errs = append(errs, FieldError{Field: "jobs.history_path", Message: "history path is required for sqlite backend"})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "jobs.timeout", Message: "timeout must be positive"})
	}
	if cfg.MaxConcurrent < 1 {
		errs = append(errs, FieldError{Field: "jobs.max_concurrent", Message: "max concurrent must be at least 1"})
	}
	errs = append(errs, oneOf("jobs.duplicate_policy", cfg.DuplicatePolicy, "join", "reject")...)
	return errs
}

// validatePackaging validates compression, encryption and signing.
func validatePackaging(cfg *PackagingConfig) []FieldError {
	errs := oneOf("packaging.compression", cfg.Compression, "zstd", "lz4", "none")

	enc := &cfg.Encryption
	errs = append(errs, oneOf("packaging.encryption.scheme", enc.Scheme, "xchacha20poly1305", "age")...)
	if enc.Enabled {
		switch enc.Scheme {
		case "xchacha20poly1305":
			if enc.KeySecret == "" {
				errs = append(errs, FieldError{Field: "packaging.encryption.key_secret", Message: "key secret is required when encryption is enabled"})
			}
		case "age":
			if len(enc.Recipients) == 0 {
				errs = append(errs, FieldError{Field: "packaging.encryption.recipients", Message: "at least one recipient is required for the age scheme"})
			}
		}
	}

	if cfg.Signing.Enabled && cfg.Signing.KeyID == "" {
		errs = append(errs, FieldError{Field: "packaging.signing.key_id", Message: "key id is required when signing is enabled"})
	}
	return errs
}

// validateRetention validates policies and the sweep schedule.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultPeriod < 0 {
		errs = append(errs, FieldError{Field: "retention.default_period", Message: "default period must be non-negative"})
	}
	if cfg.PageSize < 1 {
		errs = append(errs, FieldError{Field: "retention.page_size", Message: "page size must be at least 1"})
	}
	if cfg.Watch && cfg.PolicyFile == "" {
		errs = append(errs, FieldError{Field: "retention.watch", Message: "watch requires a policy file"})
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "retention.schedule", Message: fmt.Sprintf("invalid cron schedule: %v", err)})
		}
	}

	seen := make(map[string]bool, len(cfg.Policies))
	for i, p := range cfg.Policies {
		prefix := fmt.Sprintf("retention.policies[%d]", i)
		if p.EntityType == "" {
			errs = append(errs, FieldError{Field: prefix + ".entity_type", Message: "entity type is required"})
		} else if seen[p.EntityType] {
			errs = append(errs, FieldError{Field: prefix + ".entity_type", Message: fmt.Sprintf("duplicate policy for %q", p.EntityType)})
		}
		seen[p.EntityType] = true
		if p.RetentionPeriod < 0 {
			errs = append(errs, FieldError{Field: prefix + ".retention_period", Message: "retention period must be non-negative"})
		}
		if p.ArchiveAfter < 0 {
			errs = append(errs, FieldError{Field: prefix + ".archive_after", Message: "archive after must be non-negative"})
		}
	}
	return errs
}

// validateSource validates the live record store configuration.
func validateSource(cfg *SourceConfig) []FieldError {
	errs := oneOf("source.backend", cfg.Backend, "sqlite", "memory")
	if cfg.Backend == "sqlite" {
		errs = append(errs, validateSQLite("source.sqlite", &cfg.SQLite)...)
	}
	return errs
}

// validateAccess checks role definitions. Permission names are checked when
// the access policy is built.
func validateAccess(cfg *AccessConfig) []FieldError {
	var errs []FieldError
	for role, perms := range cfg.Roles {
		if strings.TrimSpace(role) == "" {
			errs = append(errs, FieldError{Field: "access.roles", Message: "role name cannot be empty"})
			continue
		}
		for _, p := range perms {
			if !strings.Contains(p, ":") {
				errs = append(errs, FieldError{
					Field:   "access.roles." + role,
					Message: fmt.Sprintf("permission %q must have the form resource:action", p),
				})
			}
		}
	}
	return errs
}

// validateMisc validates audit, query and secrets settings.
func validateMisc(cfg *Config) []FieldError {
	errs := oneOf("audit.backend", cfg.Audit.Backend, "log", "memory")

	if cfg.Query.DefaultLimit < 1 {
		errs = append(errs, FieldError{Field: "query.default_limit", Message: "default limit must be at least 1"})
	}
	if cfg.Query.MaxLimit < cfg.Query.DefaultLimit {
		errs = append(errs, FieldError{Field: "query.max_limit", Message: "max limit cannot be less than default limit"})
	}
	if cfg.Secrets.Watch && cfg.Secrets.FileDir == "" {
		errs = append(errs, FieldError{Field: "secrets.watch", Message: "watch requires a secrets file directory"})
	}
	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	errs := oneOf("telemetry.logging.level", strings.ToLower(cfg.Logging.Level), "debug", "info", "warn", "error")
	errs = append(errs, oneOf("telemetry.logging.format", cfg.Logging.Format, "json", "text", "console")...)

	m := &cfg.Metrics
	if m.Enabled {
		if !strings.HasPrefix(m.Path, "/") {
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with '/'"})
		}
		if m.Namespace == "" {
			errs = append(errs, FieldError{Field: "telemetry.metrics.namespace", Message: "namespace is required"})
		}
		for i := 1; i < len(m.JobDurationBuckets); i++ {
			if m.JobDurationBuckets[i] <= m.JobDurationBuckets[i-1] {
				errs = append(errs, FieldError{Field: "telemetry.metrics.job_duration_buckets", Message: "buckets must be strictly increasing"})
				break
			}
		}
	}

	tr := &cfg.Tracing
	if tr.Enabled {
		errs = append(errs, oneOf("telemetry.tracing.sampler", tr.Sampler, "always", "never", "ratio")...)
		if tr.SampleRatio < 0 || tr.SampleRatio > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "sample ratio must be between 0.0 and 1.0"})
		}
		if tr.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
		if tr.OTLP.Timeout < 0 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.otlp.timeout", Message: "timeout must be non-negative"})
		}
	}
	return errs
}

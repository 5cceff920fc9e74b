package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "KEEPER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded over DefaultConfig, so omitted fields keep their
// defaults, then the result is validated. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	return Parse(data, path)
}

// Parse decodes YAML configuration data. The name is only used in error
// messages.
func Parse(data []byte, name string) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", name, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention KEEPER_SECTION_FIELD (e.g., KEEPER_STORAGE_PATH) and always take
// precedence over the file.
//
// The loading sequence is:
// 1. Load YAML from file over the defaults
// 2. Apply environment variable overrides
// 3. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Malformed numeric, boolean and duration values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Index overrides
	envString("INDEX_BACKEND", &cfg.Index.Backend)
	envString("INDEX_SQLITE_PATH", &cfg.Index.SQLite.Path)
	envInt("INDEX_SQLITE_MAX_OPEN_CONNS", &cfg.Index.SQLite.MaxOpenConns)
	envBool("INDEX_SQLITE_WAL_MODE", &cfg.Index.SQLite.WALMode)
	envDuration("INDEX_SQLITE_BUSY_TIMEOUT", &cfg.Index.SQLite.BusyTimeout)

	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_PATH", &cfg.Storage.Path)

	// Jobs overrides
	envString("JOBS_HISTORY_BACKEND", &cfg.Jobs.HistoryBackend)
	envString("JOBS_HISTORY_PATH", &cfg.Jobs.HistoryPath)
	envDuration("JOBS_TIMEOUT", &cfg.Jobs.Timeout)
	envInt("JOBS_MAX_CONCURRENT", &cfg.Jobs.MaxConcurrent)
	envString("JOBS_DUPLICATE_POLICY", &cfg.Jobs.DuplicatePolicy)

	// Packaging overrides
	envString("PACKAGING_COMPRESSION", &cfg.Packaging.Compression)
	envBool("PACKAGING_ENCRYPTION_ENABLED", &cfg.Packaging.Encryption.Enabled)
	envString("PACKAGING_ENCRYPTION_SCHEME", &cfg.Packaging.Encryption.Scheme)
	envString("PACKAGING_ENCRYPTION_KEY_SECRET", &cfg.Packaging.Encryption.KeySecret)
	if val := os.Getenv(EnvPrefix + "PACKAGING_ENCRYPTION_RECIPIENTS"); val != "" {
		cfg.Packaging.Encryption.Recipients = splitList(val)
	}
	envBool("PACKAGING_SIGNING_ENABLED", &cfg.Packaging.Signing.Enabled)
	envString("PACKAGING_SIGNING_KEY_ID", &cfg.Packaging.Signing.KeyID)
	envString("PACKAGING_SIGNING_PRIVATE_KEY_PATH", &cfg.Packaging.Signing.PrivateKeyPath)
	envString("PACKAGING_SIGNING_KEYRING_DIR", &cfg.Packaging.Signing.KeyringDir)

	// Retention overrides
	envDuration("RETENTION_DEFAULT_PERIOD", &cfg.Retention.DefaultPeriod)
	envString("RETENTION_POLICY_FILE", &cfg.Retention.PolicyFile)
	envBool("RETENTION_WATCH", &cfg.Retention.Watch)
	envString("RETENTION_SCHEDULE", &cfg.Retention.Schedule)
	envInt("RETENTION_PAGE_SIZE", &cfg.Retention.PageSize)

	// Source overrides
	envString("SOURCE_BACKEND", &cfg.Source.Backend)
	envString("SOURCE_SQLITE_PATH", &cfg.Source.SQLite.Path)

	// Audit overrides
	envString("AUDIT_BACKEND", &cfg.Audit.Backend)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	// Secrets overrides
	envString("SECRETS_FILE_DIR", &cfg.Secrets.FileDir)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package config provides configuration management for Keeper.
//
// This package handles loading, validating, and defaulting configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention KEEPER_SECTION_FIELD.
// For example:
//
//   - KEEPER_STORAGE_PATH overrides storage.path
//   - KEEPER_JOBS_MAX_CONCURRENT overrides jobs.max_concurrent
//   - KEEPER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// There is no global configuration. The loaded *Config is passed to
// engine.New, which builds every component from it.
//
// # Validation
//
// Validation errors include field paths:
//
//	configuration validation failed with 2 errors:
//	  - jobs.duplicate_policy: invalid value "merge": must be one of join, reject
//	  - retention.schedule: invalid cron schedule: expected exactly 5 fields, found 1: [daily]
//
// # Example Configuration
//
//	storage:
//	  path: "/var/lib/keeper/archives"
//
//	packaging:
//	  compression: "zstd"
//	  signing:
//	    enabled: true
//	    key_id: "keeper-2026"
//
//	retention:
//	  schedule: "0 3 * * *"
//	  policies:
//	    - entity_type: "samples"
//	      retention_period: "61320h"   # 7 years
//	    - entity_type: "cases"
//	      retention_period: "0s"       # indefinite
//	      legal_hold_overridable: false
package config

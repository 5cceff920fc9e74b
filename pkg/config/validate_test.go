package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantField string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:      "unknown index backend",
			mutate:    func(cfg *Config) { cfg.Index.Backend = "postgres" },
			wantField: "index.backend",
		},
		{
			name:      "idle exceeds open",
			mutate:    func(cfg *Config) { cfg.Index.SQLite.MaxIdleConns = 50 },
			wantField: "index.sqlite.max_idle_conns",
		},
		{
			name:      "zero timeout",
			mutate:    func(cfg *Config) { cfg.Jobs.Timeout = -time.Second },
			wantField: "jobs.timeout",
		},
		{
			name:      "unknown compression",
			mutate:    func(cfg *Config) { cfg.Packaging.Compression = "brotli" },
			wantField: "packaging.compression",
		},
		{
			name: "age without recipients",
			mutate: func(cfg *Config) {
				cfg.Packaging.Encryption.Enabled = true
				cfg.Packaging.Encryption.Scheme = "age"
			},
			wantField: "packaging.encryption.recipients",
		},
		{
			name:      "signing without key id",
			mutate:    func(cfg *Config) { cfg.Packaging.Signing.Enabled = true },
			wantField: "packaging.signing.key_id",
		},
		{
			name: "duplicate policy",
			mutate: func(cfg *Config) {
				cfg.Retention.Policies = []PolicyConfig{{EntityType: "cases"}, {EntityType: "cases"}}
			},
			wantField: "retention.policies[1].entity_type",
		},
		{
			name:      "bad cron",
			mutate:    func(cfg *Config) { cfg.Retention.Schedule = "every day" },
			wantField: "retention.schedule",
		},
		{
			name:      "watch without file",
			mutate:    func(cfg *Config) { cfg.Retention.Watch = true },
			wantField: "retention.watch",
		},
		{
			name:      "malformed permission",
			mutate:    func(cfg *Config) { cfg.Access.Roles = map[string][]string{"clerk": {"archive"}} },
			wantField: "access.roles.clerk",
		},
		{
			name:      "max limit below default",
			mutate:    func(cfg *Config) { cfg.Query.MaxLimit = 10 },
			wantField: "query.max_limit",
		},
		{
			name:      "bad log level",
			mutate:    func(cfg *Config) { cfg.Telemetry.Logging.Level = "trace" },
			wantField: "telemetry.logging.level",
		},
		{
			name:      "unsorted buckets",
			mutate:    func(cfg *Config) { cfg.Telemetry.Metrics.JobDurationBuckets = []float64{1, 1} },
			wantField: "telemetry.metrics.job_duration_buckets",
		},
		{
			name: "tracing ratio out of range",
			mutate: func(cfg *Config) {
				cfg.Telemetry.Tracing.Enabled = true
				cfg.Telemetry.Tracing.Sampler = "ratio"
				cfg.Telemetry.Tracing.SampleRatio = 1.5
			},
			wantField: "telemetry.tracing.sample_ratio",
		},
		{
			name:   "tracing ratio ignored while disabled",
			mutate: func(cfg *Config) { cfg.Telemetry.Tracing.SampleRatio = 7 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			verr, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %q, got %v", tt.wantField, verr.Errors)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "first"},
		{Field: "b", Message: "second"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "2 errors") || !strings.Contains(msg, "a: first") {
		t.Errorf("unexpected message %q", msg)
	}
}

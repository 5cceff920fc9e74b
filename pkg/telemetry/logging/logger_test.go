package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Level: "verbose"}},
		{"bad format", Config{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message missing")
	}
}

func TestNew_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Format: "json", Writer: &buf})

	logger.Info("key loaded", "key_secret", "archive-encryption-key", "age_identity", "AGE-SECRET-KEY-1XYZ", "key_id", "k1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["key_secret"] != Redacted || line["age_identity"] != Redacted {
		t.Errorf("sensitive values not redacted: %v", line)
	}
	if line["key_id"] != "k1" {
		t.Errorf("key_id = %v, want k1", line["key_id"])
	}
}

func TestNew_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Format: "json", Writer: &buf})

	ctx := WithArchiveID(WithJobID(WithActor(context.Background(), "alice"), "job-1"), "arc-9")
	logger.With("component", "test").InfoContext(ctx, "packed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	want := map[string]string{"actor_id": "alice", "job_id": "job-1", "archive_id": "arc-9", "component": "test"}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, want %s", k, line[k], v)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if err != nil {
				t.Fatalf("ParseLevel() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	plain := slog.New(slog.NewJSONHandler(&buf, nil))

	FromContext(WithJobID(context.Background(), "job-7"), plain).Info("queued")

	if !strings.Contains(buf.String(), `"job_id":"job-7"`) {
		t.Errorf("job_id missing from %s", buf.String())
	}
	if FromContext(context.Background(), plain) != plain {
		t.Error("FromContext() without fields should return the logger unchanged")
	}
}

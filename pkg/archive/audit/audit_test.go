package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestMemorySink_Find(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	events := []Event{
		{Action: ActionRetrieve, ActorID: "bob", TargetID: "a1", Timestamp: now, Outcome: OutcomeDenied},
		{Action: ActionRetrieve, ActorID: "alice", TargetID: "a1", Timestamp: now, Outcome: OutcomeSuccess},
		{Action: ActionDelete, ActorID: "sweeper", TargetID: "a2", Timestamp: now, Outcome: OutcomeSuccess},
	}
	for _, e := range events {
		if err := sink.LogEvent(ctx, e); err != nil {
			t.Fatalf("LogEvent() failed: %v", err)
		}
	}

	tests := []struct {
		name    string
		action  Action
		outcome Outcome
		want    int
	}{
		{"all retrievals", ActionRetrieve, "", 2},
		{"denied retrievals", ActionRetrieve, OutcomeDenied, 1},
		{"successful deletes", ActionDelete, OutcomeSuccess, 1},
		{"no verifications", ActionVerify, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(sink.Find(tt.action, tt.outcome)); got != tt.want {
				t.Errorf("Find() returned %d events, want %d", got, tt.want)
			}
		})
	}

	if got := len(sink.Events()); got != 3 {
		t.Errorf("Events() returned %d events, want 3", got)
	}
}

func TestMemorySink_CopiesDetail(t *testing.T) {
	sink := NewMemorySink()
	detail := map[string]string{"reason": "litigation"}
	_ = sink.LogEvent(context.Background(), Event{Action: ActionLegalHold, Outcome: OutcomeSuccess, Detail: detail})

	detail["reason"] = "changed"
	if got := sink.Events()[0].Detail["reason"]; got != "litigation" {
		t.Errorf("Detail[reason] = %q, want %q", got, "litigation")
	}
}

func TestLogSink_LogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := NewLogSink(logger)

	err := sink.LogEvent(context.Background(), Event{
		Action:    ActionVerify,
		ActorID:   "auditor-1",
		TargetID:  "a9",
		Timestamp: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		Outcome:   OutcomeIntegrityFailure,
		Detail:    map[string]string{"issue": "checksum mismatch"},
	})
	if err != nil {
		t.Fatalf("LogEvent() failed: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	checks := map[string]string{
		"level":        "WARN",
		"action":       "archive.verify",
		"actor_id":     "auditor-1",
		"outcome":      "integrity_failure",
		"component":    "archive.audit",
		"detail_issue": "checksum mismatch",
	}
	for k, want := range checks {
		if got, _ := line[k].(string); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

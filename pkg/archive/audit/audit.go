// Package audit records who did what to which archive.
//
// The engine reports archive creation, retrieval, verification, deletion and
// changes to legal holds or retention deadlines. Sinks are external
// collaborators; a failed write is logged by the caller but never changes the
// outcome of the operation being audited.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Action identifies the audited operation.
type Action string

const (
	ActionCreate            Action = "archive.create"
	ActionRetrieve          Action = "archive.retrieve"
	ActionVerify            Action = "archive.verify"
	ActionDelete            Action = "archive.delete"
	ActionLegalHold         Action = "archive.legal_hold"
	ActionRetentionOverride Action = "archive.retention_override"
)

// Outcome is the result recorded for an audited action.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeDenied           Outcome = "denied"
	OutcomeFailure          Outcome = "failure"
	OutcomeIntegrityFailure Outcome = "integrity_failure"
)

// Event is a single audit entry.
type Event struct {
	Action    Action            `json:"action"`
	ActorID   string            `json:"actor_id"`
	TargetID  string            `json:"target_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Outcome   Outcome           `json:"outcome"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Sink receives audit events.
type Sink interface {
	LogEvent(ctx context.Context, event Event) error
}

// LogSink writes audit events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that writes to logger. A nil logger uses the
// default logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "archive.audit")}
}

// LogEvent implements Sink.
func (s *LogSink) LogEvent(ctx context.Context, event Event) error {
	attrs := []any{
		"action", string(event.Action),
		"actor_id", event.ActorID,
		"target_id", event.TargetID,
		"timestamp", event.Timestamp.UTC().Format(time.RFC3339Nano),
		"outcome", string(event.Outcome),
	}
	for k, v := range event.Detail {
		attrs = append(attrs, "detail_"+k, v)
	}

	level := slog.LevelInfo
	if event.Outcome != OutcomeSuccess {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "audit event", attrs...)
	return nil
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// LogEvent implements Sink.
func (s *MemorySink) LogEvent(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Detail != nil {
		detail := make(map[string]string, len(event.Detail))
		for k, v := range event.Detail {
			detail[k] = v
		}
		event.Detail = detail
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Find returns the events matching action and, when non-empty, outcome.
func (s *MemorySink) Find(action Action, outcome Outcome) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.Action != action {
			continue
		}
		if outcome != "" && e.Outcome != outcome {
			continue
		}
		out = append(out, e)
	}
	return out
}

package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs live retention sweeps on a cron schedule.
type Scheduler struct {
	enforcer *Enforcer
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a scheduler for enforcer. An empty schedule disables
// it.
//
// Common cron expressions:
//   - "0 3 * * *"    - Daily at 3 AM
//   - "0 */6 * * *"  - Every 6 hours
//   - "0 0 * * 0"    - Weekly on Sunday at midnight
func NewScheduler(enforcer *Enforcer, schedule string) *Scheduler {
	return &Scheduler{
		enforcer: enforcer,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "archive.retention.scheduler"),
	}
}

// Start schedules sweeps and stops them when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("retention schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runSweep(ctx context.Context) {
	s.logger.Info("starting scheduled retention sweep")

	result, err := s.enforcer.Enforce(ctx, EnforceRequest{Actor: SystemActor})
	if err != nil {
		s.logger.Error("scheduled retention sweep failed", "error", err)
		return
	}

	if result.Deleted > 0 || len(result.Failures) > 0 {
		s.logger.Info("scheduled retention sweep completed",
			"deleted_count", result.Deleted,
			"failure_count", len(result.Failures),
			"legal_holds_blocking", result.LegalHoldsBlocking,
		)
	} else {
		s.logger.Debug("scheduled retention sweep completed, nothing deleted")
	}
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep time, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

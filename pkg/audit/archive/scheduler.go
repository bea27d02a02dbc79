package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the archiver on a cron schedule.
type Scheduler struct {
	archiver *Archiver
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a new archive scheduler.
func NewScheduler(archiver *Archiver) *Scheduler {
	return &Scheduler{
		archiver: archiver,
		cron:     cron.New(),
		logger:   archiver.logger.With("component", "audit.archive_scheduler"),
	}
}

// ValidateSchedule checks a standard five-field cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// Start schedules archive runs per the archiver's Schedule and stops them
// when ctx is cancelled. An empty schedule is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.archiver.config.Schedule
	if schedule == "" {
		s.logger.Info("archive schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.runArchive(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule archiving: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("archive scheduler started",
		"schedule", schedule,
		"dir", s.archiver.config.Dir,
		"format", s.archiver.config.Format,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *Scheduler) runArchive(ctx context.Context) {
	s.logger.Debug("starting scheduled archive run")

	result, err := s.archiver.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled archive failed", "error", err)
		return
	}
	if result.Count > 0 {
		s.logger.Info("scheduled archive completed", "path", result.Path, "count", result.Count)
	}
}

// Stop stops the scheduler and waits for a running archive to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("archive scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run, or nil when not scheduled.
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

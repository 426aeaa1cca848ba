package atlassian

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Scheduler runs one recurring job on a cron interval.
// A tick that arrives while the previous run is still in flight is skipped.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	active  bool
	mu      sync.Mutex

	// running guards against overlapping ticks
	running atomic.Bool

	logger arbor.ILogger
}

// NewScheduler creates a new scheduler
func NewScheduler(logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Start installs job on an @every schedule, replacing any previous schedule
func (s *Scheduler) Start(ctx context.Context, intervalMinutes int, job func(ctx context.Context) error) error {
	if intervalMinutes <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.cron.Remove(s.entryID)
	}

	runCtx := context.WithoutCancel(ctx)
	schedule := fmt.Sprintf("@every %dm", intervalMinutes)
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.tick(runCtx, job)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.active = true
	s.cron.Start()

	s.logger.Info().
		Str("schedule", schedule).
		Msg("Auto-sync scheduled")
	return nil
}

// Stop removes the schedule. Calling it when inactive is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}

	s.cron.Remove(s.entryID)
	s.cron.Stop()
	s.active = false

	s.logger.Info().Msg("Auto-sync stopped")
}

// IsActive reports whether a schedule is installed
func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// tick runs the job once. Errors and panics are logged and never escape.
// Returns false when skipped because a previous run is in flight.
func (s *Scheduler) tick(ctx context.Context, job func(ctx context.Context) error) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("Auto-sync cycle still running, skipping tick")
		return false
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("PANIC RECOVERED in auto-sync cycle")
		}
	}()

	if err := job(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Auto-sync cycle failed")
	}
	return true
}

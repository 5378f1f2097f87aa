// Package scheduler repeats a task on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of scheduled work
type Task func(ctx context.Context) error

// Scheduler runs a task immediately and then once per interval. Runs never
// overlap: the next one is timed from when the previous one finished.
type Scheduler struct {
	interval time.Duration
	task     Task
	logger   *zap.Logger

	runs    int
	lastErr error
}

// New creates a scheduler
func New(interval time.Duration, task Task, logger *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		task:     task,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is cancelled. A failing task is logged and the
// schedule continues.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.runOnce(ctx)

		nextRun := time.Now().Add(s.interval)
		s.logger.Info("next sync scheduled", zap.Time("at", nextRun))

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.runs++
	s.lastErr = s.task(ctx)

	if s.lastErr != nil && !errors.Is(s.lastErr, context.Canceled) {
		s.logger.Error("scheduled sync failed", zap.Int("run", s.runs), zap.Error(s.lastErr))
	}
}

// Runs returns how many times the task has run
func (s *Scheduler) Runs() int {
	return s.runs
}

// LastError returns the error of the most recent run
func (s *Scheduler) LastError() error {
	return s.lastErr
}

package crawler

import (
	"context"
	"time"

	"museum-discovery/internal/logger"

	"github.com/go-co-op/gocron"
)

// Scheduler manages recurring ingestion jobs
type Scheduler struct {
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
	ctx       context.Context
}

// NewScheduler creates a new scheduler. Jobs never overlap with themselves.
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels the context handed to running jobs
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

// ScheduleJob runs job on a cron expression. Tags are unique.
func (s *Scheduler) ScheduleJob(tag string, cronExpr string, job func(ctx context.Context) error) error {
	_, err := s.scheduler.Cron(cronExpr).Tag(tag).Do(s.wrap(tag, job))
	return err
}

// Len returns the number of scheduled jobs
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}

func (s *Scheduler) wrap(tag string, job func(ctx context.Context) error) func() {
	return func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			logger.Error("scheduled job failed", "job", tag, "error", err, "duration", time.Since(start).String())
			return
		}
		logger.Info("scheduled job finished", "job", tag, "duration", time.Since(start).String())
	}
}

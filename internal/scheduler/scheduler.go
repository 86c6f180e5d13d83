// Package scheduler runs periodic maintenance jobs. It is constructed
// and owned by application startup, not a process-wide singleton, so
// tests can run isolated instances and shutdown is deterministic.
package scheduler

import (
	"context"
	"sync"
	"time"

	"shopbot-core/internal/common/logger"
)

// Job is one periodic task. Run receives a context cancelled on Stop.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

type Scheduler struct {
	jobs    []Job
	logger  logger.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

func New(log logger.Logger) *Scheduler {
	return &Scheduler{
		logger: log.WithFields(map[string]interface{}{
			"component": "scheduler",
		}),
	}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Start launches one goroutine per job. Each job runs once immediately,
// then on its interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, job)
	}
	s.logger.Info("scheduler started", map[string]interface{}{
		"jobs": len(s.jobs),
	})
}

// Stop cancels all jobs and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", nil)
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	job.Run(ctx)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job.Run(ctx)
		}
	}
}

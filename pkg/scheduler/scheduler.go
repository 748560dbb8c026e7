// Package scheduler runs named periodic jobs on an injected clock.
//
// Each job runs once immediately when the scheduler starts and then again
// after every interval. A job that returns an error or panics keeps its
// schedule: the failure is logged and counted, and the next run happens at
// the next interval. Stop cancels all jobs and waits for their goroutines to
// exit.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/huddle/pkg/clock"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// JobFunc is the work a scheduled job performs. It must honor ctx so Stop
// does not block behind a run in progress.
type JobFunc func(ctx context.Context) error

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// Scheduler drives a set of jobs, one goroutine per job.
type Scheduler struct {
	mu      sync.Mutex
	clk     clock.Clock
	log     logger.Logger
	jobs    []Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clk: clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("scheduler")
	}
	return s
}

// Add registers a job. Jobs can only be added while the scheduler is
// stopped.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidJob)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("%w: non-positive interval for %q", ErrInvalidJob, job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("%w: nil run func for %q", ErrInvalidJob, job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches all registered jobs. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(runCtx, job)
	}
	s.log.Info(ctx, "scheduler started", logger.Int("jobs", len(s.jobs)))
}

// Stop cancels all jobs and waits for them to exit. Calling Stop on a
// stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Info(context.Background(), "scheduler stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Jobs returns the names of all registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name)
	}
	return names
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	for {
		started := s.clk.Now()
		err := s.safeRun(ctx, job)
		elapsedMs := float64(s.clk.Since(started)) / float64(time.Millisecond)

		metrics.RecordJobRun(job.Name)
		metrics.RecordJobLatency(job.Name, elapsedMs)
		if err != nil {
			metrics.RecordJobFailure(job.Name)
			s.log.Error(ctx, "job run failed",
				logger.String("job", job.Name),
				logger.Error(err))
		} else {
			s.log.Debug(ctx, "job run completed",
				logger.String("job", job.Name),
				logger.Float64("elapsedMs", elapsedMs))
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clk.After(job.Interval):
		}
	}
}

// safeRun executes the job, converting a panic into an error so one bad run
// never takes the schedule down.
func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

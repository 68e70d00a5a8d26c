package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobScheduler submits its registered jobs to a working pool on a fixed
// interval. The first submission waits for the initial delay so the service
// finishes warming up before the first cycle.
type JobScheduler struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration
	Pool         *WorkingPool

	mu   sync.RWMutex
	jobs []Job
}

func NewJobScheduler(name string, interval, initialDelay time.Duration, pool *WorkingPool) *JobScheduler {
	return &JobScheduler{
		Name:         name,
		Interval:     interval,
		InitialDelay: initialDelay,
		Pool:         pool,
	}
}

func (s *JobScheduler) AddJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

func (s *JobScheduler) Run(ctx context.Context) {
	slog.Info("Scheduler running", "scheduler", s.Name, "interval", s.Interval)

	select {
	case <-time.After(s.InitialDelay):
	case <-ctx.Done():
		return
	}
	s.submitJobs(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.submitJobs(ctx)

		case <-ctx.Done():
			slog.Info("Scheduler shutting down", "scheduler", s.Name)
			return
		}
	}
}

func (s *JobScheduler) submitJobs(ctx context.Context) {
	s.mu.RLock()
	jobsToRun := make([]Job, len(s.jobs))
	copy(jobsToRun, s.jobs)
	s.mu.RUnlock()

	for _, job := range jobsToRun {
		if !s.Pool.SubmitJob(ctx, job) {
			slog.Info("Job submission dropped during shutdown", "scheduler", s.Name)
			return
		}
	}
}

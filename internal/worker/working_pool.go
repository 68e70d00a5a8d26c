package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Job is a unit of background work. It receives the pool's context and
// returns an error for logging only; retries are the caller's concern.
type Job func(ctx context.Context) error

type WorkingPool struct {
	NumWorkers int
	jobChan    chan Job
}

func NewWorkingPool(numWorkers int, queueSize int) *WorkingPool {
	return &WorkingPool{
		NumWorkers: numWorkers,
		jobChan:    make(chan Job, queueSize),
	}
}

// SubmitJob enqueues a job, blocking while the queue is full. It reports
// whether the job was accepted: once ctx is cancelled the job is dropped
// instead, so producers can never race the pool shutdown. The channel itself
// is never closed.
func (p *WorkingPool) SubmitJob(ctx context.Context, job Job) bool {
	if ctx.Err() != nil {
		return false
	}

	select {
	case p.jobChan <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *WorkingPool) Start(ctx context.Context, managerWg *sync.WaitGroup) {
	defer managerWg.Done()

	var workerWg sync.WaitGroup

	for i := range p.NumWorkers {
		workerWg.Add(1)
		go p.worker(ctx, &workerWg, i+1)
	}

	<-ctx.Done()

	slog.Info("Working pool shutdown signaled")

	// Wait for all workers to finish their current job and exit
	workerWg.Wait()
	slog.Info("All workers stopped")
}

func (p *WorkingPool) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	for {
		select {
		case job := <-p.jobChan:
			p.safeExecution(ctx, job, id)

		case <-ctx.Done():
			// Exit immediately; queued jobs are dropped.
			return
		}
	}
}

func (p *WorkingPool) safeExecution(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in background job", "worker", workerID, "panic", r)
		}
	}()

	if err := job(ctx); err != nil {
		slog.Error("Background job failed", "worker", workerID, "error", err)
	}
}

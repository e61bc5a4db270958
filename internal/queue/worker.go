// Package queue runs prepared jobs in the background on a fixed pool of
// workers and keeps their status for polling.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/codebuildervaibhav/vodchat/internal/app"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// ErrQueueFull is returned by Enqueue when the backlog is at capacity
var ErrQueueFull = errors.New("job queue is full")

const queueSize = 100

// WorkerPool manages a pool of workers processing background jobs
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	logger      *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue:    make(chan *Job, queueSize),
		workerCount: max(1, workerCount),
		logger:      logger,
		jobs:        make(map[string]*Job),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	wp.logger.Info("starting worker pool", slog.Int("workers", wp.workerCount))
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop cancels running jobs and waits for the workers to exit. Queued jobs
// that never started are marked failed.
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}

// EnqueueJob adds a job to the queue
func (wp *WorkerPool) EnqueueJob(job *Job) error {
	wp.mu.Lock()
	wp.jobs[job.ID] = job
	wp.mu.Unlock()

	select {
	case wp.jobQueue <- job:
	default:
		wp.update(job, func(j *Job) {
			j.Status = types.StatusFailed
			j.Error = ErrQueueFull.Error()
		})
		return ErrQueueFull
	}

	wp.logger.Info("job enqueued",
		slog.String("job_id", job.ID),
		slog.String("platform", job.Target.Platform),
		slog.String("target", job.Target.Value),
	)
	return nil
}

// Get returns a copy of the job's current state
func (wp *WorkerPool) Get(id string) (Job, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	j, ok := wp.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (wp *WorkerPool) update(job *Job, fn func(*Job)) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	fn(job)
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	logger := wp.logger.With(slog.Int("worker", id))

	for {
		select {
		case <-wp.ctx.Done():
			wp.drain()
			return
		case job := <-wp.jobQueue:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("panic processing job",
							slog.String("job_id", job.ID),
							slog.Any("panic", r),
							slog.String("stack", string(debug.Stack())),
						)
						wp.update(job, func(j *Job) {
							j.Status = types.StatusFailed
							j.Error = fmt.Sprintf("worker panic: %v", r)
						})
					}
				}()

				wp.processJob(logger, job)
			}()
		}
	}
}

func (wp *WorkerPool) drain() {
	for {
		select {
		case job := <-wp.jobQueue:
			wp.update(job, func(j *Job) {
				j.Status = types.StatusFailed
				j.Error = context.Canceled.Error()
			})
		default:
			return
		}
	}
}

// processJob runs the prepared job with exports on and the console discarded
func (wp *WorkerPool) processJob(logger *slog.Logger, job *Job) {
	logger.Info("processing job", slog.String("job_id", job.ID))
	wp.update(job, func(j *Job) { j.Status = types.StatusFetching })

	report, err := job.prepared.Run(wp.ctx, io.Discard, app.RunOptions{Exports: true})

	failed := 0
	for _, it := range report.Items {
		if it.Err != nil {
			failed++
		}
	}

	wp.update(job, func(j *Job) {
		j.RunID = report.ID
		j.Failed = failed
		if err != nil {
			j.Status = types.StatusFailed
			j.Error = err.Error()
			return
		}
		j.Status = types.StatusCompleted
	})

	logger.Info("job finished",
		slog.String("job_id", job.ID),
		slog.String("run_id", report.ID),
		slog.Int("failed_items", failed),
		slog.Any("error", err),
	)
}

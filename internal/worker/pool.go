package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"medscribe/internal/logger"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull    = errors.New("worker pool job queue full")
	ErrDuplicateKey = errors.New("job with this key is already queued or running")
	ErrPoolStopped  = errors.New("worker pool stopped")
)

type Job func(ctx context.Context) error

type keyedJob struct {
	key string
	run Job
}

// WorkerPool runs jobs on a fixed number of goroutines. At most one job per
// key is queued or running at a time, and a full queue rejects instead of dropping.
type WorkerPool struct {
	workerCount int
	jobChan     chan keyedJob
	wg          sync.WaitGroup
	log         zerolog.Logger

	mu      sync.Mutex
	active  map[string]struct{}
	stopped bool
}

func NewWorkerPool(workerCount, queueSize int) *WorkerPool {
	return &WorkerPool{
		workerCount: workerCount,
		jobChan:     make(chan keyedJob, queueSize),
		log:         logger.Get(),
		active:      make(map[string]struct{}),
	}
}

// Start launches the workers. Jobs run under ctx, not under the submitter's context.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Int("queue_size", cap(wp.jobChan)).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop closes intake and waits for queued and in-flight jobs to finish
func (wp *WorkerPool) Stop() {
	wp.log.Info().Msg("Stopping worker pool")

	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.jobChan)
	}
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

// Submit enqueues job under key without blocking
func (wp *WorkerPool) Submit(key string, job Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrPoolStopped
	}
	if _, exists := wp.active[key]; exists {
		return ErrDuplicateKey
	}

	select {
	case wp.jobChan <- keyedJob{key: key, run: job}:
		wp.active[key] = struct{}{}
		return nil
	default:
		wp.log.Warn().Str("key", key).Msg("Worker pool job queue full, job rejected")
		return ErrQueueFull
	}
}

// Pending returns the number of queued or running jobs
func (wp *WorkerPool) Pending() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return len(wp.active)
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for job := range wp.jobChan {
		if err := wp.execute(ctx, job); err != nil {
			log.Error().Err(err).Str("key", job.key).Msg("Job execution failed")
		}
	}
	log.Debug().Msg("Worker stopping due to closed job channel")
}

func (wp *WorkerPool) execute(ctx context.Context, job keyedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		wp.mu.Lock()
		delete(wp.active, job.key)
		wp.mu.Unlock()
	}()

	return job.run(ctx)
}

package worker

import (
	"context"

	"medscribe/internal/model"
)

//go:generate mockgen -destination=../mocks/mock_worker.go -package=mocks medscribe/internal/worker Dispatcher

// Dispatcher hands a transcription job to whatever runs the worker.
// An error means the job was not admitted and will never run.
type Dispatcher interface {
	Dispatch(ctx context.Context, job model.TranscriptionJob) error
}

// Handler executes one transcription job.
type Handler func(ctx context.Context, job model.TranscriptionJob) error

// LocalDispatcher submits jobs straight into an in-process pool, keyed by dictation id
type LocalDispatcher struct {
	pool    *WorkerPool
	handler Handler
}

func NewLocalDispatcher(pool *WorkerPool, handler Handler) *LocalDispatcher {
	return &LocalDispatcher{pool: pool, handler: handler}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, job model.TranscriptionJob) error {
	return d.pool.Submit(job.DictationID.String(), func(ctx context.Context) error {
		return d.handler(ctx, job)
	})
}

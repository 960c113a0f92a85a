package persistence

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultWriterCapacity = 64
	maxWriteAttempts      = 3
	writeRetryStep        = 250 * time.Millisecond
)

type writeJob struct {
	name string
	fn   func(context.Context) error
}

// WriterQueue serializes journal writes onto a single goroutine.
type WriterQueue struct {
	logger *slog.Logger
	jobs   chan writeJob
}

func NewWriterQueue(logger *slog.Logger, capacity int) *WriterQueue {
	if logger == nil {
		logger = slog.Default().With("component", "persistence.writer")
	}
	if capacity <= 0 {
		capacity = defaultWriterCapacity
	}

	return &WriterQueue{
		logger: logger,
		jobs:   make(chan writeJob, capacity),
	}
}

// Enqueue schedules fn. A full queue blocks only the spawned goroutine, never the caller.
func (w *WriterQueue) Enqueue(name string, fn func(context.Context) error) {
	job := writeJob{name: name, fn: fn}
	select {
	case w.jobs <- job:
	default:
		w.logger.Warn("writer queue is full, deferring job", "job", name)
		go func() { w.jobs <- job }()
	}
}

func (w *WriterQueue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-w.jobs:
				w.run(ctx, job)
			}
		}
	}()
}

func (w *WriterQueue) run(ctx context.Context, job writeJob) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := job.fn(ctx)
		if err == nil {
			return
		}
		w.logger.Error("journal write failed", "job", job.name, "attempt", attempt, "error", err)
		if attempt == maxWriteAttempts {
			return
		}

		timer := time.NewTimer(time.Duration(attempt) * writeRetryStep)
		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}
	}
}

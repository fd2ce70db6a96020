package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the buffer has no room; callers drop the job.
	ErrQueueFull = errors.New("job queue full")
	// ErrQueueStopped is returned when the queue is not accepting jobs.
	ErrQueueStopped = errors.New("job queue stopped")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Kind     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is an in-memory dispatcher with a fixed worker pool. Enqueue never blocks.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Stop refuses new jobs, lets workers drain what is buffered and waits for them.
// When ctx expires first the in-flight handlers are cancelled and ctx.Err() is returned.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started || q.closed {
		q.closed = true
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("queue stopped", zap.String("queue", q.name))
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn("queue stopped before draining", zap.String("queue", q.name))
		return ctx.Err()
	}
}

// Enqueue buffers a job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.started || q.closed {
		return ErrQueueStopped
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(job)
	}
}

func (q *Queue) process(job Job) {
	for {
		err := q.handler(q.ctx, job)
		if err == nil {
			return
		}
		job.Attempt++
		if job.Attempt > q.maxRetries {
			q.logger.Error("job exceeded retries",
				zap.String("queue", q.name), zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Error(err))
			return
		}
		q.logger.Warn("job failed, retrying",
			zap.String("queue", q.name), zap.String("job_id", job.ID), zap.String("kind", job.Kind),
			zap.Int("attempt", job.Attempt), zap.Error(err))

		timer := time.NewTimer(q.retryDelay)
		select {
		case <-q.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// ResultFunc observes the outcome of every attempt.
type ResultFunc func(jobType string, attempt int, err error)

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers      int
	BufferSize   int
	MaxRetries   int
	RetryDelay   time.Duration
	DrainTimeout time.Duration
	Logger       *zap.Logger
	OnResult     ResultFunc
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
// Handlers are registered per job type. Jobs submitted while the queue is
// not running are executed inline so batch commands share the same code path.
type Queue struct {
	name string

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	workers      int
	maxRetries   int
	retryDelay   time.Duration
	drainTimeout time.Duration
	logger       *zap.Logger
	onResult     ResultFunc

	jobs     chan Job
	inflight atomic.Int64
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
}

// NewQueue builds a new queue without handlers.
func NewQueue(name string, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:         name,
		handlers:     make(map[string]Handler),
		workers:      cfg.Workers,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		drainTimeout: cfg.DrainTimeout,
		logger:       cfg.Logger,
		onResult:     cfg.OnResult,
		jobs:         make(chan Job, cfg.BufferSize),
	}
}

// Register binds a handler to a job type, replacing any previous one.
func (q *Queue) Register(jobType string, handler Handler) {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()
	q.handlers[jobType] = handler
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop waits up to the drain timeout for buffered jobs, then cancels workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	deadline := time.Now().Add(q.drainTimeout)
	for (len(q.jobs) > 0 || q.inflight.Load() > 0) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	q.mu.Lock()
	q.cancel()
	q.started = false
	q.mu.Unlock()
	q.wg.Wait()
	if pending := len(q.jobs); pending > 0 {
		q.logger.Sugar().Warnw("queue stopped with pending jobs", "queue", q.name, "pending", pending)
		return
	}
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Running reports whether workers are consuming jobs.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started
}

// Submit enqueues a job of the given type. When the queue is not running the
// job is executed inline, retrying up to the configured limit.
func (q *Queue) Submit(ctx context.Context, jobType string, payload interface{}) error {
	job := Job{ID: uuid.NewString(), Type: jobType, Payload: payload}
	if !q.Running() {
		return q.runInline(ctx, job)
	}
	return q.Enqueue(ctx, job)
}

// Enqueue pushes a job onto the queue. It gives up when ctx ends while the
// buffer is full.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	queueCtx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-queueCtx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, queueCtx.Err())
	case <-ctx.Done():
		return fmt.Errorf("queue %s full: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.inflight.Add(1)
			if err := q.process(q.ctx, job); err != nil {
				q.handleFailure(job, err)
			}
			q.inflight.Add(-1)
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job) error {
	q.handlersMu.RLock()
	handler, ok := q.handlers[job.Type]
	q.handlersMu.RUnlock()
	if !ok {
		err := fmt.Errorf("no handler registered for job type %q", job.Type)
		q.observe(job, err)
		return err
	}
	err := handler(ctx, job)
	q.observe(job, err)
	return err
}

func (q *Queue) observe(job Job, err error) {
	if q.onResult != nil {
		q.onResult(job.Type, job.Attempt, err)
	}
}

func (q *Queue) runInline(ctx context.Context, job Job) error {
	job.Enqueued = time.Now().UTC()
	for {
		err := q.process(ctx, job)
		if err == nil {
			return nil
		}
		job.Attempt++
		if job.Attempt > q.maxRetries {
			q.logger.Sugar().Errorw("inline job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.retryDelay):
		}
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Sugar().Errorw("job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

	q.inflight.Add(1)
	go func(j Job) {
		defer q.inflight.Add(-1)
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(q.ctx, j); err != nil {
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a unit of background work.
type Job struct {
	ID string
	// Key coalesces jobs: while a job with the same non-empty key is waiting,
	// further enqueues for that key are dropped. A retry is dropped the same
	// way when fresh work for its key is already waiting.
	Key      string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// ExhaustedFunc is called once a job has failed MaxRetries+1 times.
type ExhaustedFunc func(Job, error)

// QueueConfig sizes the worker pool and its retry policy.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff; it doubles per attempt up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	OnExhausted   ExhaustedFunc
	Logger        *zap.Logger
}

// Queue dispatches jobs to a fixed pool of goroutines.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	log     *zap.SugaredLogger

	jobs chan Job
	wg   sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	waiting map[string]struct{}
}

// NewQueue builds a queue; call Start before enqueueing.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		log:     cfg.Logger.Sugar().With("queue", name),
		jobs:    make(chan Job, cfg.BufferSize),
		waiting: make(map[string]struct{}),
	}
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx != nil {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(q.cfg.Workers)
	for i := 0; i < q.cfg.Workers; i++ {
		go q.run()
	}
	q.log.Infow("queue started", "workers", q.cfg.Workers)
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	q.wg.Wait()
	q.log.Infow("queue stopped")
}

// Pending reports the number of distinct keys waiting for a worker.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Enqueue hands a job to the pool. A coalesced job returns nil without being queued.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	if ctx == nil {
		q.mu.Unlock()
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Key != "" {
		if _, dup := q.waiting[job.Key]; dup {
			q.mu.Unlock()
			return nil
		}
		q.waiting[job.Key] = struct{}{}
	}
	q.mu.Unlock()

	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		q.claim(job)
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	}
}

// claim removes the job's key from the waiting set so new work for it queues again.
func (q *Queue) claim(job Job) {
	if job.Key == "" {
		return
	}
	q.mu.Lock()
	delete(q.waiting, job.Key)
	q.mu.Unlock()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.claim(job)
			if err := q.handler(q.ctx, job); err != nil {
				q.retry(job, err)
			}
		}
	}
}

func (q *Queue) retry(job Job, err error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.log.Errorw("job exhausted retries", "job_id", job.ID, "type", job.Type, "attempts", job.Attempt, "error", err)
		if q.cfg.OnExhausted != nil {
			q.cfg.OnExhausted(job, err)
		}
		return
	}

	delay := q.backoff(job.Attempt)
	q.log.Warnw("job failed, retrying", "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "delay", delay, "error", err)

	time.AfterFunc(delay, func() {
		if q.ctx.Err() != nil {
			return
		}
		if err := q.Enqueue(job); err != nil {
			q.log.Errorw("failed to requeue job", "job_id", job.ID, "error", err)
		}
	})
}

func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < q.cfg.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > q.cfg.MaxRetryDelay {
		delay = q.cfg.MaxRetryDelay
	}
	return delay
}

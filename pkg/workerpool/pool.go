// Package workerpool runs a handler over submitted inputs with bounded
// concurrency, retrying transient failures.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrStopped is returned by Submit after Stop
	ErrStopped = errors.New("pool is shutting down")
	// ErrQueueFull is returned by Submit when the queue has no room
	ErrQueueFull = errors.New("task queue is full")
)

// Func processes one input
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// Result is the outcome of one task
type Result[Out any] struct {
	TaskID   string
	Value    Out
	Err      error
	Attempts int
}

// Config holds worker pool configuration
type Config struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// ShutdownTimeout bounds how long Stop waits for queued tasks
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns defaults sized for CPU-bound extraction work
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		QueueSize:       256,
		MaxRetries:      2,
		RetryDelay:      100 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

type task[In, Out any] struct {
	id     string
	ctx    context.Context
	in     In
	result chan Result[Out]
}

// Pool manages a fixed set of workers
type Pool[In, Out any] struct {
	config Config
	fn     Func[In, Out]
	retry  func(error) bool
	logger *zap.Logger

	tasks chan *task[In, Out]
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// New creates a pool. retryable decides whether an error is worth another
// attempt; nil retries every error.
func New[In, Out any](cfg Config, fn Func[In, Out], retryable func(error) bool, logger *zap.Logger) (*Pool[In, Out], error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	return &Pool[In, Out]{
		config: cfg,
		fn:     fn,
		retry:  retryable,
		logger: logger,
		tasks:  make(chan *task[In, Out], cfg.QueueSize),
	}, nil
}

// Start launches all workers
func (p *Pool[In, Out]) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit queues in and returns a channel that receives exactly one result
func (p *Pool[In, Out]) Submit(ctx context.Context, id string, in In) (<-chan Result[Out], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrStopped
	}

	t := &task[In, Out]{id: id, ctx: ctx, in: in, result: make(chan Result[Out], 1)}
	select {
	case p.tasks <- t:
		p.submitted.Add(1)
		return t.result, nil
	default:
		return nil, ErrQueueFull
	}
}

// Do submits in and waits for its result
func (p *Pool[In, Out]) Do(ctx context.Context, id string, in In) (Out, error) {
	var zero Out
	ch, err := p.Submit(ctx, id, in)
	if err != nil {
		return zero, err
	}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		return r.Value, r.Err
	}
}

// Stop refuses new tasks and waits for queued ones to finish
func (p *Pool[In, Out]) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
		return fmt.Errorf("worker pool shutdown timed out after %s", p.config.ShutdownTimeout)
	}
}

func (p *Pool[In, Out]) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		r := p.run(t)
		if r.Err != nil {
			p.failed.Add(1)
			p.logger.Warn("task failed",
				zap.String("task_id", t.id),
				zap.Int("worker_id", id),
				zap.Int("attempts", r.Attempts),
				zap.Error(r.Err))
		} else {
			p.completed.Add(1)
		}
		t.result <- r
	}
}

func (p *Pool[In, Out]) run(t *task[In, Out]) Result[Out] {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	r := Result[Out]{TaskID: t.id}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			r.Err = err
			return r
		}

		r.Attempts = attempt + 1
		r.Value, r.Err = p.fn(ctx, t.in)
		if r.Err == nil || attempt >= p.config.MaxRetries || !p.retry(r.Err) {
			return r
		}

		p.retried.Add(1)
		select {
		case <-ctx.Done():
			r.Err = ctx.Err()
			return r
		case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
		}
	}
}

// Stats holds pool counters
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	TasksRetried   int64
	QueueDepth     int
	QueueCapacity  int
	Workers        int
}

// Stats returns current pool statistics
func (p *Pool[In, Out]) Stats() Stats {
	return Stats{
		TasksSubmitted: p.submitted.Load(),
		TasksCompleted: p.completed.Load(),
		TasksFailed:    p.failed.Load(),
		TasksRetried:   p.retried.Load(),
		QueueDepth:     len(p.tasks),
		QueueCapacity:  p.config.QueueSize,
		Workers:        p.config.Workers,
	}
}

// IsHealthy reports whether the queue is below 90% full
func (p *Pool[In, Out]) IsHealthy() bool {
	s := p.Stats()
	return float64(s.QueueDepth)/float64(s.QueueCapacity) < 0.9
}

package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"docbridge/internal/domain"
	"docbridge/internal/metrics"
)

type Config struct {
	Workers          int           `mapstructure:"count"`
	QueueSize        int           `mapstructure:"queue_size"`
	ShutdownGrace    time.Duration `mapstructure:"shutdown_grace"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

func DefaultConfig() Config {
	return Config{Workers: 10, QueueSize: 1000, ShutdownGrace: 10 * time.Second}
}

func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return &domain.ConfigError{Field: "worker.count", Message: "must be > 0"}
	case c.QueueSize <= 0:
		return &domain.ConfigError{Field: "worker.queue_size", Message: "must be > 0"}
	case c.ShutdownGrace < 0:
		return &domain.ConfigError{Field: "worker.shutdown_grace", Message: "must be >= 0"}
	case c.OperationTimeout < 0:
		return &domain.ConfigError{Field: "worker.operation_timeout", Message: "must be >= 0"}
	}
	return nil
}

type Option func(*Pool)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

func WithMetrics(m *metrics.Bridge) Option {
	return func(p *Pool) { p.metrics = m }
}

type task struct {
	run         func() error
	abort       func(error)
	submittedAt time.Time
}

// Pool runs blocking operations on a fixed set of worker goroutines fed by a
// bounded FIFO queue. Callers get a Future back and wait on it themselves.
type Pool struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Bridge

	mu     sync.RWMutex
	closed bool
	queue  chan task
	wg     sync.WaitGroup

	// set when the shutdown grace period ran out; queued tasks are failed instead of run
	abandon atomic.Bool

	busy      atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

func NewPool(cfg Config, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{cfg: cfg, log: zerolog.Nop(), queue: make(chan task, cfg.QueueSize)}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.NewBridge(nil)
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.work()
	}
	p.log.Info().Int("workers", cfg.Workers).Int("queue_size", cfg.QueueSize).Msg("worker pool started")
	return p, nil
}

func (p *Pool) work() {
	defer p.wg.Done()
	for t := range p.queue {
		if p.abandon.Load() {
			p.drop(t)
			continue
		}
		p.metrics.QueueDepth.Dec()
		p.metrics.QueueWait.Observe(time.Since(t.submittedAt).Seconds())

		p.busy.Add(1)
		p.metrics.ActiveWorkers.Inc()
		start := time.Now()
		err := t.run()
		p.metrics.TaskLatency.Observe(time.Since(start).Seconds())
		p.metrics.ActiveWorkers.Dec()
		p.busy.Add(-1)

		if err != nil {
			p.failed.Add(1)
			p.metrics.TasksFailed.Inc()
			continue
		}
		p.completed.Add(1)
		p.metrics.TasksCompleted.Inc()
	}
}

func (p *Pool) enqueue(t task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.reject()
		return ErrPoolClosed
	}
	p.metrics.QueueDepth.Inc()
	select {
	case p.queue <- t:
		p.submitted.Add(1)
		p.metrics.TasksSubmitted.Inc()
		return nil
	default:
		p.metrics.QueueDepth.Dec()
		p.reject()
		return ErrPoolExhausted
	}
}

// drop fails a queued task that will never run. It counts as failed.
func (p *Pool) drop(t task) {
	p.metrics.QueueDepth.Dec()
	p.failed.Add(1)
	p.metrics.TasksFailed.Inc()
	t.abort(ErrPoolClosed)
}

func (p *Pool) reject() {
	p.rejected.Add(1)
	p.metrics.TasksRejected.Inc()
}

// Shutdown stops accepting work and waits for queued and running operations
// until ctx is done. Operations still queued at that point fail with
// ErrPoolClosed; running ones are left to finish on their own.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.log.Info().Int("queued", len(p.queue)).Int64("busy", p.busy.Load()).Msg("worker pool draining")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info().Msg("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.abandon.Store(true)
		p.log.Warn().Int("queued", len(p.queue)).Int64("busy", p.busy.Load()).Msg("worker pool grace period expired")
		// the queue is closed; idle workers may take some of these too
		for t := range p.queue {
			p.drop(t)
		}
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

type Stats struct {
	Workers   int    `json:"workers"`
	Busy      int64  `json:"busy"`
	Queued    int    `json:"queued"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.cfg.Workers,
		Busy:      p.busy.Load(),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

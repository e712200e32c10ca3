package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/metrics"
	"github.com/poiesic/docket/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultLease        = 10 * time.Minute
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 3
)

var tracer = otel.Tracer("github.com/poiesic/docket/jobs")

// Handler runs one job.
type Handler func(ctx context.Context, job *core.Job) error

// AbandonHandler settles a job that will not be run again, so whatever
// state the job left behind can be reported as failed.
type AbandonHandler func(ctx context.Context, job *core.Job, cause error) error

// Dispatcher leases queued jobs and runs them on a worker pool.
type Dispatcher struct {
	queue        storage.JobQueue
	pool         *ants.Pool
	lease        time.Duration
	pollInterval time.Duration
	maxAttempts  int
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu        sync.RWMutex
	handlers  map[core.JobKind]Handler
	abandoned map[core.JobKind]AbandonHandler

	wake chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithPoolSize sets how many jobs run concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(d *Dispatcher) error {
		if size < 1 {
			size = 1
		}
		if d.pool != nil {
			d.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		d.pool = pool
		return nil
	}
}

// WithLease sets how long a claimed job is hidden from other claims.
func WithLease(lease time.Duration) Option {
	return func(d *Dispatcher) error {
		if lease <= 0 {
			return ErrInvalidLease
		}
		d.lease = lease
		return nil
	}
}

// WithPollInterval sets how often an idle dispatcher checks the queue.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) error {
		if interval > 0 {
			d.pollInterval = interval
		}
		return nil
	}
}

// WithMaxAttempts sets how many deliveries a job gets before it is abandoned.
func WithMaxAttempts(attempts int) Option {
	return func(d *Dispatcher) error {
		if attempts > 0 {
			d.maxAttempts = attempts
		}
		return nil
	}
}

// WithMetrics records job outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) error {
		d.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// NewDispatcher creates a dispatcher for queue.
func NewDispatcher(queue storage.JobQueue, opts ...Option) (*Dispatcher, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}

	d := &Dispatcher{
		queue:        queue,
		lease:        DefaultLease,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		logger:       slog.Default(),
		handlers:     make(map[core.JobKind]Handler),
		abandoned:    make(map[core.JobKind]AbandonHandler),
		wake:         make(chan struct{}, 1),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			d.Release()
			return nil, err
		}
	}

	if d.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		d.pool = pool
	}
	d.logger = d.logger.With("component", "dispatcher")

	return d, nil
}

// Handle registers the handler for kind, replacing any previous one.
func (d *Dispatcher) Handle(kind core.JobKind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// OnAbandon registers the handler called when a job of kind exceeds the
// attempt limit, replacing any previous one.
func (d *Dispatcher) OnAbandon(kind core.JobKind, h AbandonHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.abandoned[kind] = h
}

// Enqueue persists job and wakes the dispatcher.
func (d *Dispatcher) Enqueue(ctx context.Context, job *core.Job) (*core.Job, error) {
	queued, err := d.queue.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", job.Kind, err)
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}

	d.logger.Debug("job enqueued", "id", queued.ID, "kind", queued.Kind, "document", queued.Document.String())
	return queued, nil
}

// Run dispatches jobs until ctx is done, then waits for running jobs.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", "lease", d.lease, "poolSize", d.pool.Cap())
	defer d.logger.Info("dispatcher stopped")

	for {
		if err := d.drain(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("error claiming job", "err", err)
		}

		select {
		case <-ctx.Done():
			d.wg.Wait()
			return nil
		case <-d.wake:
		case <-ticker.C:
		}
	}
}

// drain claims every available job and submits it to the pool.
func (d *Dispatcher) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		job, err := d.queue.Claim(ctx, d.lease)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}

		d.wg.Add(1)
		err = d.pool.Submit(func() {
			defer d.wg.Done()
			d.execute(ctx, job)
		})
		if err != nil {
			// The lease expires and the job is delivered again.
			d.wg.Done()
			return fmt.Errorf("submit job %d: %w", job.ID, err)
		}
	}
	return nil
}

// RunPending runs every available job inline and returns how many ran.
// It is used by one-shot commands that have no long-lived dispatcher.
func (d *Dispatcher) RunPending(ctx context.Context) (int, error) {
	ran := 0
	for {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		job, err := d.queue.Claim(ctx, d.lease)
		if err != nil {
			return ran, err
		}
		if job == nil {
			return ran, nil
		}
		d.execute(ctx, job)
		ran++
	}
}

// execute runs one claimed job and completes it, unless ctx was cancelled
// while it ran, in which case the job is left for redelivery.
func (d *Dispatcher) execute(ctx context.Context, job *core.Job) {
	logger := d.logger.With("id", job.ID, "kind", job.Kind, "document", job.Document.String(), "attempt", job.Attempts)

	if job.Attempts > d.maxAttempts {
		d.abandon(ctx, job, logger)
		return
	}

	d.mu.RLock()
	handler, ok := d.handlers[job.Kind]
	d.mu.RUnlock()
	if !ok {
		logger.Error("dropping job", "err", ErrNoHandler)
		d.complete(job, logger)
		return
	}

	ctx, span := tracer.Start(ctx, "jobs."+string(job.Kind), trace.WithAttributes(
		attribute.String("docket.namespace", job.Document.Namespace),
		attribute.String("docket.document", job.Document.DisplayName),
		attribute.Int("docket.attempt", job.Attempts),
	))
	defer span.End()

	start := time.Now()
	err := handler(ctx, job)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			logger.Warn("job interrupted, leaving it for redelivery", "err", err)
			return
		}
		logger.Error("job failed", "err", err, "elapsed", elapsed)
		d.metrics.JobDone(string(job.Kind), "failure", elapsed)
	} else {
		logger.Info("job finished", "elapsed", elapsed)
		d.metrics.JobDone(string(job.Kind), "success", elapsed)
	}

	d.complete(job, logger)
}

// abandon runs the kind's abandon handler and completes the job. When the
// handler is interrupted the job stays leased and is abandoned again on its
// next delivery.
func (d *Dispatcher) abandon(ctx context.Context, job *core.Job, logger *slog.Logger) {
	logger.Error("abandoning job after too many deliveries", "maxAttempts", d.maxAttempts)

	d.mu.RLock()
	handler, ok := d.abandoned[job.Kind]
	d.mu.RUnlock()
	if ok {
		cause := fmt.Errorf("%w (%d of %d)", ErrAbandoned, job.Attempts, d.maxAttempts)
		if err := handler(ctx, job, cause); err != nil {
			if ctx.Err() != nil {
				logger.Warn("abandon interrupted, leaving job for redelivery", "err", err)
				return
			}
			logger.Error("error running abandon handler", "err", err)
		}
	}

	d.metrics.JobAbandoned(string(job.Kind))
	d.complete(job, logger)
}

func (d *Dispatcher) complete(job *core.Job, logger *slog.Logger) {
	// Completion must outlive a cancelled run context.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.queue.Complete(ctx, job.ID); err != nil {
		logger.Error("error completing job", "err", err)
	}
}

// Release waits for running jobs and releases the worker pool.
func (d *Dispatcher) Release() {
	d.wg.Wait()
	if d.pool != nil {
		d.pool.Release()
	}
}

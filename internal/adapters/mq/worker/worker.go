// Package worker drains a job queue with a fixed set of goroutines, evaluating
// each participant under a per-unit timeout and handing results to a collector.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/boostcalc/internal/adapters/mq/queue"
	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/pkg/logger"
	"github.com/okian/boostcalc/pkg/metrics"
)

// Default worker configuration constants.
const (
	DefaultWorkerCount  = 8
	DefaultUnitTimeout  = 30 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Evaluator scores one participant.
type Evaluator interface {
	Evaluate(ctx context.Context, p model.Participant) (model.CohortSample, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, p model.Participant) (model.CohortSample, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, p model.Participant) (model.CohortSample, error) {
	return f(ctx, p)
}

// Collector receives the outcome of every job. It is called concurrently.
type Collector interface {
	Collect(ctx context.Context, j queue.Job, sample model.CohortSample, err error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue closes.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue       Queue
	evaluator   Evaluator
	collector   Collector
	name        string
	unitTimeout time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, evaluator Evaluator, collector Collector, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		evaluator:   evaluator,
		collector:   collector,
		name:        "worker",
		unitTimeout: DefaultUnitTimeout,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown signals the worker to stop and waits for it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	unitCtx, cancel := context.WithTimeout(ctx, w.unitTimeout)
	defer cancel()

	sample, err := w.evaluator.Evaluate(unitCtx, j.Participant)
	if err != nil {
		reason := "evaluate"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(unitCtx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
			err = fmt.Errorf("unit timed out after %s: %w", w.unitTimeout, err)
		}
		metrics.RecordWorkerError(reason)
		metrics.RecordCohortSample("failed")
		w.logger.Warn(ctx, "participant evaluation failed",
			logger.Int("index", j.Index),
			logger.String("profileId", j.Participant.ProfileID),
			logger.String("reason", reason),
			logger.Error(err),
		)
	} else {
		metrics.RecordCohortSample("scored")
	}
	w.collector.Collect(ctx, j, sample, err)
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	wg      sync.WaitGroup
	started bool
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. opts apply to every worker.
func NewPool(workerCount int, q Queue, evaluator Evaluator, collector Collector, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = DefaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, evaluator, collector, wopts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	p.started = true
	metrics.UpdateWorkerActiveCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has exited, which happens once the queue is
// closed and drained or the start context is done.
func (p *Pool) Wait() {
	p.wg.Wait()
	metrics.UpdateWorkerActiveCount(0)
}

// Shutdown closes the queue, if it can be closed, and waits for the workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	if !p.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for _, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

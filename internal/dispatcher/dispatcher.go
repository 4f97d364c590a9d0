// Package dispatcher runs work items through a bounded pool of pipeline
// workers and collects one result per item.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagemark/internal/clock/system"
	"github.com/JakeFAU/pagemark/internal/extract"
	"github.com/JakeFAU/pagemark/internal/id/uuid"
	"github.com/JakeFAU/pagemark/internal/metrics"
	"github.com/JakeFAU/pagemark/internal/queue/memory"
	"github.com/JakeFAU/pagemark/internal/report"
)

// Runner processes one item to a terminal result.
type Runner interface {
	Run(ctx context.Context, item extract.WorkItem) extract.ItemResult
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, item extract.WorkItem) extract.ItemResult

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, item extract.WorkItem) extract.ItemResult {
	return f(ctx, item)
}

// Dispatcher fans items out to a fixed number of workers.
type Dispatcher struct {
	runner         Runner
	maxConcurrency int
	ids            extract.IDGenerator
	clock          extract.Clock
	logger         *zap.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithIDGenerator sets the run ID source.
func WithIDGenerator(g extract.IDGenerator) Option {
	return func(d *Dispatcher) { d.ids = g }
}

// WithClock sets the clock used for report timestamps.
func WithClock(c extract.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher running at most maxConcurrency items at once.
func New(runner Runner, maxConcurrency int, opts ...Option) (*Dispatcher, error) {
	if runner == nil {
		return nil, extract.ConfigError(errors.New("runner is required"))
	}
	if maxConcurrency < 1 {
		return nil, extract.ConfigError(fmt.Errorf("max concurrency must be >= 1, got %d", maxConcurrency))
	}
	d := &Dispatcher{
		runner:         runner,
		maxConcurrency: maxConcurrency,
		ids:            uuid.New(),
		clock:          system.New(),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run processes every item and blocks until all have a result. Cancelling
// ctx makes in-flight and queued items fail quickly; it does not drop them.
func (d *Dispatcher) Run(ctx context.Context, items []extract.WorkItem) *report.Report {
	runID := d.runID()
	logger := d.logger.With(zap.String("run_id", runID))
	rep := report.New(runID, d.clock.Now())

	workers := min(d.maxConcurrency, len(items))
	logger.Info("run starting", zap.Int("items", len(items)), zap.Int("workers", workers))

	q := memory.NewQueue(len(items))
	for _, item := range items {
		// Capacity equals len(items) and nothing has closed q, so this cannot fail.
		_ = q.Enqueue(context.WithoutCancel(ctx), item)
	}
	q.Close()

	results := make(chan extract.ItemResult, len(items))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id, q, results, logger)
		}(i)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		rep.Add(res)
	}
	rep.Finish(d.clock.Now())

	logger.Info("run finished",
		zap.Int("total", rep.Total),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
		zap.Duration("elapsed", rep.Duration()),
	)
	return rep
}

func (d *Dispatcher) work(
	ctx context.Context,
	id int,
	q *memory.Queue,
	results chan<- extract.ItemResult,
	logger *zap.Logger,
) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	// Draining ignores cancellation so every queued item still reports.
	drain := context.WithoutCancel(ctx)
	for {
		item, err := q.Dequeue(drain)
		if err != nil {
			return
		}
		results <- d.runOne(ctx, id, item, logger)
	}
}

func (d *Dispatcher) runOne(
	ctx context.Context,
	id int,
	item extract.WorkItem,
	logger *zap.Logger,
) (res extract.ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("runner panicked",
				zap.Int("worker", id),
				zap.String("label", item.Label),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err := &extract.Error{Kind: extract.KindInternal, Stage: "dispatch", Err: fmt.Errorf("panic: %v", r)}
			res = extract.Failed(item, extract.StateExhausted, res.Attempts, err)
		}
	}()
	logger.Debug("item dequeued", zap.Int("worker", id), zap.String("label", item.Label))
	return d.runner.Run(ctx, item)
}

func (d *Dispatcher) runID() string {
	if d.ids == nil {
		return ""
	}
	id, err := d.ids.NewID()
	if err != nil {
		d.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

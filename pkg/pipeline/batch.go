package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/scoutvc/diligence/pkg/otelhelper"
)

// Executor fans a named batch of independent tasks out with bounded
// concurrency and gathers their results. One bad task never aborts siblings
// or the batch: the runner converts every failure into a TaskResult.
type Executor struct {
	runner *Runner
	logger *slog.Logger
	tracer trace.Tracer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBatchTracer records one span per batch and one per task attempt.
func WithBatchTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
		e.runner.tracer = tracer
	}
}

func NewExecutor(logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		runner: NewRunner(logger),
		logger: logger.With("module", "batch_executor"),
		tracer: noop.NewTracerProvider().Tracer("pipeline"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RunBatch executes the specs with at most concurrencyLimit tasks in flight at
// any instant. Excess tasks wait for a slot. The returned slice has one result
// per input spec, index-aligned to input order regardless of completion order.
// A concurrencyLimit < 1 means unbounded (bounded by the batch size itself).
func (e *Executor) RunBatch(ctx context.Context, name string, specs []TaskSpec, concurrencyLimit int) []TaskResult {
	if concurrencyLimit < 1 || concurrencyLimit > len(specs) {
		concurrencyLimit = len(specs)
	}

	if len(specs) == 0 {
		return []TaskResult{}
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "batch."+name,
		attribute.String(otelhelper.BatchNameKey, name),
	)
	defer span.End()

	logger := e.logger.With("batch", name, "tasks", len(specs), "concurrency", concurrencyLimit)
	logger.InfoContext(ctx, "Starting batch")

	started := time.Now()
	results := make([]TaskResult, len(specs))
	sem := make(chan struct{}, concurrencyLimit)

	var wg sync.WaitGroup

	for i, spec := range specs {
		wg.Add(1)

		go func(i int, spec TaskSpec) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = e.runner.Run(ctx, spec)
		}(i, spec)
	}

	wg.Wait()

	succeeded := 0

	for _, result := range results {
		if result.Succeeded {
			succeeded++
		}
	}

	logger.InfoContext(ctx, "Batch settled",
		"succeeded", succeeded,
		"failed", len(specs)-succeeded,
		"elapsed", time.Since(started),
	)

	return results
}

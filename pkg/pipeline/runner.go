package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/scoutvc/diligence/pkg/otelhelper"
)

// Capture collects partial output produced by an invocation before it settles.
// When a task times out, whatever text landed here is preserved in the result's
// RawText for diagnostics instead of being discarded with the attempt.
type Capture struct {
	mu sync.Mutex
	b  strings.Builder
}

// Append adds a chunk of partial output.
func (c *Capture) Append(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.b.WriteString(text)
}

// String returns the output accumulated so far.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.b.String()
}

// Invocation is one side-effecting call to an external service. It must honor
// ctx cancellation and should stream partial output into capture as it arrives,
// returning the complete raw text on success.
type Invocation func(ctx context.Context, capture *Capture) (string, error)

// StructuredParser extracts a structured value from raw task output. A nil
// return means nothing parseable was found.
type StructuredParser func(rawText string) map[string]any

// TaskSpec describes one schedulable unit of work for the batch executor.
type TaskSpec struct {
	// ID is the task's stable identity, e.g. "financial_analyst".
	ID string

	Invoke  Invocation
	Timeout time.Duration

	// Parse, when set, populates TaskResult.Output from the raw text. When
	// RequireStructured is also set, a task whose output yields nothing
	// parseable is marked failed.
	Parse             StructuredParser
	RequireStructured bool
}

// Runner executes one task attempt with a deadline, converting every failure
// mode, including panics and timeouts, into a TaskResult.
type Runner struct {
	logger *slog.Logger
	tracer trace.Tracer
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger: logger.With("module", "task_runner"),
		tracer: noop.NewTracerProvider().Tracer("pipeline"),
	}
}

type invokeOutcome struct {
	rawText string
	err     error
}

// Run executes the task and always returns a TaskResult; no error or panic
// escapes. On timeout the result carries partial output from the capture
// buffer. Cancellation is cooperative: the invocation's context is cancelled
// and siblings are unaffected.
func (r *Runner) Run(ctx context.Context, spec TaskSpec) TaskResult {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "task."+spec.ID,
		attribute.String(otelhelper.TaskIDKey, spec.ID),
	)
	defer span.End()

	result := r.run(ctx, spec)
	if !result.Succeeded {
		otelhelper.SetError(span, errors.New(result.ErrorMessage))
	}

	return result
}

func (r *Runner) run(ctx context.Context, spec TaskSpec) TaskResult {
	started := time.Now()

	if spec.Timeout <= 0 {
		return TaskResult{
			TaskID:        spec.ID,
			ErrorMessage:  InvalidTimeoutMessage(spec.Timeout),
			ElapsedMillis: time.Since(started).Milliseconds(),
		}
	}

	taskCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	capture := &Capture{}
	outcome := make(chan invokeOutcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				outcome <- invokeOutcome{err: fmt.Errorf("task panicked: %v", rec)}
			}
		}()

		rawText, err := spec.Invoke(taskCtx, capture)
		outcome <- invokeOutcome{rawText: rawText, err: err}
	}()

	select {
	case <-taskCtx.Done():
		elapsed := time.Since(started).Milliseconds()

		if ctx.Err() != nil {
			// Caller cancelled the whole batch, not a per-task deadline.
			r.logger.InfoContext(ctx, "Task cancelled", "task_id", spec.ID, "elapsed_ms", elapsed)

			return TaskResult{
				TaskID:        spec.ID,
				RawText:       capture.String(),
				ErrorMessage:  ctx.Err().Error(),
				ElapsedMillis: elapsed,
			}
		}

		r.logger.InfoContext(ctx, "Task timed out",
			"task_id", spec.ID,
			"timeout", spec.Timeout,
			"partial_bytes", len(capture.String()),
		)

		return TaskResult{
			TaskID:        spec.ID,
			RawText:       capture.String(),
			ErrorMessage:  TimeoutMessage(spec.Timeout),
			ElapsedMillis: elapsed,
		}

	case result := <-outcome:
		elapsed := time.Since(started).Milliseconds()

		if result.err != nil {
			r.logger.InfoContext(ctx, "Task failed",
				"task_id", spec.ID,
				"error", result.err,
				"elapsed_ms", elapsed,
			)

			return TaskResult{
				TaskID:        spec.ID,
				RawText:       capture.String(),
				ErrorMessage:  result.err.Error(),
				ElapsedMillis: elapsed,
			}
		}

		return r.finishTask(ctx, spec, result.rawText, elapsed)
	}
}

// finishTask applies structured-output parsing to a successful invocation.
func (r *Runner) finishTask(ctx context.Context, spec TaskSpec, rawText string, elapsed int64) TaskResult {
	result := TaskResult{
		TaskID:        spec.ID,
		Succeeded:     true,
		RawText:       rawText,
		ElapsedMillis: elapsed,
	}

	if spec.Parse != nil {
		result.Output = spec.Parse(rawText)
		if result.Output == nil && spec.RequireStructured {
			result.Succeeded = false
			result.ErrorMessage = UnparseableOutputMessage(spec.ID)
		}
	}

	r.logger.InfoContext(ctx, "Task settled",
		"task_id", spec.ID,
		"succeeded", result.Succeeded,
		"elapsed_ms", elapsed,
	)

	return result
}

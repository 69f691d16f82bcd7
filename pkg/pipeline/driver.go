package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/scoutvc/diligence/pkg/otelhelper"
)

// defaultMaxTransitions is a backstop against graph bugs. Budgeted retries
// bound real runs well below it; exceeding it forces a jump to the terminal
// stage so a run always produces a terminal classification.
const defaultMaxTransitions = 32

type conditionalEdge struct {
	router  RouterFunc
	targets map[Decision]string
}

// Graph assembles the stage and router tables before compiling a Driver.
type Graph struct {
	stages      map[string]StageFunc
	edges       map[string]string
	conditional map[string]conditionalEdge
	entry       string
	terminal    string
}

func NewGraph() *Graph {
	return &Graph{
		stages:      make(map[string]StageFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge),
	}
}

func (g *Graph) AddStage(name string, fn StageFunc) *Graph {
	g.stages[name] = fn

	return g
}

// AddEdge registers an unconditional transition.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to

	return g
}

// AddConditionalEdges registers a router evaluated after the named stage and
// the target stage per decision.
func (g *Graph) AddConditionalEdges(from string, router RouterFunc, targets map[Decision]string) *Graph {
	g.conditional[from] = conditionalEdge{router: router, targets: targets}

	return g
}

func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name

	return g
}

func (g *Graph) SetTerminal(name string) *Graph {
	g.terminal = name

	return g
}

// DriverOption configures a compiled Driver.
type DriverOption func(*Driver)

func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger.With("module", "workflow_driver")
	}
}

func WithTracer(tracer trace.Tracer) DriverOption {
	return func(d *Driver) {
		d.tracer = tracer
	}
}

func WithMaxTransitions(n int) DriverOption {
	return func(d *Driver) {
		d.maxTransitions = n
	}
}

// Compile validates the graph and returns an immutable Driver. There is no
// process-wide compiled graph; construct one Driver per process or per test.
func (g *Graph) Compile(opts ...DriverOption) (*Driver, error) {
	if g.entry == "" {
		return nil, ErrNoEntryStage
	}

	if g.terminal == "" {
		return nil, ErrNoTerminalStage
	}

	for _, name := range []string{g.entry, g.terminal} {
		if _, ok := g.stages[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrStageNotFound, name)
		}
	}

	for from, to := range g.edges {
		if _, ok := g.stages[to]; !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrDanglingEdge, from, to)
		}
	}

	for from, edge := range g.conditional {
		for decision, to := range edge.targets {
			if _, ok := g.stages[to]; !ok {
				return nil, fmt.Errorf("%w: %s[%s] -> %s", ErrDanglingEdge, from, decision, to)
			}
		}
	}

	driver := &Driver{
		stages:         g.stages,
		edges:          g.edges,
		conditional:    g.conditional,
		entry:          g.entry,
		terminal:       g.terminal,
		maxTransitions: defaultMaxTransitions,
		logger:         slog.Default().With("module", "workflow_driver"),
		tracer:         noop.NewTracerProvider().Tracer("pipeline"),
	}

	for _, opt := range opts {
		opt(driver)
	}

	return driver, nil
}

// Driver holds the immutable stage/router graph and walks it stage by stage
// from an initial state until the terminal stage has run. It owns the state
// for the duration of one run; stages only ever see a value copy and return
// partial updates that the driver merges into a new state.
type Driver struct {
	stages         map[string]StageFunc
	edges          map[string]string
	conditional    map[string]conditionalEdge
	entry          string
	terminal       string
	maxTransitions int
	logger         *slog.Logger
	tracer         trace.Tracer
}

// Run executes the workflow to its terminal stage. The terminal stage runs
// exactly once per run, on every path.
func (d *Driver) Run(ctx context.Context, initial State) (State, error) {
	state := initial
	current := d.entry
	transitions := 0

	for {
		stage, ok := d.stages[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrStageNotFound, current)
		}

		stageCtx, span := otelhelper.StartSpan(ctx, d.tracer, "stage."+current,
			attribute.String(otelhelper.StageNameKey, current),
			attribute.String(otelhelper.SubjectNameKey, state.SubjectName),
			attribute.Int(otelhelper.RetryCountKey, state.RetryCount),
		)

		d.logger.InfoContext(ctx, "Running stage", "stage", current, "retry_count", state.RetryCount)

		update := stage(stageCtx, state)
		state = Merge(state, update)

		span.End()

		if current == d.terminal {
			d.logger.InfoContext(ctx, "Workflow reached terminal stage",
				"stage", current,
				"outcome", state.CurrentStage,
				"transitions", transitions,
			)

			return state, nil
		}

		next, decision := d.route(current, state)
		if decision != "" {
			d.logger.InfoContext(ctx, "Routing decision", "stage", current, "decision", decision, "next", next)
			span.SetAttributes(attribute.String(otelhelper.DecisionKey, string(decision)))
		}

		transitions++
		if transitions >= d.maxTransitions && next != d.terminal {
			d.logger.ErrorContext(ctx, "Transition budget exceeded, forcing terminal stage",
				"stage", current,
				"transitions", transitions,
			)

			next = d.terminal
		}

		current = next
	}
}

// route picks the next stage. A missing edge or an unrouted decision falls
// through to the terminal stage so the run still converges.
func (d *Driver) route(current string, state State) (string, Decision) {
	if edge, ok := d.conditional[current]; ok {
		decision := edge.router(state)

		if target, ok := edge.targets[decision]; ok {
			return target, decision
		}

		d.logger.Error("Unrouted decision, falling through to terminal stage",
			"stage", current,
			"decision", decision,
		)

		return d.terminal, decision
	}

	if target, ok := d.edges[current]; ok {
		return target, ""
	}

	d.logger.Error("Stage has no outgoing edge, falling through to terminal stage", "stage", current)

	return d.terminal, ""
}

package pipeline

import "context"

// StageFunc is a named pipeline step: a pure function from the current state
// to a partial update. Stages read only the fields they need, never call each
// other, and never fail the workflow by returning an error; task failures are
// reported through the update's error entries and batch results.
type StageFunc func(ctx context.Context, state State) Update

// RouterFunc is a pure decision function evaluated after designated stages.
// It inspects the state and picks one transition from a closed set; all
// payload stays in the state.
type RouterFunc func(state State) Decision

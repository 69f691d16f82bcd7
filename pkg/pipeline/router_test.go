package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckInitSuccess(t *testing.T) {
	state := NewState("Acme", "widgets", "")
	assert.Equal(t, DecisionSuccess, CheckInitSuccess(state))

	state = Merge(state, Update{Errors: []string{"transient backend hiccup"}})
	assert.Equal(t, DecisionSuccess, CheckInitSuccess(state), "only input errors are fatal at init")

	state = Merge(state, Update{Errors: []string{MissingInputEntry("subject_name")}})
	assert.Equal(t, DecisionFailed, CheckInitSuccess(state))
}

func resultsFor(succeeded, failed int) []TaskResult {
	results := make([]TaskResult, 0, succeeded+failed)

	for i := 0; i < succeeded; i++ {
		results = append(results, TaskResult{TaskID: taskID("ok", i), Succeeded: true})
	}

	for i := 0; i < failed; i++ {
		results = append(results, TaskResult{TaskID: taskID("bad", i), ErrorMessage: "boom"})
	}

	return results
}

func taskID(prefix string, i int) string {
	return prefix + string(rune('a'+i))
}

func TestCheckBatchCompleteness(t *testing.T) {
	router := CheckBatchCompleteness("research", DefaultRetryPolicy())

	tests := []struct {
		name       string
		succeeded  int
		failed     int
		retryCount int
		want       Decision
	}{
		{"no attempts under budget", 0, 0, 0, DecisionIncomplete},
		{"no attempts budget exhausted", 0, 0, 2, DecisionFailed},
		{"ratio above threshold", 4, 1, 0, DecisionComplete},
		{"ratio at threshold", 2, 2, 0, DecisionComplete},
		{"ratio below threshold under budget", 2, 3, 0, DecisionIncomplete},
		{"ratio below threshold one retry left", 1, 4, 1, DecisionIncomplete},
		{"ratio below threshold budget exhausted forces complete", 1, 4, 2, DecisionComplete},
		{"all failed budget exhausted forces complete", 0, 5, 2, DecisionComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState("Acme", "widgets", "")
			state = Merge(state, Update{
				BatchResults: map[string][]TaskResult{
					"research": resultsFor(tt.succeeded, tt.failed),
				},
				RetryCount: IntPtr(tt.retryCount),
			})

			assert.Equal(t, tt.want, router(state))
		})
	}
}

// The success ratio must count each task's most recent attempt, not raw
// entries, since retries append duplicates.
func TestCheckBatchCompleteness_UsesLatestAttemptPerTask(t *testing.T) {
	router := CheckBatchCompleteness("research", DefaultRetryPolicy())

	state := NewState("Acme", "widgets", "")

	// First pass: 2/5 succeeded.
	state = Merge(state, Update{
		BatchResults: map[string][]TaskResult{
			"research": {
				{TaskID: "profiler", Succeeded: true},
				{TaskID: "market", Succeeded: true},
				{TaskID: "competitors", ErrorMessage: "boom"},
				{TaskID: "team", ErrorMessage: "boom"},
				{TaskID: "news", ErrorMessage: "boom"},
			},
		},
	})
	assert.Equal(t, DecisionIncomplete, router(state))

	// Retry pass: the three failed tasks now succeed. Raw entry count is 8
	// but the latest-per-task view is 5/5.
	state = Merge(state, Update{
		BatchResults: map[string][]TaskResult{
			"research": {
				{TaskID: "competitors", Succeeded: true},
				{TaskID: "team", Succeeded: true},
				{TaskID: "news", Succeeded: true},
			},
		},
		RetryCount: IntPtr(1),
	})

	ratio, ok := state.SuccessRatio("research")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, ratio, 1e-9)
	assert.Equal(t, DecisionComplete, router(state))
}

// Termination: with every retry failing, the router must stop returning
// incomplete once the budget is spent.
func TestCheckBatchCompleteness_RetryBudgetTerminates(t *testing.T) {
	policy := DefaultRetryPolicy()
	router := CheckBatchCompleteness("research", policy)

	state := NewState("Acme", "widgets", "")
	state = Merge(state, Update{
		BatchResults: map[string][]TaskResult{
			"research": resultsFor(0, 5),
		},
	})

	retries := 0

	for router(state) == DecisionIncomplete {
		retries++
		state = Merge(state, Update{
			BatchResults: map[string][]TaskResult{
				"research": resultsFor(0, 5),
			},
			RetryCount: IntPtr(retries),
		})
	}

	assert.Equal(t, policy.MaxRetries, retries)
	assert.Equal(t, DecisionComplete, router(state), "exhausted budget converts incomplete to forced complete")
}

package pipeline

// Decision is an enumerated routing outcome. Each decision point draws from
// its own closed subset of these values.
type Decision string

const (
	DecisionSuccess    Decision = "success"
	DecisionFailed     Decision = "failed"
	DecisionComplete   Decision = "complete"
	DecisionIncomplete Decision = "incomplete"
)

// RetryPolicy bounds validation-driven batch retries.
type RetryPolicy struct {
	// MaxRetries bounds failing batch passes. Validation increments
	// RetryCount on each pass below the threshold; once the counter reaches
	// MaxRetries the router forces an incomplete batch to route as complete
	// with partial data rather than loop.
	MaxRetries int

	// SuccessThreshold is the minimum successes/total ratio, over distinct
	// task IDs using each task's most recent attempt, for a batch to count
	// as complete without retrying.
	SuccessThreshold float64
}

// DefaultRetryPolicy matches the reference behavior: two extra passes, half
// the tasks must succeed.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       2,
		SuccessThreshold: 0.5,
	}
}

// CheckInitSuccess routes to failed when the error log records an invalid
// workflow input, success otherwise. Decisions: {success, failed}.
func CheckInitSuccess(state State) Decision {
	for _, entry := range state.ErrorLog {
		if IsMissingInputEntry(entry) {
			return DecisionFailed
		}
	}

	return DecisionSuccess
}

// CheckBatchCompleteness returns a router over the named batch group with
// decisions {complete, incomplete, failed}:
//
//   - no attempts recorded: incomplete while under the retry budget, failed
//     once it is exhausted;
//   - ratio at or above the threshold: complete;
//   - under the threshold with budget left: incomplete (targeted retry);
//   - under the threshold with the budget exhausted: complete, forced, so the
//     run converges on partial data instead of looping.
func CheckBatchCompleteness(group string, policy RetryPolicy) RouterFunc {
	return func(state State) Decision {
		ratio, attempted := state.SuccessRatio(group)
		if !attempted {
			if state.RetryCount < policy.MaxRetries {
				return DecisionIncomplete
			}

			return DecisionFailed
		}

		if ratio >= policy.SuccessThreshold {
			return DecisionComplete
		}

		if state.RetryCount < policy.MaxRetries {
			return DecisionIncomplete
		}

		return DecisionComplete
	}
}

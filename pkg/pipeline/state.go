// Package pipeline implements the staged analysis workflow engine: a driver
// that walks a fixed stage graph, a batch executor that fans tasks out under a
// concurrency cap, and a state merger that folds stage updates into the run
// state under per-field accumulation policies.
package pipeline

// TaskResult is the outcome of one task attempt. It is created exactly once
// by the Runner and never mutated afterwards; downstream stages only read it.
type TaskResult struct {
	TaskID        string         `json:"task_id"`
	Succeeded     bool           `json:"succeeded"`
	Output        map[string]any `json:"output,omitempty"`
	RawText       string         `json:"raw_text,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ElapsedMillis int64          `json:"elapsed_ms"`
}

// State is the single record threaded through all stages of one analysis run.
// It is owned by the Driver for the duration of the run and is never mutated
// in place: stages return an Update and the merger produces a new State.
type State struct {
	// Immutable inputs, set once at creation.
	SubjectName        string `json:"subject_name"`
	SubjectDescription string `json:"subject_description"`
	Context            string `json:"context,omitempty"`

	// BatchResults accumulates task results per batch group. Entries are never
	// removed; retries append fresh attempts for previously failed task IDs.
	BatchResults map[string][]TaskResult `json:"batch_results"`

	// Artifacts holds synthesized outputs (report, decision). Last write wins.
	Artifacts map[string]any `json:"artifacts"`

	CurrentStage string   `json:"current_stage"`
	ErrorLog     []string `json:"error_log"`
	RetryCount   int      `json:"retry_count"`

	// FailedTaskIDs is the set of task IDs to retry next, replaced wholesale
	// by each validation pass. It is a worklist, not history.
	FailedTaskIDs []string `json:"failed_task_ids"`
}

// NewState creates the initial state for one analysis run.
func NewState(subjectName, subjectDescription, context string) State {
	return State{
		SubjectName:        subjectName,
		SubjectDescription: subjectDescription,
		Context:            context,
		BatchResults:       make(map[string][]TaskResult),
		Artifacts:          make(map[string]any),
		ErrorLog:           []string{},
		FailedTaskIDs:      []string{},
	}
}

// Clone returns a copy of the state that shares no mutable containers with
// the original. TaskResult values are immutable so the slices copy shallowly.
func (s State) Clone() State {
	out := s

	out.BatchResults = make(map[string][]TaskResult, len(s.BatchResults))
	for group, results := range s.BatchResults {
		out.BatchResults[group] = append([]TaskResult(nil), results...)
	}

	out.Artifacts = make(map[string]any, len(s.Artifacts))
	for name, value := range s.Artifacts {
		out.Artifacts[name] = value
	}

	out.ErrorLog = append([]string(nil), s.ErrorLog...)
	out.FailedTaskIDs = append([]string(nil), s.FailedTaskIDs...)

	return out
}

// LatestResults returns the most recent result per task ID for a batch group.
// Retries append duplicate attempts, so success accounting must go through
// this view rather than counting raw entries.
func (s State) LatestResults(group string) map[string]TaskResult {
	latest := make(map[string]TaskResult)
	for _, result := range s.BatchResults[group] {
		latest[result.TaskID] = result
	}

	return latest
}

// AttemptedTaskIDs returns the distinct task IDs attempted in a group, in
// first-attempt order.
func (s State) AttemptedTaskIDs(group string) []string {
	seen := make(map[string]bool)

	var ids []string

	for _, result := range s.BatchResults[group] {
		if !seen[result.TaskID] {
			seen[result.TaskID] = true

			ids = append(ids, result.TaskID)
		}
	}

	return ids
}

// SuccessRatio computes successes/total over distinct task IDs in a group,
// where a task counts as succeeded if its most recent attempt succeeded.
// Returns ok=false when the group has no attempts at all.
func (s State) SuccessRatio(group string) (float64, bool) {
	latest := s.LatestResults(group)
	if len(latest) == 0 {
		return 0, false
	}

	succeeded := 0

	for _, result := range latest {
		if result.Succeeded {
			succeeded++
		}
	}

	return float64(succeeded) / float64(len(latest)), true
}

// Artifact returns a named artifact, or nil when absent.
func (s State) Artifact(name string) any {
	return s.Artifacts[name]
}

package pipeline

// Policy names how a field of State accumulates across stage updates.
type Policy string

const (
	// PolicyAppend adds new entries after existing ones and never drops any.
	PolicyAppend Policy = "append"
	// PolicyReplace swaps the whole value for the one in the update.
	PolicyReplace Policy = "replace"
	// PolicyOverwrite sets the scalar value; last stage to write wins.
	PolicyOverwrite Policy = "overwrite"
	// PolicyImmutable marks inputs that no update may touch.
	PolicyImmutable Policy = "immutable"
)

// Field names the State fields the merger knows about.
type Field string

const (
	FieldSubjectName        Field = "subject_name"
	FieldSubjectDescription Field = "subject_description"
	FieldContext            Field = "context"
	FieldBatchResults       Field = "batch_results"
	FieldArtifacts          Field = "artifacts"
	FieldCurrentStage       Field = "current_stage"
	FieldErrorLog           Field = "error_log"
	FieldRetryCount         Field = "retry_count"
	FieldFailedTaskIDs      Field = "failed_task_ids"
)

// policyTable is the static accumulation policy per State field. It is spelled
// out rather than inferred from field types so that an accidental accumulation
// change shows up as a diff here, not as a silent behavior shift.
var policyTable = map[Field]Policy{
	FieldSubjectName:        PolicyImmutable,
	FieldSubjectDescription: PolicyImmutable,
	FieldContext:            PolicyImmutable,
	FieldBatchResults:       PolicyAppend,
	FieldArtifacts:          PolicyOverwrite,
	FieldCurrentStage:       PolicyOverwrite,
	FieldErrorLog:           PolicyAppend,
	FieldRetryCount:         PolicyOverwrite,
	FieldFailedTaskIDs:      PolicyReplace,
}

// FieldPolicy reports the registered accumulation policy for a field.
func FieldPolicy(f Field) (Policy, bool) {
	p, ok := policyTable[f]

	return p, ok
}

// Merge folds a stage's partial update into the state and returns a new State.
// The input state is never modified.
func Merge(state State, update Update) State {
	out := state.Clone()

	// batch_results: append per group, preserving settlement order.
	for group, results := range update.BatchResults {
		out.BatchResults[group] = append(out.BatchResults[group], results...)
	}

	// artifacts: overwrite per name.
	for name, value := range update.Artifacts {
		out.Artifacts[name] = value
	}

	// current_stage: overwrite.
	if update.CurrentStage != "" {
		out.CurrentStage = update.CurrentStage
	}

	// error_log: append only, never cleared.
	out.ErrorLog = append(out.ErrorLog, update.Errors...)

	// retry_count: overwrite.
	if update.RetryCount != nil {
		out.RetryCount = *update.RetryCount
	}

	// failed_task_ids: replace wholesale, nil means no write.
	if update.FailedTaskIDs != nil {
		out.FailedTaskIDs = append([]string(nil), update.FailedTaskIDs...)
	}

	return out
}

package pipeline

// Update is a partial state write returned by a stage. Zero-valued fields mean
// "no write". The merger applies each field under the policy registered for it
// in the policy table; stages never touch the running State directly.
type Update struct {
	// BatchResults appends results to the named batch groups.
	BatchResults map[string][]TaskResult

	// Artifacts overwrites the named artifacts.
	Artifacts map[string]any

	// CurrentStage overwrites the stage marker when non-empty.
	CurrentStage string

	// Errors appends entries to the error log.
	Errors []string

	// RetryCount overwrites the retry counter when non-nil.
	RetryCount *int

	// FailedTaskIDs replaces the retry worklist when non-nil. A non-nil empty
	// slice is a deliberate write that clears the worklist.
	FailedTaskIDs []string
}

// IntPtr is a convenience for Update.RetryCount writes.
func IntPtr(v int) *int {
	return &v
}

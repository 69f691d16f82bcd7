package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task and workflow failures are recorded as data, not raised: tasks report
// through TaskResult.ErrorMessage and stages through error log entries. The
// helpers here keep the marker formats in one place because routers match on
// them.

// Graph construction and execution errors.
var (
	ErrStageNotFound    = errors.New("stage not found")
	ErrNoEntryStage     = errors.New("entry stage not set")
	ErrNoTerminalStage  = errors.New("terminal stage not set")
	ErrUnroutedDecision = errors.New("routing decision has no target stage")
	ErrDanglingEdge     = errors.New("edge targets unregistered stage")
)

const (
	// missingInputPrefix marks WorkflowInputInvalid entries in the error log.
	// CheckInitSuccess routes on this marker.
	missingInputPrefix = "missing required input:"

	// criticalPrefix marks StageValidationCritical entries appended when a
	// batch falls below its success threshold.
	criticalPrefix = "CRITICAL:"
)

// TimeoutMessage formats the TaskTimeout error message recorded when a task's
// deadline expires.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Timeout after %ds", int(timeout.Seconds()))
}

// IsTimeoutMessage reports whether a task error message records a timeout.
func IsTimeoutMessage(msg string) bool {
	return strings.HasPrefix(msg, "Timeout after ")
}

// InvalidTimeoutMessage formats the error message recorded when a task spec
// carries a non-positive timeout and is rejected before invocation.
func InvalidTimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("invalid timeout %s", timeout)
}

// UnparseableOutputMessage formats the TaskOutputUnparseable error message for
// a task whose raw output yielded no required structured value.
func UnparseableOutputMessage(taskID string) string {
	return fmt.Sprintf("no parseable structured output from %s", taskID)
}

// MissingInputEntry formats a WorkflowInputInvalid error log entry.
func MissingInputEntry(field string) string {
	return fmt.Sprintf("%s %s", missingInputPrefix, field)
}

// IsMissingInputEntry reports whether an error log entry records an invalid
// workflow input.
func IsMissingInputEntry(entry string) bool {
	return strings.HasPrefix(entry, missingInputPrefix)
}

// CriticalEntry formats a StageValidationCritical error log entry.
func CriticalEntry(format string, args ...any) string {
	return criticalPrefix + " " + fmt.Sprintf(format, args...)
}

// IsCriticalEntry reports whether an error log entry is a critical validation
// failure.
func IsCriticalEntry(entry string) bool {
	return strings.HasPrefix(entry, criticalPrefix)
}

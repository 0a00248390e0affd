package task

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrStepNotFound    = errors.New("step not found")
	ErrTriggerNotFound = errors.New("trigger not found")
)

// ValidationError reports malformed input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// InvalidTransitionError reports a state move outside the allowed edge set.
// Callers must treat it as a logic bug or a race requiring a fresh read.
type InvalidTransitionError struct {
	TaskID string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: invalid transition %s -> %s", e.TaskID, e.From, e.To)
}

// ConcurrentModificationError means the durable record's version moved between
// read and write. Recoverable by re-reading and retrying at the call site; the
// state machine never auto-retries.
type ConcurrentModificationError struct {
	TaskID          string
	ExpectedVersion int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("task %s: version %d no longer current", e.TaskID, e.ExpectedVersion)
}

// ExecutionError is returned by step executors. Retryable failures are
// re-armed and re-enqueued by the coordinator; fatal ones terminate the task.
type ExecutionError struct {
	Retryable bool
	Err       error
}

func (e *ExecutionError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("step execution failed (%s): %v", kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

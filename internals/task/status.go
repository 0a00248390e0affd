package task

import "fmt"

// Status is the lifecycle state of a Task. The zero value is not valid;
// statuses only change through the state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExecuting  Status = "executing"
	StatusCheckpoint Status = "checkpoint"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus rejects unknown status strings instead of passing them through.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusExecuting, StatusCheckpoint, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(raw), nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown task status %q", raw)}
}

// StepStatus is the lifecycle state of a single Step.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusDone    StepStatus = "done"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusDone, StepStatusFailed, StepStatusSkipped:
		return true
	}
	return false
}

func ParseStepStatus(raw string) (StepStatus, error) {
	switch StepStatus(raw) {
	case StepStatusPending, StepStatusRunning, StepStatusDone, StepStatusFailed, StepStatusSkipped:
		return StepStatus(raw), nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown step status %q", raw)}
}

package statemachine

import "github.com/hatchery-io/hatchery/internals/task"

// Allowed task edges. PENDING is the sole initial state; COMPLETED, FAILED
// and CANCELLED are terminal sinks.
var taskEdges = map[task.Status][]task.Status{
	task.StatusPending:    {task.StatusExecuting, task.StatusCancelled},
	task.StatusExecuting:  {task.StatusCheckpoint, task.StatusCompleted, task.StatusFailed, task.StatusCancelled},
	task.StatusCheckpoint: {task.StatusExecuting, task.StatusCancelled},
}

// Allowed step edges. RUNNING -> PENDING and FAILED -> PENDING are the retry
// re-arm moves; the retry budget itself belongs to the coordinator, not here.
var stepEdges = map[task.StepStatus][]task.StepStatus{
	task.StepStatusPending: {task.StepStatusRunning, task.StepStatusSkipped},
	task.StepStatusRunning: {task.StepStatusDone, task.StepStatusFailed, task.StepStatusPending},
	task.StepStatusFailed:  {task.StepStatusPending},
}

// TaskTransitionAllowed reports whether from -> to is in the edge set.
func TaskTransitionAllowed(from, to task.Status) bool {
	for _, next := range taskEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StepTransitionAllowed reports whether from -> to is in the step edge set.
func StepTransitionAllowed(from, to task.StepStatus) bool {
	for _, next := range stepEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

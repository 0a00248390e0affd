// Package statemachine is the single authoritative mutator of task and step
// status. Every status change in the system routes through Transition or
// TransitionStep: the durable store is written first under a version
// compare-and-swap, then the cache is invalidated best-effort.
package statemachine

import (
	"context"
	"log/slog"
	"time"

	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/taskstore"
)

// Store is the durable-store surface the machine needs. The production
// implementation is *taskstore.Store.
type Store interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	CompareAndSwapStatus(ctx context.Context, swap taskstore.StatusSwap) (*task.Task, error)
}

// Cache is the invalidation surface. Failures here are logged and swallowed:
// staleness self-heals on the next read miss and must never fail a durable
// transition.
type Cache interface {
	InvalidateWithIndexes(ctx context.Context, id, userID string, oldStatus, newStatus task.Status) error
}

// TransitionResult reports a successful task-level transition.
type TransitionResult struct {
	TaskID  string
	From    task.Status
	To      task.Status
	Version int64
}

type Machine struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

func New(store Store, cache Cache, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: store, cache: cache, logger: logger}
}

// Transition moves a task to target. The legality check always runs against a
// fresh read of the durable record, never a cached copy. Returns
// *task.InvalidTransitionError for moves outside the edge set and
// *task.ConcurrentModificationError when another writer won the race.
func (m *Machine) Transition(ctx context.Context, taskID string, target task.Status, reason string) (TransitionResult, error) {
	current, err := m.store.Get(ctx, taskID)
	if err != nil {
		return TransitionResult{}, err
	}

	if !TaskTransitionAllowed(current.Status, target) {
		return TransitionResult{}, &task.InvalidTransitionError{
			TaskID: taskID,
			From:   string(current.Status),
			To:     string(target),
		}
	}

	updated, err := m.store.CompareAndSwapStatus(ctx, taskstore.StatusSwap{
		TaskID:          taskID,
		ExpectedVersion: current.Version,
		NewStatus:       target,
		Reason:          reason,
	})
	if err != nil {
		return TransitionResult{}, err
	}

	m.invalidate(ctx, updated, current.Status, target)

	return TransitionResult{
		TaskID:  taskID,
		From:    current.Status,
		To:      target,
		Version: updated.Version,
	}, nil
}

// TransitionStep moves one step to target, writing the whole steps document
// and the version bump as a single compare-and-swap. When the move leaves
// every step terminal (done/failed/skipped), the overall task status is
// derived and applied as a task-level transition in the same call; the
// returned bool reports whether that happened.
func (m *Machine) TransitionStep(ctx context.Context, taskID, stepID string, target task.StepStatus, resultData map[string]any, errorMessage string) (bool, error) {
	current, err := m.store.Get(ctx, taskID)
	if err != nil {
		return false, err
	}

	if current.Status.IsTerminal() {
		return false, &task.InvalidTransitionError{
			TaskID: taskID,
			From:   string(current.Status),
			To:     string(current.Status),
		}
	}

	step := current.StepByID(stepID)
	if step == nil {
		return false, task.ErrStepNotFound
	}

	if !StepTransitionAllowed(step.Status, target) {
		return false, &task.InvalidTransitionError{
			TaskID: taskID,
			From:   string(step.Status),
			To:     string(target),
		}
	}

	steps := make([]task.Step, len(current.Steps))
	copy(steps, current.Steps)
	now := time.Now().UTC()
	for i := range steps {
		if steps[i].ID != stepID {
			continue
		}
		prior := steps[i].Status
		steps[i].Status = target
		switch target {
		case task.StepStatusRunning:
			steps[i].StartedAt = &now
			steps[i].ErrorMessage = ""
		case task.StepStatusDone:
			steps[i].CompletedAt = &now
			if resultData != nil {
				steps[i].Outputs = resultData
			}
		case task.StepStatusFailed:
			steps[i].CompletedAt = &now
			steps[i].ErrorMessage = errorMessage
		case task.StepStatusPending:
			// Retry re-arm: keep the error for inspection, count the retry.
			if prior == task.StepStatusRunning || prior == task.StepStatusFailed {
				steps[i].RetryCount++
			}
			if errorMessage != "" {
				steps[i].ErrorMessage = errorMessage
			}
			steps[i].StartedAt = nil
			steps[i].CompletedAt = nil
		}
	}

	// Derive the task-level status only when the step move leaves everything
	// terminal.
	probe := *current
	probe.Steps = steps
	derived := task.Status("")
	if target.IsTerminal() && probe.AllStepsTerminal() && !current.Status.IsTerminal() {
		if probe.HasFailedStep() {
			derived = task.StatusFailed
		} else {
			derived = task.StatusCompleted
		}
	}

	newStatus := current.Status
	if derived != "" {
		if TaskTransitionAllowed(current.Status, derived) {
			newStatus = derived
		} else {
			m.logger.Warn("derived task status unreachable, keeping current",
				slog.String("task_id", taskID),
				slog.String("current", string(current.Status)),
				slog.String("derived", string(derived)),
			)
		}
	}

	updated, err := m.store.CompareAndSwapStatus(ctx, taskstore.StatusSwap{
		TaskID:          taskID,
		ExpectedVersion: current.Version,
		NewStatus:       newStatus,
		Steps:           steps,
		Reason:          "step " + stepID + " -> " + string(target),
	})
	if err != nil {
		return false, err
	}

	m.invalidate(ctx, updated, current.Status, newStatus)

	return newStatus != current.Status, nil
}

// invalidate is the best-effort cache side of a durable transition.
func (m *Machine) invalidate(ctx context.Context, t *task.Task, oldStatus, newStatus task.Status) {
	if m.cache == nil {
		return
	}
	if err := m.cache.InvalidateWithIndexes(ctx, t.ID, t.UserID, oldStatus, newStatus); err != nil {
		m.logger.Warn("cache invalidation failed, staleness will self-heal on next miss",
			slog.String("task_id", t.ID),
			slog.String("old_status", string(oldStatus)),
			slog.String("new_status", string(newStatus)),
			slog.Any("error", err),
		)
	}
}

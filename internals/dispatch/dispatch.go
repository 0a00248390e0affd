// Package dispatch connects the event bus to the trigger registry: when an
// event arrives it asks the registry which tasks should fire and enqueues
// their next ready step.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/hatchery-io/hatchery/internals/coordinator"
	"github.com/hatchery-io/hatchery/internals/events"
	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/triggers"
)

// TaskLoader reads authoritative task state.
type TaskLoader interface {
	Get(ctx context.Context, id string) (*task.Task, error)
}

// Enqueuer hands step work items to the scheduler.
type Enqueuer interface {
	EnqueueStep(ctx context.Context, item coordinator.WorkItem) error
}

type Dispatcher struct {
	registry *triggers.Registry
	store    TaskLoader
	enqueuer Enqueuer
	logger   *slog.Logger
}

func New(registry *triggers.Registry, store TaskLoader, enqueuer Enqueuer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, store: store, enqueuer: enqueuer, logger: logger}
}

// HandleEvent fires every matching trigger within the event's organization.
// Returns how many tasks were scheduled. Per-task problems (missing task,
// nothing ready, terminal state) are logged and skipped so one bad binding
// never blocks the rest.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev events.Event) (int, error) {
	matched, err := d.registry.FindMatchingTasks(ctx, ev, "")
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, taskID := range matched {
		logger := d.logger.With(
			slog.String("task_id", taskID),
			slog.String("event_id", ev.ID),
			slog.String("event_type", ev.Type),
		)

		t, err := d.store.Get(ctx, taskID)
		if err != nil {
			logger.Warn("trigger matched but task could not be loaded", slog.Any("error", err))
			continue
		}
		if t.Status.IsTerminal() {
			logger.Info("trigger matched a terminal task, skipping",
				slog.String("status", string(t.Status)))
			continue
		}

		step := t.NextReadyStep()
		if step == nil {
			logger.Info("trigger matched but no step is ready")
			continue
		}

		item := coordinator.WorkItem{
			TaskID: taskID,
			Step: coordinator.StepData{
				ID:        step.ID,
				AgentType: step.AgentType,
				Inputs:    step.Inputs,
				Context: map[string]any{
					"event_id":   ev.ID,
					"event_type": ev.Type,
					"source":     ev.Source,
				},
			},
		}
		if err := d.enqueuer.EnqueueStep(ctx, item); err != nil {
			logger.Error("failed to enqueue triggered step", slog.Any("error", err))
			continue
		}

		d.registry.RecordExecution(ctx, triggers.Execution{
			TaskID:    taskID,
			EventID:   ev.ID,
			EventType: ev.Type,
			Source:    ev.Source,
			FiredAt:   time.Now().UTC(),
		})
		fired++
	}
	return fired, nil
}

package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/hatchery-io/hatchery/internals/coordinator"
	"github.com/hatchery-io/hatchery/internals/events"
	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/testutil"
	"github.com/hatchery-io/hatchery/internals/triggers"
)

type mapLoader struct {
	tasks map[string]*task.Task
}

func (l *mapLoader) Get(ctx context.Context, id string) (*task.Task, error) {
	t, ok := l.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound
	}
	return t.Clone(), nil
}

type captureEnqueuer struct {
	items []coordinator.WorkItem
	err   error
}

func (e *captureEnqueuer) EnqueueStep(ctx context.Context, item coordinator.WorkItem) error {
	if e.err != nil {
		return e.err
	}
	e.items = append(e.items, item)
	return nil
}

func dispatcherForTest(t *testing.T, tasks ...*task.Task) (*Dispatcher, *triggers.Registry, *captureEnqueuer) {
	t.Helper()
	registry := triggers.NewRegistry(triggers.NewMemoryStore(), nil, nil)
	loader := &mapLoader{tasks: map[string]*task.Task{}}
	for _, tk := range tasks {
		loader.tasks[tk.ID] = tk
	}
	enqueuer := &captureEnqueuer{}
	return New(registry, loader, enqueuer, nil), registry, enqueuer
}

func orgEvent(eventType string) events.Event {
	ev := events.New("webhook", eventType, map[string]any{"k": "v"})
	ev.Metadata = map[string]any{"organization_id": "acme"}
	return ev
}

func TestHandleEventEnqueuesReadyStep(t *testing.T) {
	tk := testutil.PendingTask(t)
	dispatcher, registry, enqueuer := dispatcherForTest(t, tk)
	ctx := context.Background()

	if _, err := registry.Register(ctx, triggers.Config{
		TaskID:         tk.ID,
		OrganizationID: "acme",
		EventPattern:   "external.webhook.*",
		Enabled:        true,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fired, err := dispatcher.HandleEvent(ctx, orgEvent("external.webhook.stripe"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d", fired)
	}
	if len(enqueuer.items) != 1 {
		t.Fatalf("items = %d", len(enqueuer.items))
	}

	item := enqueuer.items[0]
	if item.TaskID != tk.ID {
		t.Fatalf("task id = %s", item.TaskID)
	}
	if item.Step.ID != tk.Steps[0].ID {
		t.Fatalf("enqueued step = %s, want first ready step", item.Step.ID)
	}
	if item.Step.Context["event_type"] != "external.webhook.stripe" {
		t.Fatalf("step context = %+v", item.Step.Context)
	}
}

func TestHandleEventSkipsTerminalTask(t *testing.T) {
	tk := testutil.PendingTask(t)
	tk.Status = task.StatusCancelled
	dispatcher, registry, enqueuer := dispatcherForTest(t, tk)
	ctx := context.Background()

	if _, err := registry.Register(ctx, triggers.Config{TaskID: tk.ID, OrganizationID: "acme", EventPattern: "**", Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fired, err := dispatcher.HandleEvent(ctx, orgEvent("anything"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fired != 0 || len(enqueuer.items) != 0 {
		t.Fatalf("fired = %d, items = %d", fired, len(enqueuer.items))
	}
}

func TestHandleEventSkipsMissingTask(t *testing.T) {
	dispatcher, registry, enqueuer := dispatcherForTest(t)
	ctx := context.Background()

	if _, err := registry.Register(ctx, triggers.Config{TaskID: "ghost", OrganizationID: "acme", EventPattern: "**", Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fired, err := dispatcher.HandleEvent(ctx, orgEvent("anything"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fired != 0 || len(enqueuer.items) != 0 {
		t.Fatalf("fired = %d, items = %d", fired, len(enqueuer.items))
	}
}

func TestHandleEventSkipsWhenNoStepReady(t *testing.T) {
	tk := testutil.PendingTask(t)
	for i := range tk.Steps {
		tk.Steps[i].Status = task.StepStatusDone
	}
	dispatcher, registry, enqueuer := dispatcherForTest(t, tk)
	ctx := context.Background()

	if _, err := registry.Register(ctx, triggers.Config{TaskID: tk.ID, OrganizationID: "acme", EventPattern: "**", Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fired, err := dispatcher.HandleEvent(ctx, orgEvent("anything"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fired != 0 || len(enqueuer.items) != 0 {
		t.Fatalf("fired = %d, items = %d", fired, len(enqueuer.items))
	}
}

func TestHandleEventEnqueueFailureDoesNotCount(t *testing.T) {
	tk := testutil.PendingTask(t)
	dispatcher, registry, enqueuer := dispatcherForTest(t, tk)
	enqueuer.err = errors.New("queue full")
	ctx := context.Background()

	if _, err := registry.Register(ctx, triggers.Config{TaskID: tk.ID, OrganizationID: "acme", EventPattern: "**", Enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fired, err := dispatcher.HandleEvent(ctx, orgEvent("anything"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if fired != 0 {
		t.Fatalf("fired = %d, want 0 when enqueue fails", fired)
	}
}

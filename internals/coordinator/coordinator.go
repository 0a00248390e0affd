// Package coordinator executes exactly one step of exactly one task,
// end-to-end: mark running, invoke the executor, record the outcome, decide
// retry/continue/fail, and hand retryable work back to the scheduler. It
// never sleeps for backoff and leaves the system inspectable whatever
// happens.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hatchery-io/hatchery/internals/events"
	"github.com/hatchery-io/hatchery/internals/statemachine"
	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/taskcache"
)

// StepData is the portion of a step carried inside a work item.
type StepData struct {
	ID        string         `json:"id"`
	AgentType string         `json:"agent_type"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// WorkItem is the unit handed to and from the scheduler. Attempt counts
// completed executor tries for this step; the scheduler keys backoff off it.
type WorkItem struct {
	TaskID  string   `json:"task_id"`
	Step    StepData `json:"step_data"`
	Attempt int      `json:"attempt"`
}

// ExecRequest is what the injected executor receives.
type ExecRequest struct {
	TaskID    string
	AgentType string
	Inputs    map[string]any
	Context   map[string]any
	Findings  []task.Finding
}

// StepResult is a successful executor outcome.
type StepResult struct {
	Outputs  map[string]any
	Findings []task.Finding
}

// Executor is the injected step-execution capability, polymorphic over
// agent_type. Retryable failures are signalled with *task.ExecutionError.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) (StepResult, error)
}

// Scheduler re-enqueues retry work items. It owns backoff timing and
// guarantees at-least-once delivery.
type Scheduler interface {
	EnqueueRetry(ctx context.Context, item WorkItem) error
}

// Machine is the state-machine surface the coordinator drives.
type Machine interface {
	Transition(ctx context.Context, taskID string, target task.Status, reason string) (statemachine.TransitionResult, error)
	TransitionStep(ctx context.Context, taskID, stepID string, target task.StepStatus, resultData map[string]any, errorMessage string) (bool, error)
}

// Store is the durable read/append surface needed here.
type Store interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	AppendFindings(ctx context.Context, taskID string, findings []task.Finding) error
}

// Cache is the low-stakes read surface. Never consulted for legality.
type Cache interface {
	GetTask(ctx context.Context, id string) (*task.Task, error)
	PutTask(ctx context.Context, t *task.Task) error
}

type Config struct {
	MaxRetries int
}

type Coordinator struct {
	store      Store
	cache      Cache
	machine    Machine
	executor   Executor
	scheduler  Scheduler
	publisher  events.Publisher
	logger     *slog.Logger
	maxRetries int
}

func New(store Store, cache Cache, machine Machine, executor Executor, scheduler Scheduler, publisher events.Publisher, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Coordinator{
		store:      store,
		cache:      cache,
		machine:    machine,
		executor:   executor,
		scheduler:  scheduler,
		publisher:  publisher,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// ExecuteStep runs one work item to completion. Re-delivery of an item whose
// step already finished is a safe no-op, so the at-least-once scheduler can
// never double-run a step.
func (c *Coordinator) ExecuteStep(ctx context.Context, item WorkItem) error {
	logger := c.logger.With(
		slog.String("task_id", item.TaskID),
		slog.String("step_id", item.Step.ID),
		slog.Int("attempt", item.Attempt),
	)

	t, err := c.loadTask(ctx, item.TaskID)
	if err != nil {
		return err
	}

	// External cancellation wins before any new work starts. Other terminal
	// states mean a stale redelivery; both end quietly.
	if t.Status.IsTerminal() {
		logger.Info("task already terminal, skipping step", slog.String("status", string(t.Status)))
		return nil
	}

	step := t.StepByID(item.Step.ID)
	if step == nil {
		return fmt.Errorf("task %s: %w: %s", item.TaskID, task.ErrStepNotFound, item.Step.ID)
	}
	if step.Status == task.StepStatusDone || step.Status == task.StepStatusSkipped {
		logger.Info("step already finished, skipping", slog.String("status", string(step.Status)))
		return nil
	}

	// A step still RUNNING here means a previous run died mid-flight and the
	// queue redelivered the item. Re-arm it through the pending edge before
	// starting over; an interrupted step with no retries left fails instead.
	if step.Status == task.StepStatusRunning {
		if step.RetryCount >= c.maxRetries {
			logger.Warn("interrupted step has no retries left", slog.Int("retry_count", step.RetryCount))
			return c.finishFailure(ctx, item, errors.New("step interrupted, retry budget exhausted"), logger)
		}
		logger.Info("step was interrupted mid-run, re-arming", slog.Int("retry_count", step.RetryCount))
		if _, err := c.machine.TransitionStep(ctx, item.TaskID, item.Step.ID, task.StepStatusPending, nil, "interrupted"); err != nil {
			return fmt.Errorf("re-arm interrupted step: %w", err)
		}
	}

	if err := c.ensureExecuting(ctx, t); err != nil {
		return err
	}

	if _, err := c.machine.TransitionStep(ctx, item.TaskID, item.Step.ID, task.StepStatusRunning, nil, ""); err != nil {
		return fmt.Errorf("mark step running: %w", err)
	}

	outcome := c.runExecutor(ctx, ExecRequest{
		TaskID:    item.TaskID,
		AgentType: item.Step.AgentType,
		Inputs:    item.Step.Inputs,
		Context:   item.Step.Context,
		Findings:  t.Findings,
	})

	switch outcome.Kind {
	case task.OutcomeSuccess:
		return c.finishSuccess(ctx, item, outcome, logger)
	case task.OutcomeRetryableFailure:
		if item.Attempt+1 < c.maxRetries {
			return c.rearmForRetry(ctx, item, outcome.Err, logger)
		}
		logger.Warn("retry budget exhausted", slog.Any("error", outcome.Err))
		return c.finishFailure(ctx, item, outcome.Err, logger)
	default:
		return c.finishFailure(ctx, item, outcome.Err, logger)
	}
}

// runExecutor invokes the injected capability. A panic inside the executor is
// folded into a fatal failure so the step and task still get a recorded
// error.
func (c *Coordinator) runExecutor(ctx context.Context, req ExecRequest) (outcome task.ExecutionOutcome) {
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = task.FatalFailure(fmt.Errorf("executor panic: %v", recovered))
		}
	}()

	result, err := c.executor.Execute(ctx, req)
	if err != nil {
		return task.ClassifyError(err)
	}
	return task.Succeeded(result.Outputs, result.Findings)
}

func (c *Coordinator) finishSuccess(ctx context.Context, item WorkItem, outcome task.ExecutionOutcome, logger *slog.Logger) error {
	if len(outcome.Findings) > 0 {
		findings := outcome.Findings
		for i := range findings {
			if findings[i].ID == "" {
				findings[i].ID = uuid.NewString()
			}
		}
		if err := c.store.AppendFindings(ctx, item.TaskID, findings); err != nil {
			return fmt.Errorf("append findings: %w", err)
		}
	}

	finalized, err := c.machine.TransitionStep(ctx, item.TaskID, item.Step.ID, task.StepStatusDone, outcome.Outputs, "")
	if err != nil {
		return fmt.Errorf("mark step done: %w", err)
	}

	if finalized {
		c.notifyCompletion(ctx, item.TaskID, logger)
	}
	logger.Info("step completed")
	return nil
}

func (c *Coordinator) rearmForRetry(ctx context.Context, item WorkItem, execErr error, logger *slog.Logger) error {
	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
	}
	if _, err := c.machine.TransitionStep(ctx, item.TaskID, item.Step.ID, task.StepStatusPending, nil, errMsg); err != nil {
		return fmt.Errorf("re-arm step: %w", err)
	}

	retry := item
	retry.Attempt++
	if err := c.scheduler.EnqueueRetry(ctx, retry); err != nil {
		return fmt.Errorf("enqueue retry: %w", err)
	}

	c.publish(ctx, events.New("hatchery.coordinator", events.TypeStepRetried, map[string]any{
		"task_id": item.TaskID,
		"step_id": item.Step.ID,
		"attempt": retry.Attempt,
	}), logger)

	logger.Info("step re-armed for retry", slog.Any("error", execErr))
	return nil
}

func (c *Coordinator) finishFailure(ctx context.Context, item WorkItem, execErr error, logger *slog.Logger) error {
	errMsg := "step execution failed"
	if execErr != nil {
		errMsg = execErr.Error()
	}

	// Best-effort failure recording: the step and the task both end FAILED
	// with the concrete reason, even when one of the writes races.
	finalized, stepErr := c.machine.TransitionStep(ctx, item.TaskID, item.Step.ID, task.StepStatusFailed, nil, errMsg)
	if stepErr != nil {
		logger.Error("failed to record step failure", slog.Any("error", stepErr))
	}
	if !finalized {
		if _, err := c.machine.Transition(ctx, item.TaskID, task.StatusFailed, errMsg); err != nil {
			var invalid *task.InvalidTransitionError
			if !errors.As(err, &invalid) {
				logger.Error("failed to record task failure", slog.Any("error", err))
			}
		}
	}

	c.publish(ctx, events.New("hatchery.coordinator", events.TypeTaskFailed, map[string]any{
		"task_id": item.TaskID,
		"step_id": item.Step.ID,
		"error":   errMsg,
	}), logger)

	logger.Warn("step failed", slog.Any("error", execErr))
	return nil
}

// ensureExecuting moves a pending or checkpointed task into the executing
// state before its step runs.
func (c *Coordinator) ensureExecuting(ctx context.Context, t *task.Task) error {
	switch t.Status {
	case task.StatusPending, task.StatusCheckpoint:
		if _, err := c.machine.Transition(ctx, t.ID, task.StatusExecuting, "step dispatch"); err != nil {
			return fmt.Errorf("move task to executing: %w", err)
		}
	}
	return nil
}

// loadTask reads through the cache, falling back to the durable store. Cache
// errors degrade to a store read; legality is never decided from this copy
// (the state machine re-reads the store on every transition).
func (c *Coordinator) loadTask(ctx context.Context, taskID string) (*task.Task, error) {
	if c.cache != nil {
		t, err := c.cache.GetTask(ctx, taskID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, taskcache.ErrMiss) {
			c.logger.Warn("cache read failed, falling back to store",
				slog.String("task_id", taskID), slog.Any("error", err))
		}
	}

	t, err := c.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.PutTask(ctx, t); err != nil {
			c.logger.Warn("cache refill failed",
				slog.String("task_id", taskID), slog.Any("error", err))
		}
	}
	return t, nil
}

func (c *Coordinator) notifyCompletion(ctx context.Context, taskID string, logger *slog.Logger) {
	final, err := c.store.Get(ctx, taskID)
	if err != nil {
		logger.Warn("could not load final task state for notification", slog.Any("error", err))
		return
	}

	eventType := events.TypeTaskCompleted
	if final.Status == task.StatusFailed {
		eventType = events.TypeTaskFailed
	}
	c.publish(ctx, events.New("hatchery.coordinator", eventType, map[string]any{
		"task_id": taskID,
		"status":  string(final.Status),
	}), logger)
}

// publish is a best-effort side path. Bus failures are logged and swallowed,
// never allowed to mask a durable outcome.
func (c *Coordinator) publish(ctx context.Context, ev events.Event, logger *slog.Logger) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("event publish failed", slog.String("event_type", ev.Type), slog.Any("error", err))
	}
}

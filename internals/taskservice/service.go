// Package taskservice is the task-level operations surface consumed by the
// daemon's HTTP shell (and any other caller that needs to create, read, list
// or cancel tasks). Writes go to the durable store; the cache is refreshed
// best-effort and consulted only for low-stakes reads.
package taskservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hatchery-io/hatchery/internals/statemachine"
	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/taskcache"
)

type Store interface {
	Create(ctx context.Context, t *task.Task) error
	Get(ctx context.Context, id string) (*task.Task, error)
	ListByUser(ctx context.Context, userID string, status *task.Status, limit int) ([]*task.Task, error)
	ListByStatus(ctx context.Context, status task.Status, limit int) ([]*task.Task, error)
	History(ctx context.Context, id string) ([]*task.Task, error)
	Delete(ctx context.Context, id string) error
}

type Cache interface {
	GetTask(ctx context.Context, id string) (*task.Task, error)
	PutTask(ctx context.Context, t *task.Task) error
	Invalidate(ctx context.Context, id string) error
}

type Machine interface {
	Transition(ctx context.Context, taskID string, target task.Status, reason string) (statemachine.TransitionResult, error)
}

type Service struct {
	store   Store
	cache   Cache
	machine Machine
	logger  *slog.Logger
}

func New(store Store, cache Cache, machine Machine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, machine: machine, logger: logger}
}

// NewTaskInput describes a task creation request after transport validation.
type NewTaskInput struct {
	UserID         string
	OrganizationID string
	Goal           string
	Steps          []task.Step
	ParentTaskID   string
	TreeID         string
	Metadata       map[string]any
}

// Create persists a new pending task with pending steps. Step ids are filled
// in when absent; unknown dependency references are rejected up front.
func (s *Service) Create(ctx context.Context, input NewTaskInput) (*task.Task, error) {
	if input.Goal == "" {
		return nil, &task.ValidationError{Field: "goal", Reason: "required"}
	}

	steps := make([]task.Step, len(input.Steps))
	ids := make(map[string]struct{}, len(input.Steps))
	for i, step := range input.Steps {
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		step.Status = task.StepStatusPending
		steps[i] = step
		ids[step.ID] = struct{}{}
	}
	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if _, ok := ids[dep]; !ok {
				return nil, &task.ValidationError{
					Field:  "steps",
					Reason: "step " + step.ID + " depends on unknown step " + dep,
				}
			}
		}
	}

	t := &task.Task{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		OrganizationID: input.OrganizationID,
		Goal:           input.Goal,
		Status:         task.StatusPending,
		Steps:          steps,
		Findings:       []task.Finding{},
		ParentTaskID:   input.ParentTaskID,
		TreeID:         input.TreeID,
		Metadata:       input.Metadata,
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.refreshCache(ctx, t)
	return t, nil
}

// Get reads through the cache, falling back to the store on miss or error.
func (s *Service) Get(ctx context.Context, id string) (*task.Task, error) {
	if s.cache != nil {
		t, err := s.cache.GetTask(ctx, id)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, taskcache.ErrMiss) {
			s.logger.Warn("cache read failed, falling back to store",
				slog.String("task_id", id), slog.Any("error", err))
		}
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshCache(ctx, t)
	return t, nil
}

// ListByUser lists a user's tasks from the store, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, status *task.Status, limit int) ([]*task.Task, error) {
	return s.store.ListByUser(ctx, userID, status, limit)
}

// ListByStatus lists tasks in a status, most recently updated first.
func (s *Service) ListByStatus(ctx context.Context, status task.Status, limit int) ([]*task.Task, error) {
	return s.store.ListByStatus(ctx, status, limit)
}

// History returns the task's version chain, newest first.
func (s *Service) History(ctx context.Context, id string) ([]*task.Task, error) {
	return s.store.History(ctx, id)
}

// Cancel transitions the task to cancelled through the state machine. A step
// already running finishes naturally; the coordinator will observe the
// cancelled status before starting anything new.
func (s *Service) Cancel(ctx context.Context, id string) (*task.Task, error) {
	if _, err := s.machine.Transition(ctx, id, task.StatusCancelled, "external cancel"); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// Delete removes the task from the store and drops its cached document.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.Warn("cache invalidation after delete failed",
				slog.String("task_id", id), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) refreshCache(ctx context.Context, t *task.Task) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutTask(ctx, t); err != nil {
		s.logger.Warn("cache refresh failed",
			slog.String("task_id", t.ID), slog.Any("error", err))
	}
}

package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hatchery-io/hatchery/internals/events"
	"github.com/hatchery-io/hatchery/internals/task"
)

// HistoryStore keeps the per-task firing ring. Implemented by the task cache;
// losable observability data.
type HistoryStore interface {
	AddTriggerExecution(ctx context.Context, taskID string, exec any, max int) error
	TriggerHistory(ctx context.Context, taskID string, limit int) ([]json.RawMessage, error)
}

const defaultMaxHistory = 50

type Registry struct {
	store   Store
	history HistoryStore
	logger  *slog.Logger
}

func NewRegistry(store Store, history HistoryStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, history: history, logger: logger}
}

// Register stores the binding for a task. Returns false without storing
// anything when the pattern is absent, malformed, or the config is disabled:
// disabled triggers are never matchable.
func (r *Registry) Register(ctx context.Context, cfg Config) (bool, error) {
	if cfg.TaskID == "" {
		return false, &task.ValidationError{Field: "task_id", Reason: "required"}
	}
	if cfg.OrganizationID == "" {
		return false, &task.ValidationError{Field: "organization_id", Reason: "required"}
	}
	if cfg.EventPattern == "" || !cfg.Enabled {
		return false, nil
	}
	if !ValidPattern(cfg.EventPattern) {
		return false, &task.ValidationError{Field: "event_pattern", Reason: "malformed glob pattern"}
	}

	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	if err := r.store.Put(ctx, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// Unregister removes the binding. Removing an absent binding is a no-op
// success so retried unregistrations stay idempotent.
func (r *Registry) Unregister(ctx context.Context, taskID string) (bool, error) {
	_, err := r.store.Get(ctx, taskID)
	if errors.Is(err, task.ErrTriggerNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if err := r.store.Delete(ctx, taskID); err != nil {
		return false, err
	}
	return true, nil
}

// Update merges partial changes into the stored config. Because the stored
// pattern is the only thing matching consults, a pattern change re-keys
// matching atomically; no stale pattern entry can linger.
func (r *Registry) Update(ctx context.Context, taskID string, updates Updates) (bool, error) {
	cfg, err := r.store.Get(ctx, taskID)
	if err != nil {
		return false, err
	}

	if updates.EventPattern != nil {
		if *updates.EventPattern != "" && !ValidPattern(*updates.EventPattern) {
			return false, &task.ValidationError{Field: "event_pattern", Reason: "malformed glob pattern"}
		}
		cfg.EventPattern = *updates.EventPattern
	}
	if updates.SourceFilter != nil {
		cfg.SourceFilter = *updates.SourceFilter
	}
	if updates.Enabled != nil {
		cfg.Enabled = *updates.Enabled
	}
	if updates.UserID != nil {
		cfg.UserID = *updates.UserID
	}

	if err := r.store.Put(ctx, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// FindMatchingTasks answers which tasks should fire for an event. The
// organization is taken from the explicit parameter, falling back to the
// event's metadata; without one the answer is empty, matching never crosses
// tenants. Disabled configs never match, a set source_filter must prefix the
// event source, and a task matching several ways is reported once.
func (r *Registry) FindMatchingTasks(ctx context.Context, ev events.Event, orgID string) ([]string, error) {
	if orgID == "" {
		orgID = ev.OrganizationID()
	}
	if orgID == "" {
		return nil, nil
	}

	configs, err := r.store.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var matched []string
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if !MatchEventType(cfg.EventPattern, ev.Type) {
			continue
		}
		if cfg.SourceFilter != "" && !strings.HasPrefix(ev.Source, cfg.SourceFilter) {
			continue
		}
		if _, dup := seen[cfg.TaskID]; dup {
			continue
		}
		seen[cfg.TaskID] = struct{}{}
		matched = append(matched, cfg.TaskID)
	}
	return matched, nil
}

// RecordExecution appends a firing record to the task's history ring.
// Best-effort: a history failure never blocks dispatch.
func (r *Registry) RecordExecution(ctx context.Context, exec Execution) {
	if r.history == nil {
		return
	}
	if exec.FiredAt.IsZero() {
		exec.FiredAt = time.Now().UTC()
	}
	if err := r.history.AddTriggerExecution(ctx, exec.TaskID, exec, defaultMaxHistory); err != nil {
		r.logger.Warn("trigger history append failed",
			slog.String("task_id", exec.TaskID),
			slog.Any("error", err),
		)
	}
}

// History returns up to limit past firings for a task, newest first.
func (r *Registry) History(ctx context.Context, taskID string, limit int) ([]Execution, error) {
	if r.history == nil {
		return nil, nil
	}
	raw, err := r.history.TriggerHistory(ctx, taskID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Execution, 0, len(raw))
	for _, entry := range raw {
		var exec Execution
		if err := json.Unmarshal(entry, &exec); err != nil {
			continue
		}
		out = append(out, exec)
	}
	return out, nil
}

// Get returns the stored config for a task.
func (r *Registry) Get(ctx context.Context, taskID string) (Config, error) {
	return r.store.Get(ctx, taskID)
}

// List returns every config bound to an organization, in creation order.
func (r *Registry) List(ctx context.Context, orgID string) ([]Config, error) {
	return r.store.ListByOrg(ctx, orgID)
}

// LoadAll is a startup validation pass over every stored config: it surfaces
// malformed patterns in the log before event traffic arrives. There is no
// in-memory mirror to warm.
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	configs, err := r.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, cfg := range configs {
		if cfg.Enabled && !ValidPattern(cfg.EventPattern) {
			r.logger.Warn("stored trigger pattern is malformed, it will never match",
				slog.String("task_id", cfg.TaskID),
				slog.String("pattern", cfg.EventPattern),
			)
		}
	}
	return len(configs), nil
}

// Package taskstore is the Postgres-backed system of record for tasks. Every
// durable mutation increments the task version inside the same transaction;
// the version column is the optimistic concurrency guard the whole execution
// core leans on.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hatchery-io/hatchery/internals/task"
)

const maxHistoryDepth = 100

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Create inserts a new task. Missing timestamps and status default to now /
// pending; the stored version always starts at 1.
func (s *Store) Create(ctx context.Context, t *task.Task) error {
	if t.ID == "" {
		return &task.ValidationError{Field: "id", Reason: "required"}
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	t.Version = 1

	stepsJSON, err := json.Marshal(t.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	findingsJSON, err := json.Marshal(t.Findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO tasks (id, user_id, organization_id, goal, status, steps, findings, parent_task_id, tree_id, metadata, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, t.ID, t.UserID, t.OrganizationID, t.Goal, string(t.Status), stepsJSON, findingsJSON,
		t.ParentTaskID, t.TreeID, marshalOrNil(t.Metadata), t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get loads the authoritative copy of a task.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, selectTask+` WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// Patch describes a partial update. Nil fields are left untouched.
type Patch struct {
	Goal     *string
	Status   *task.Status
	Steps    *[]task.Step
	Findings *[]task.Finding
	Metadata *map[string]any
	TreeID   *string
}

// Update applies a partial update under a row lock, bumping version and
// updated_at in the same transaction as the field changes.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*task.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int64
	err = tx.QueryRow(ctx, `SELECT version FROM tasks WHERE id = $1 FOR UPDATE`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock task %s: %w", id, err)
	}

	setClauses := `version = version + 1, updated_at = $2`
	args := []any{id, time.Now().UTC()}
	idx := 3

	appendSet := func(column string, value any) {
		setClauses += fmt.Sprintf(`, %s = $%d`, column, idx)
		args = append(args, value)
		idx++
	}

	if patch.Goal != nil {
		appendSet("goal", *patch.Goal)
	}
	if patch.Status != nil {
		appendSet("status", string(*patch.Status))
	}
	if patch.Steps != nil {
		data, err := json.Marshal(*patch.Steps)
		if err != nil {
			return nil, fmt.Errorf("encode steps: %w", err)
		}
		appendSet("steps", data)
	}
	if patch.Findings != nil {
		data, err := json.Marshal(*patch.Findings)
		if err != nil {
			return nil, fmt.Errorf("encode findings: %w", err)
		}
		appendSet("findings", data)
	}
	if patch.Metadata != nil {
		appendSet("metadata", marshalOrNil(*patch.Metadata))
	}
	if patch.TreeID != nil {
		appendSet("tree_id", *patch.TreeID)
	}

	row := tx.QueryRow(ctx, `UPDATE tasks SET `+setClauses+` WHERE id = $1 RETURNING `+taskColumns, args...)
	updated, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

// ListByUser returns the user's tasks, newest first, optionally filtered by
// status.
func (s *Store) ListByUser(ctx context.Context, userID string, status *task.Status, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if status != nil {
		rows, err = s.pool.Query(ctx, selectTask+` WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3`,
			userID, string(*status), limit)
	} else {
		rows, err = s.pool.Query(ctx, selectTask+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListByStatus returns tasks in a given status, most recently updated first.
func (s *Store) ListByStatus(ctx context.Context, status task.Status, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectTask+` WHERE status = $1 ORDER BY updated_at DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks by status %s: %w", status, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// History walks the parent_task_id chain from the given task back through its
// prior versions, newest first. The walk is cycle-guarded.
func (s *Store) History(ctx context.Context, id string) ([]*task.Task, error) {
	seen := make(map[string]struct{})
	var chain []*task.Task

	current := id
	for current != "" && len(chain) < maxHistoryDepth {
		if _, dup := seen[current]; dup {
			break
		}
		seen[current] = struct{}{}

		t, err := s.Get(ctx, current)
		if errors.Is(err, task.ErrTaskNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, t)
		current = t.ParentTaskID
	}

	if len(chain) == 0 {
		return nil, task.ErrTaskNotFound
	}
	return chain, nil
}

// AppendFindings atomically concatenates findings onto the task's append-only
// findings document, bumping version and updated_at in the same statement.
// No read-modify-write, so concurrent appends never lose entries.
func (s *Store) AppendFindings(ctx context.Context, id string, findings []task.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	data, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE tasks
SET findings = findings || $2::jsonb, version = version + 1, updated_at = $3
WHERE id = $1`, id, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append findings to %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}

// Delete removes a task and its transition audit rows (cascade).
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}

const taskColumns = `id, user_id, organization_id, goal, status, steps, findings, parent_task_id, tree_id, metadata, version, created_at, updated_at`

const selectTask = `SELECT ` + taskColumns + ` FROM tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var status string
	var stepsJSON, findingsJSON, metadataJSON []byte

	err := row.Scan(&t.ID, &t.UserID, &t.OrganizationID, &t.Goal, &status,
		&stepsJSON, &findingsJSON, &t.ParentTaskID, &t.TreeID, &metadataJSON,
		&t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	parsed, err := task.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	t.Status = parsed

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &t.Steps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
	}
	if len(findingsJSON) > 0 {
		if err := json.Unmarshal(findingsJSON, &t.Findings); err != nil {
			return nil, fmt.Errorf("decode findings: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if t.Steps == nil {
		t.Steps = []task.Step{}
	}
	if t.Findings == nil {
		t.Findings = []task.Finding{}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalOrNil(v map[string]any) []byte {
	if len(v) == 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

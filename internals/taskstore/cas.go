package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hatchery-io/hatchery/internals/task"
)

// StatusSwap is the single compare-and-swap primitive every status transition
// goes through. The write succeeds only when the stored version still equals
// ExpectedVersion; otherwise another writer won the race.
type StatusSwap struct {
	TaskID          string
	ExpectedVersion int64
	NewStatus       task.Status
	// Steps, when non-nil, replaces the steps document in the same write.
	// Used by step-level transitions so the step change and the version bump
	// are one atomic unit.
	Steps []task.Step
	// Findings, when non-nil, replaces the findings document.
	Findings []task.Finding
	Reason   string
}

// CompareAndSwapStatus applies the swap and records a transition audit row in
// one transaction. Returns the updated task. A lost race surfaces as
// *task.ConcurrentModificationError; an absent row as task.ErrTaskNotFound.
func (s *Store) CompareAndSwapStatus(ctx context.Context, swap StatusSwap) (*task.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	setClauses := `status = $3, version = version + 1, updated_at = $4`
	args := []any{swap.TaskID, swap.ExpectedVersion, string(swap.NewStatus), time.Now().UTC()}
	idx := 5

	if swap.Steps != nil {
		data, err := json.Marshal(swap.Steps)
		if err != nil {
			return nil, fmt.Errorf("encode steps: %w", err)
		}
		setClauses += fmt.Sprintf(`, steps = $%d`, idx)
		args = append(args, data)
		idx++
	}
	if swap.Findings != nil {
		data, err := json.Marshal(swap.Findings)
		if err != nil {
			return nil, fmt.Errorf("encode findings: %w", err)
		}
		setClauses += fmt.Sprintf(`, findings = $%d`, idx)
		args = append(args, data)
		idx++
	}

	row := tx.QueryRow(ctx, `
UPDATE tasks SET `+setClauses+`
WHERE id = $1 AND version = $2
RETURNING `+taskColumns, args...)

	updated, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Zero rows: distinguish a missing task from a lost race.
		var exists bool
		if probeErr := tx.QueryRow(ctx, `SELECT true FROM tasks WHERE id = $1`, swap.TaskID).Scan(&exists); probeErr != nil {
			if errors.Is(probeErr, pgx.ErrNoRows) {
				return nil, task.ErrTaskNotFound
			}
			return nil, fmt.Errorf("probe task %s: %w", swap.TaskID, probeErr)
		}
		return nil, &task.ConcurrentModificationError{TaskID: swap.TaskID, ExpectedVersion: swap.ExpectedVersion}
	}
	if err != nil {
		return nil, fmt.Errorf("cas task %s: %w", swap.TaskID, err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO task_transitions (task_id, from_version, to_status, reason, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		swap.TaskID, swap.ExpectedVersion, string(swap.NewStatus), swap.Reason, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cas: %w", err)
	}
	return updated, nil
}

// Transition is one audit row from the task_transitions table.
type Transition struct {
	TaskID      string
	FromVersion int64
	ToStatus    task.Status
	Reason      string
	CreatedAt   time.Time
}

// Transitions returns the audit trail for a task, oldest first.
func (s *Store) Transitions(ctx context.Context, taskID string) ([]Transition, error) {
	rows, err := s.pool.Query(ctx, `
SELECT task_id, from_version, to_status, reason, created_at
FROM task_transitions WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", taskID, err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var status string
		if err := rows.Scan(&tr.TaskID, &tr.FromVersion, &status, &tr.Reason, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.ToStatus = task.Status(status)
		out = append(out, tr)
	}
	return out, rows.Err()
}

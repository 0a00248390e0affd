package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/taskstore"
)

// PendingTask builds a pending two-step task for tests. The second step
// depends on the first.
func PendingTask(t *testing.T) *task.Task {
	t.Helper()
	now := time.Now().UTC()
	first := task.Step{
		ID:        uuid.NewString(),
		Name:      "gather",
		AgentType: "research",
		Status:    task.StepStatusPending,
		Inputs:    map[string]any{"query": "test"},
	}
	second := task.Step{
		ID:           uuid.NewString(),
		Name:         "summarize",
		AgentType:    "writer",
		Status:       task.StepStatusPending,
		Dependencies: []string{first.ID},
	}
	return &task.Task{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		Goal:      "test goal",
		Status:    task.StatusPending,
		Steps:     []task.Step{first, second},
		Findings:  []task.Finding{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PGPool connects to the database named by HATCHERY_TEST_DATABASE_URL, runs
// migrations and truncates task tables. Tests that need postgres are skipped
// when the variable is unset.
func PGPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("HATCHERY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HATCHERY_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	if err := taskstore.Migrate(ctx, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	for _, table := range []string{"task_transitions", "trigger_configs", "tasks"} {
		if _, err := pool.Exec(ctx, "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return pool
}

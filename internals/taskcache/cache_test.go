package taskcache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hatchery-io/hatchery/internals/task"
	"github.com/hatchery-io/hatchery/internals/testutil"
)

func cacheForTest(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("HATCHERY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HATCHERY_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 9})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, nil)
}

func TestKeyLayout(t *testing.T) {
	if got := taskKey("t1"); got != "hatchery:task:t1" {
		t.Fatalf("taskKey = %s", got)
	}
	if got := userIndexKey("u1"); got != "hatchery:tasks:user:u1" {
		t.Fatalf("userIndexKey = %s", got)
	}
	if got := statusIndexKey(task.StatusPending); got != "hatchery:tasks:status:pending" {
		t.Fatalf("statusIndexKey = %s", got)
	}
	if got := treeKey("tree1"); got != "hatchery:task:tree:tree1" {
		t.Fatalf("treeKey = %s", got)
	}
	if got := triggerHistoryKey("t1"); got != "hatchery:trigger:history:t1" {
		t.Fatalf("triggerHistoryKey = %s", got)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	cache := cacheForTest(t)
	ctx := context.Background()

	tk := testutil.PendingTask(t)
	tk.OrganizationID = "acme"
	tk.TreeID = "tree-1"
	if err := cache.PutTask(ctx, tk); err != nil {
		t.Fatalf("PutTask: %v", err)
	}

	got, err := cache.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.ID != tk.ID || got.Status != task.StatusPending || len(got.Steps) != 2 {
		t.Fatalf("got %+v", got)
	}

	treeID, err := cache.TaskIDByTree(ctx, "tree-1")
	if err != nil || treeID != tk.ID {
		t.Fatalf("TaskIDByTree = %q, %v", treeID, err)
	}
}

func TestGetTaskMiss(t *testing.T) {
	cache := cacheForTest(t)
	if _, err := cache.GetTask(context.Background(), "absent"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestCorruptDocumentIsMiss(t *testing.T) {
	cache := cacheForTest(t)
	ctx := context.Background()

	if err := cache.rdb.Set(ctx, taskKey("bad"), "{not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := cache.GetTask(ctx, "bad"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss for corrupt doc, got %v", err)
	}
}

func TestIndexesOrderNewestFirst(t *testing.T) {
	cache := cacheForTest(t)
	ctx := context.Background()

	older := testutil.PendingTask(t)
	older.CreatedAt = time.Now().Add(-time.Hour)
	older.UpdatedAt = older.CreatedAt
	newer := testutil.PendingTask(t)
	newer.UserID = older.UserID

	for _, tk := range []*task.Task{older, newer} {
		if err := cache.PutTask(ctx, tk); err != nil {
			t.Fatalf("PutTask: %v", err)
		}
	}

	ids, err := cache.TasksByUser(ctx, older.UserID, 10)
	if err != nil {
		t.Fatalf("TasksByUser: %v", err)
	}
	if len(ids) != 2 || ids[0] != newer.ID {
		t.Fatalf("ids = %v, newest first expected", ids)
	}
}

func TestInvalidateWithIndexesMovesStatus(t *testing.T) {
	cache := cacheForTest(t)
	ctx := context.Background()

	tk := testutil.PendingTask(t)
	if err := cache.PutTask(ctx, tk); err != nil {
		t.Fatalf("PutTask: %v", err)
	}

	if err := cache.InvalidateWithIndexes(ctx, tk.ID, tk.UserID, task.StatusPending, task.StatusExecuting); err != nil {
		t.Fatalf("InvalidateWithIndexes: %v", err)
	}

	if _, err := cache.GetTask(ctx, tk.ID); !errors.Is(err, ErrMiss) {
		t.Fatalf("document should be gone, got %v", err)
	}

	pending, err := cache.TasksByStatus(ctx, task.StatusPending, 10)
	if err != nil {
		t.Fatalf("TasksByStatus pending: %v", err)
	}
	for _, id := range pending {
		if id == tk.ID {
			t.Fatal("task still indexed under pending")
		}
	}

	executing, err := cache.TasksByStatus(ctx, task.StatusExecuting, 10)
	if err != nil {
		t.Fatalf("TasksByStatus executing: %v", err)
	}
	if len(executing) != 1 || executing[0] != tk.ID {
		t.Fatalf("executing index = %v", executing)
	}
}

func TestTriggerHistoryRingTrims(t *testing.T) {
	cache := cacheForTest(t)
	ctx := context.Background()

	type firing struct {
		EventID string `json:"event_id"`
	}
	for i := 0; i < 5; i++ {
		if err := cache.AddTriggerExecution(ctx, "t1", firing{EventID: string(rune('a' + i))}, 3); err != nil {
			t.Fatalf("AddTriggerExecution: %v", err)
		}
	}

	raw, err := cache.TriggerHistory(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("TriggerHistory: %v", err)
	}
	if len(raw) != 3 {
		t.Fatalf("ring length = %d, want 3", len(raw))
	}

	var newest firing
	if err := json.Unmarshal(raw[0], &newest); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if newest.EventID != "e" {
		t.Fatalf("newest = %q, want e", newest.EventID)
	}
}

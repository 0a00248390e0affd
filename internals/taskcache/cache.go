// Package taskcache is the Redis-backed read-through cache in front of the
// durable task store. It is never authoritative: every entry is derivable
// from the store, dropping the whole keyspace only costs cache-miss reloads,
// and no legality decision may ever be made from a cached value.
package taskcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hatchery-io/hatchery/internals/task"
)

// ErrMiss is returned when the document is not cached. Callers fall back to
// the durable store.
var ErrMiss = errors.New("cache miss")

const defaultTTL = 30 * time.Minute

type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(rdb *redis.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, ttl: defaultTTL, logger: logger}
}

// GetTask loads a cached task document. ErrMiss when absent or expired.
func (c *Cache) GetTask(ctx context.Context, id string) (*task.Task, error) {
	raw, err := c.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", id, err)
	}

	var t task.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		// A corrupt document is treated as a miss; the next write repairs it.
		c.logger.Warn("cache document corrupt, treating as miss",
			slog.String("task_id", id), slog.Any("error", err))
		return nil, ErrMiss
	}
	return &t, nil
}

// PutTask writes the document and refreshes every secondary index in one
// pipeline.
func (c *Cache) PutTask(ctx context.Context, t *task.Task) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(t.ID), doc, c.ttl)
		if t.UserID != "" {
			pipe.ZAdd(ctx, userIndexKey(t.UserID), redis.Z{
				Score:  float64(t.CreatedAt.UnixNano()),
				Member: t.ID,
			})
		}
		if t.OrganizationID != "" {
			pipe.ZAdd(ctx, orgIndexKey(t.OrganizationID), redis.Z{
				Score:  float64(t.CreatedAt.UnixNano()),
				Member: t.ID,
			})
		}
		pipe.ZAdd(ctx, statusIndexKey(t.Status), redis.Z{
			Score:  float64(t.UpdatedAt.UnixNano()),
			Member: t.ID,
		})
		if t.TreeID != "" {
			pipe.Set(ctx, treeKey(t.TreeID), t.ID, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache put %s: %w", t.ID, err)
	}
	return nil
}

// Invalidate deletes the cached document only. Indexes are left for the next
// successful write to repair; that staleness window is tolerated.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, taskKey(id)).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", id, err)
	}
	return nil
}

// InvalidateWithIndexes atomically deletes the document and moves the task id
// between the old and new status sorted sets. This is what the state machine
// calls after a successful durable write.
func (c *Cache) InvalidateWithIndexes(ctx context.Context, id, userID string, oldStatus, newStatus task.Status) error {
	now := float64(time.Now().UnixNano())
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, taskKey(id))
		if oldStatus != newStatus {
			pipe.ZRem(ctx, statusIndexKey(oldStatus), id)
			pipe.ZAdd(ctx, statusIndexKey(newStatus), redis.Z{Score: now, Member: id})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate-with-indexes %s: %w", id, err)
	}
	return nil
}

// TasksByUser returns cached task ids for a user, newest first.
func (c *Cache) TasksByUser(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := c.rdb.ZRevRange(ctx, userIndexKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache user index %s: %w", userID, err)
	}
	return ids, nil
}

// TasksByStatus returns cached task ids in a status, most recent first.
func (c *Cache) TasksByStatus(ctx context.Context, status task.Status, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := c.rdb.ZRevRange(ctx, statusIndexKey(status), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache status index %s: %w", status, err)
	}
	return ids, nil
}

// TaskIDByTree resolves the 1:1 tree linkage. ErrMiss when unknown.
func (c *Cache) TaskIDByTree(ctx context.Context, treeID string) (string, error) {
	id, err := c.rdb.Get(ctx, treeKey(treeID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache tree lookup %s: %w", treeID, err)
	}
	return id, nil
}

// AddTriggerExecution pushes one firing record at the head of the per-task
// history ring and trims it to max. Observability data, best-effort.
func (c *Cache) AddTriggerExecution(ctx context.Context, taskID string, exec any, max int) error {
	if max <= 0 {
		max = 50
	}
	payload, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode trigger execution: %w", err)
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, triggerHistoryKey(taskID), payload)
		pipe.LTrim(ctx, triggerHistoryKey(taskID), 0, int64(max)-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append trigger history %s: %w", taskID, err)
	}
	return nil
}

// TriggerHistory returns up to limit past firings, newest first.
func (c *Cache) TriggerHistory(ctx context.Context, taskID string, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := c.rdb.LRange(ctx, triggerHistoryKey(taskID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read trigger history %s: %w", taskID, err)
	}
	out := make([]json.RawMessage, 0, len(raw))
	for _, entry := range raw {
		out = append(out, json.RawMessage(entry))
	}
	return out, nil
}

// Package sqlite is a durable workq backend. Items survive daemon restarts;
// a polling dequeue loop plus an in-process signal keeps latency low without
// busy-waiting.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hatchery-io/hatchery/internals/workq"
)

var ErrRetriesExceeded = errors.New("retries exceeded")

type Config struct {
	Path         string
	DB           *sql.DB
	QueueName    string
	RetryDelay   func(attempts int) time.Duration
	RetryMax     int
	PollInterval time.Duration
}

type Backend[T ~string] struct {
	db     *sql.DB
	signal chan struct{}
	cfg    Config
}

var queueNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func New[T ~string](cfg Config) (*Backend[T], error) {
	if cfg.DB == nil && cfg.Path == "" {
		return nil, errors.New("sqlite backend requires a db or path")
	}

	db := cfg.DB
	if db == nil {
		opened, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := opened.Ping(); err != nil {
			return nil, err
		}
		db = opened
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "work_queue"
	}
	if !queueNameRe.MatchString(cfg.QueueName) {
		return nil, fmt.Errorf("invalid queue name: %q", cfg.QueueName)
	}

	backend := &Backend[T]{
		db:     db,
		signal: make(chan struct{}, 1),
		cfg:    cfg,
	}
	if err := backend.init(); err != nil {
		return nil, err
	}
	return backend, nil
}

func (b *Backend[T]) init() error {
	if _, err := b.db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return err
	}
	if _, err := b.db.Exec(`PRAGMA synchronous = NORMAL;`); err != nil {
		return err
	}
	_, err := b.db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	payload BLOB,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	available_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%s_dequeue ON %s(status, available_at, created_at ASC);
`, b.cfg.QueueName, b.cfg.QueueName, b.cfg.QueueName))
	return err
}

func (b *Backend[T]) Enqueue(ctx context.Context, item workq.Item[T], delay time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	now := time.Now().UTC().UnixNano()
	availAt := now
	if delay > 0 {
		availAt = time.Now().UTC().Add(delay).UnixNano()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, job_id, payload, status, attempts, available_at, created_at, updated_at)
VALUES (?, ?, ?, 'pending', ?, ?, ?, ?)
`, b.cfg.QueueName)
	if _, err := b.db.ExecContext(ctx, query, item.ID, string(item.JobID), item.Payload, item.Attempt, availAt, now, now); err != nil {
		return err
	}
	b.signalLocked()
	return nil
}

func (b *Backend[T]) Dequeue(ctx context.Context) (workq.Item[T], error) {
	timer := time.NewTimer(b.cfg.PollInterval)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return workq.Item[T]{}, ctx.Err()
		}

		item, ok, err := b.tryDequeue(ctx)
		if err != nil {
			return workq.Item[T]{}, err
		}
		if ok {
			return item, nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.cfg.PollInterval)

		select {
		case <-ctx.Done():
			return workq.Item[T]{}, ctx.Err()
		case <-b.signal:
		case <-timer.C:
		}
	}
}

func (b *Backend[T]) tryDequeue(ctx context.Context) (workq.Item[T], bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return workq.Item[T]{}, false, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().UnixNano()
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, job_id, payload, attempts FROM %s
WHERE status = 'pending' AND available_at <= ?
ORDER BY available_at ASC, created_at ASC
LIMIT 1
`, b.cfg.QueueName), now)

	var item workq.Item[T]
	var jobID string
	if err := row.Scan(&item.ID, &jobID, &item.Payload, &item.Attempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workq.Item[T]{}, false, nil
		}
		return workq.Item[T]{}, false, err
	}
	item.JobID = T(jobID)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'running', updated_at = ? WHERE id = ?
`, b.cfg.QueueName), now, item.ID); err != nil {
		return workq.Item[T]{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return workq.Item[T]{}, false, err
	}
	return item, true, nil
}

func (b *Backend[T]) Ack(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	res, err := b.db.ExecContext(ctx, fmt.Sprintf(`
DELETE FROM %s WHERE id = ? AND status = 'running'
`, b.cfg.QueueName), id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("unknown item id: %v", id)
	}
	return nil
}

// Nack re-arms an in-flight item after the retry delay, marking it failed
// once RetryMax deliveries are spent.
func (b *Backend[T]) Nack(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var attempts int
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
SELECT attempts FROM %s WHERE id = ? AND status = 'running'
`, b.cfg.QueueName), id)
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unknown item id: %v", id)
		}
		return err
	}

	attempts++
	now := time.Now().UTC().UnixNano()

	if b.cfg.RetryMax > 0 && attempts >= b.cfg.RetryMax {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'failed', attempts = ?, updated_at = ? WHERE id = ?
`, b.cfg.QueueName), attempts, now, id); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return ErrRetriesExceeded
	}

	availAt := now
	if b.cfg.RetryDelay != nil {
		if delay := b.cfg.RetryDelay(attempts); delay > 0 {
			availAt = time.Now().UTC().Add(delay).UnixNano()
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'pending', attempts = ?, available_at = ?, updated_at = ? WHERE id = ?
`, b.cfg.QueueName), attempts, availAt, now, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	b.signalLocked()
	return nil
}

// Recover re-arms items left running by a previous process so a restart
// never strands work.
func (b *Backend[T]) Recover(ctx context.Context) (int, error) {
	now := time.Now().UTC().UnixNano()
	res, err := b.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'pending', available_at = ?, updated_at = ? WHERE status = 'running'
`, b.cfg.QueueName), now, now)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows > 0 {
		b.signalLocked()
	}
	return int(rows), nil
}

func (b *Backend[T]) Len(ctx context.Context) (int, error) {
	row := b.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT COUNT(*) FROM %s WHERE status = 'pending'
`, b.cfg.QueueName))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Backend[T]) Close() error {
	if b.cfg.DB != nil {
		return nil
	}
	return b.db.Close()
}

func (b *Backend[T]) signalLocked() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

package triggers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hatchery-io/hatchery/internals/task"
)

// PGStore persists trigger configs in the trigger_configs table, indexed by
// (organization_id, event_pattern) so per-tenant matching never scans other
// tenants.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Put(ctx context.Context, cfg Config) error {
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
INSERT INTO trigger_configs (task_id, organization_id, user_id, event_pattern, source_filter, enabled, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (task_id) DO UPDATE SET
    organization_id = EXCLUDED.organization_id,
    user_id = EXCLUDED.user_id,
    event_pattern = EXCLUDED.event_pattern,
    source_filter = EXCLUDED.source_filter,
    enabled = EXCLUDED.enabled,
    updated_at = EXCLUDED.updated_at
`, cfg.TaskID, cfg.OrganizationID, cfg.UserID, cfg.EventPattern, cfg.SourceFilter, cfg.Enabled, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put trigger config %s: %w", cfg.TaskID, err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, taskID string) (Config, error) {
	row := s.pool.QueryRow(ctx, selectConfig+` WHERE task_id = $1`, taskID)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, task.ErrTriggerNotFound
	}
	if err != nil {
		return Config{}, fmt.Errorf("get trigger config %s: %w", taskID, err)
	}
	return cfg, nil
}

func (s *PGStore) Delete(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM trigger_configs WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete trigger config %s: %w", taskID, err)
	}
	return nil
}

func (s *PGStore) ListByOrg(ctx context.Context, orgID string) ([]Config, error) {
	rows, err := s.pool.Query(ctx, selectConfig+` WHERE organization_id = $1 ORDER BY created_at ASC, task_id ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list trigger configs for org %s: %w", orgID, err)
	}
	defer rows.Close()
	return collectConfigs(rows)
}

func (s *PGStore) ListAll(ctx context.Context) ([]Config, error) {
	rows, err := s.pool.Query(ctx, selectConfig+` ORDER BY created_at ASC, task_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list trigger configs: %w", err)
	}
	defer rows.Close()
	return collectConfigs(rows)
}

const selectConfig = `SELECT task_id, organization_id, user_id, event_pattern, source_filter, enabled, created_at, updated_at FROM trigger_configs`

func scanConfig(row pgx.Row) (Config, error) {
	var cfg Config
	err := row.Scan(&cfg.TaskID, &cfg.OrganizationID, &cfg.UserID, &cfg.EventPattern,
		&cfg.SourceFilter, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func collectConfigs(rows pgx.Rows) ([]Config, error) {
	var out []Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

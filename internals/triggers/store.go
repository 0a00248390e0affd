package triggers

import (
	"context"
	"sort"
	"sync"

	"github.com/hatchery-io/hatchery/internals/task"
)

// Store persists trigger configs keyed by task id. Implementations:
// *PGStore in production, *MemoryStore in tests.
type Store interface {
	Put(ctx context.Context, cfg Config) error
	Get(ctx context.Context, taskID string) (Config, error)
	Delete(ctx context.Context, taskID string) error
	ListByOrg(ctx context.Context, orgID string) ([]Config, error)
	ListAll(ctx context.Context) ([]Config, error)
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]Config)}
}

func (s *MemoryStore) Put(_ context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.TaskID] = cfg
	return nil
}

func (s *MemoryStore) Get(_ context.Context, taskID string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[taskID]
	if !ok {
		return Config{}, task.ErrTriggerNotFound
	}
	return cfg, nil
}

func (s *MemoryStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, taskID)
	return nil
}

func (s *MemoryStore) ListByOrg(_ context.Context, orgID string) ([]Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Config
	for _, cfg := range s.configs {
		if cfg.OrganizationID == orgID {
			out = append(out, cfg)
		}
	}
	sortConfigs(out)
	return out, nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Config, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	sortConfigs(out)
	return out, nil
}

// sortConfigs gives deterministic listing order (registration time, then id).
func sortConfigs(configs []Config) {
	sort.Slice(configs, func(i, j int) bool {
		if configs[i].CreatedAt.Equal(configs[j].CreatedAt) {
			return configs[i].TaskID < configs[j].TaskID
		}
		return configs[i].CreatedAt.Before(configs[j].CreatedAt)
	})
}

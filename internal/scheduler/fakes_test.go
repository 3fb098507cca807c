package scheduler

import (
	"context"
	"sync"
	"time"
)

// memRedis is an in-memory stand-in for the Redis operations the scheduler uses.
type memRedis struct {
	mu      sync.Mutex
	keys    map[string]string
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration
	hsetErr error
}

func newMemRedis() *memRedis {
	return &memRedis{
		keys:   map[string]string{},
		hashes: map[string]map[string]string{},
		ttls:   map[string]time.Duration{},
	}
}

func (m *memRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memRedis) ReleaseIfOwner(_ context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] != owner {
		return false, nil
	}
	delete(m.keys, key)
	return true, nil
}

func (m *memRedis) HSetWithTTL(_ context.Context, key, field string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hsetErr != nil {
		return m.hsetErr
	}
	if m.hashes[key] == nil {
		m.hashes[key] = map[string]string{}
	}
	m.hashes[key][field] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memRedis) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memRedis) LedgerKey(date string) string { return "restock:ledger:" + date }

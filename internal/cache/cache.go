// Package cache stores the last live rate snapshot for a bounded time so that
// restarts and repeated initial loads do not hit the upstream API.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dalfonso89/emi-calculator/internal/models"
)

// Store keeps rate snapshots keyed by anchor currency
type Store interface {
	Get(ctx context.Context, anchor string) (models.RateSnapshot, bool, error)
	Set(ctx context.Context, anchor string, snapshot models.RateSnapshot, ttl time.Duration) error
}

type entry struct {
	snapshot  models.RateSnapshot
	expiresAt time.Time
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, anchor string) (models.RateSnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cached, ok := m.entries[anchor]
	if !ok || !m.now().Before(cached.expiresAt) {
		return models.RateSnapshot{}, false, nil
	}
	snapshot := cached.snapshot
	snapshot.Rates = snapshot.Rates.Clone()
	return snapshot, true, nil
}

func (m *MemoryStore) Set(_ context.Context, anchor string, snapshot models.RateSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	snapshot.Rates = snapshot.Rates.Clone()

	m.mu.Lock()
	m.entries[anchor] = entry{snapshot: snapshot, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

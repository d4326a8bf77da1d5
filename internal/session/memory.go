package session

import (
	"context"
	"sync"
)

// MemoryStore keeps applied coupons in process memory. Suitable for tests
// and single-node deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]AppliedCoupon
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		store: make(map[string]AppliedCoupon),
	}
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*AppliedCoupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ac, ok := m.store[sessionID]; ok {
		return &ac, nil
	}
	return nil, nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID string, coupon AppliedCoupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[sessionID] = coupon
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, sessionID)
	return nil
}

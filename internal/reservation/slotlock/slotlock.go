// Package slotlock guards a reservation slot while a booking is being
// written. The repository's uniqueness check remains the defense of record;
// the hold keeps concurrent replicas from racing the same slot insert.
package slotlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablebook/internal/reservation/domain"
)

// SlotKey identifies one bookable (store, date, time) slot.
type SlotKey struct {
	StoreID uuid.UUID
	Date    domain.Date
	Time    domain.ClockTime
}

func (k SlotKey) String() string {
	return k.StoreID.String() + ":" + k.Date.String() + ":" + k.Time.String()
}

// HoldStore acquires short-lived exclusive holds on slots. The TTL bounds how
// long an abandoned hold can block a slot.
type HoldStore interface {
	TryHold(ctx context.Context, key SlotKey, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key SlotKey) error
}

// MemoryHoldStore is a single-process HoldStore for tests and local demos.
type MemoryHoldStore struct {
	mu    sync.Mutex
	holds map[string]time.Time
}

// NewMemoryHoldStore constructs an empty hold store.
func NewMemoryHoldStore() *MemoryHoldStore {
	return &MemoryHoldStore{holds: make(map[string]time.Time)}
}

// TryHold acquires the slot unless a live hold exists.
func (m *MemoryHoldStore) TryHold(_ context.Context, key SlotKey, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if expiry, ok := m.holds[key.String()]; ok && expiry.After(now) {
		return false, nil
	}
	m.holds[key.String()] = now.Add(ttl)
	return true, nil
}

// Release drops the hold.
func (m *MemoryHoldStore) Release(_ context.Context, key SlotKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holds, key.String())
	return nil
}

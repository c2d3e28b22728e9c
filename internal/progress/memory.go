package progress

import (
	"context"
	"sync"

	"github.com/n1dhiparate/admit-assist/internal/onboarding"
)

// MemoryStore keeps statuses in process memory. Nothing survives a
// restart.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]onboarding.Status
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{statuses: make(map[string]onboarding.Status)}
}

// Load returns the stored status or [onboarding.ErrNotFound].
func (m *MemoryStore) Load(_ context.Context, studentID string) (onboarding.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.statuses[studentID]
	if !ok {
		return nil, onboarding.ErrNotFound
	}
	return s.Clone(), nil
}

// Save replaces the stored status.
func (m *MemoryStore) Save(_ context.Context, studentID string, status onboarding.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statuses[studentID] = status.Clone()
	return nil
}

// List returns a copy of every stored status.
func (m *MemoryStore) List(context.Context) (map[string]onboarding.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]onboarding.Status, len(m.statuses))
	for id, s := range m.statuses {
		out[id] = s.Clone()
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

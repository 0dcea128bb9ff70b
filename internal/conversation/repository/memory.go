package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
)

type memoryEntry struct {
	rec     *domain.Record
	version int64
}

// Memory is an in-process store with the same version semantics as Postgres.
// Records are cloned on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[uuid.UUID]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.rec.Clone(), nil
}

func (m *Memory) LoadForUpdate(_ context.Context, id uuid.UUID) (*domain.Record, LockToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, LockToken{BookingID: id}, ErrNotFound
	}
	return e.rec.Clone(), LockToken{BookingID: id, Version: e.version}, nil
}

func (m *Memory) Save(_ context.Context, rec *domain.Record, token LockToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, exists := m.entries[rec.ID]
	switch {
	case token.IsNew() && exists:
		return ErrStaleLock
	case !token.IsNew() && (!exists || e.version != token.Version):
		return ErrStaleLock
	}
	m.entries[rec.ID] = memoryEntry{rec: rec.Clone(), version: token.Version + 1}
	return nil
}

func (m *Memory) ListByThreadState(_ context.Context, state domain.ThreadState, limit int) ([]Summary, error) {
	if limit < 1 {
		limit = 50
	}
	m.mu.RLock()
	out := make([]Summary, 0)
	for id, e := range m.entries {
		if e.rec.ThreadState != state {
			continue
		}
		out = append(out, Summary{
			ID:          id,
			CurrentStep: e.rec.CurrentStep,
			ThreadState: e.rec.ThreadState,
			Version:     e.version,
			UpdatedAt:   e.rec.UpdatedAt,
		})
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Summary) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

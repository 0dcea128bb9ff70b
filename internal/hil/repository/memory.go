// Package repository stores review tasks for the hil queue.
package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"venue_booking_backend/internal/hil"
)

// Memory is an in-process task store.
type Memory struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]hil.Task
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[uuid.UUID]hil.Task)}
}

func (m *Memory) InsertPending(_ context.Context, task hil.Task) (hil.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tasks {
		if existing.Status == hil.StatusPending && existing.Signature == task.Signature {
			return copyTask(existing), false, nil
		}
	}
	m.tasks[task.ID] = copyTask(task)
	return copyTask(task), true, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (hil.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return hil.Task{}, hil.ErrTaskNotFound
	}
	return copyTask(t), nil
}

func (m *Memory) ListPending(_ context.Context, bookingID *uuid.UUID) ([]hil.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]hil.Task, 0)
	for _, t := range m.tasks {
		if t.Status != hil.StatusPending {
			continue
		}
		if bookingID != nil && t.BookingID != *bookingID {
			continue
		}
		out = append(out, copyTask(t))
	}
	slices.SortFunc(out, func(a, b hil.Task) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (m *Memory) Decide(_ context.Context, id uuid.UUID, d hil.Decision) (hil.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return hil.Task{}, hil.ErrTaskNotFound
	}
	if t.Status != hil.StatusPending {
		return hil.Task{}, &hil.DecisionConflict{TaskID: id, Status: t.Status, DecidedAt: t.DecidedAt}
	}
	at := d.At
	t.Status = d.Status
	t.EditedText = d.EditedText
	t.Notes = d.Notes
	t.Reviewer = d.Reviewer
	t.DecidedAt = &at
	m.tasks[id] = copyTask(t)
	return copyTask(t), nil
}

func (m *Memory) Reopen(_ context.Context, id uuid.UUID) (hil.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return hil.Task{}, hil.ErrTaskNotFound
	}
	if t.Status == hil.StatusPending {
		return copyTask(t), nil
	}
	for _, other := range m.tasks {
		if other.Status == hil.StatusPending && other.Signature == t.Signature {
			return hil.Task{}, fmt.Errorf("task %s: a pending task with the same draft exists", id)
		}
	}
	t.Status = hil.StatusPending
	t.EditedText = nil
	t.Notes = ""
	t.Reviewer = ""
	t.DecidedAt = nil
	m.tasks[id] = copyTask(t)
	return copyTask(t), nil
}

func copyTask(t hil.Task) hil.Task {
	t.Summary = maps.Clone(t.Summary)
	if t.EditedText != nil {
		s := *t.EditedText
		t.EditedText = &s
	}
	if t.DecidedAt != nil {
		at := *t.DecidedAt
		t.DecidedAt = &at
	}
	return t
}

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glimmerhq/glimpse/internal/task"
)

// Memory is an in-memory Repository used by tests and local development.
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
	order []string
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*task.Task)}
}

func (m *Memory) TasksInRange(_ context.Context, userID string, start, end time.Time) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*task.Task
	for _, id := range m.order {
		t := m.tasks[id]
		if t.UserID != userID || t.DueDate == nil {
			continue
		}
		if t.DueDate.Before(start) || t.DueDate.After(end) {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out, nil
}

func (m *Memory) AllTasks(_ context.Context) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*task.Task, 0, len(m.order))
	for _, id := range m.order {
		clone := *m.tasks[id]
		out = append(out, &clone)
	}
	return out, nil
}

func (m *Memory) Create(_ context.Context, t *task.Task) (*task.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	created := *t
	created.ID = uuid.NewString()
	created.SetDefaults()

	m.tasks[created.ID] = &created
	m.order = append(m.order, created.ID)

	clone := created
	return &clone, nil
}

func (m *Memory) Update(_ context.Context, t *task.Task) (*task.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tasks[t.ID]
	if !ok || existing.UserID != t.UserID {
		return nil, ErrNotFound
	}

	updated := *t
	updated.CreatedAt = existing.CreatedAt
	updated.UpdateTimestamp()
	m.tasks[t.ID] = &updated

	clone := updated
	return &clone, nil
}

func (m *Memory) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tasks[id]
	if !ok || existing.UserID != userID {
		return ErrNotFound
	}

	delete(m.tasks, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) TaskByID(_ context.Context, id, userID string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing, ok := m.tasks[id]
	if !ok || existing.UserID != userID {
		return nil, ErrNotFound
	}

	clone := *existing
	return &clone, nil
}

func (m *Memory) DueBetween(_ context.Context, start, end time.Time) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*task.Task
	for _, id := range m.order {
		t := m.tasks[id]
		if t.DueDate == nil || t.Completed {
			continue
		}
		if !t.DueDate.After(start) || t.DueDate.After(end) {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out, nil
}

package memory

import (
	"context"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// Store implements ports.TaskStore in memory.
// Tasks are listed in the order they were first saved. Safe for concurrent use.
type Store struct {
	data  map[string]domain.Task
	order []string
	mu    sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.Task),
	}
}

// Save persists a copy of the task.
func (s *Store) Save(ctx context.Context, task domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[task.ID]; !exists {
		s.order = append(s.order, task.ID)
	}
	s.data[task.ID] = task.Clone()
	return nil
}

// Load returns a copy of the task so callers cannot mutate the store.
func (s *Store) Load(ctx context.Context, taskID string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.data[taskID]
	if !ok {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Delete removes the task.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[taskID]; !ok {
		return nil
	}
	delete(s.data, taskID)
	for i, id := range s.order {
		if id == taskID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns task ids in creation order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids, nil
}

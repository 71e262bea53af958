package memory

import (
	"context"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// LogStore implements ports.LogStore as an unbounded, append-only slice.
type LogStore struct {
	mu   sync.RWMutex
	logs []domain.InvocationLog
}

// NewLogStore creates an empty log store.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Append records the entry.
func (s *LogStore) Append(ctx context.Context, entry domain.InvocationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, cloneLog(entry))
	return nil
}

// List returns every entry in append order.
func (s *LogStore) List(ctx context.Context) ([]domain.InvocationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InvocationLog, len(s.logs))
	for i, l := range s.logs {
		out[i] = cloneLog(l)
	}
	return out, nil
}

// ListByTask returns the entries for one task in append order.
func (s *LogStore) ListByTask(ctx context.Context, taskID string) ([]domain.InvocationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.InvocationLog
	for _, l := range s.logs {
		if l.TaskID == taskID {
			out = append(out, cloneLog(l))
		}
	}
	return out, nil
}

func cloneLog(l domain.InvocationLog) domain.InvocationLog {
	l.Event = domain.NewEvent(l.Event.Key, l.Event.Payload)
	if l.Result != nil {
		res := *l.Result
		if res.NewState != nil {
			s := res.NewState.Clone()
			res.NewState = &s
		}
		res.Data = domain.NewState("", res.Data).Data
		l.Result = &res
	}
	return l
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/conductor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// LogStore implements ports.LogStore with Redis lists.
// Each entry is pushed to a global list and to its task's list in one transaction.
type LogStore struct {
	client *backend.Client
	prefix string
}

// NewLogStore creates a log store on an existing client. WithTTL is ignored.
func NewLogStore(client *backend.Client, opts ...Option) *LogStore {
	o := buildOptions(opts)
	return &LogStore{client: client, prefix: o.prefix}
}

func (s *LogStore) allKey() string {
	return s.prefix + "logs"
}

func (s *LogStore) taskKey(taskID string) string {
	return s.prefix + "logs:" + taskID
}

// Append records the entry.
func (s *LogStore) Append(ctx context.Context, entry domain.InvocationLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.allKey(), data)
	pipe.RPush(ctx, s.taskKey(entry.TaskID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// List returns every entry in append order.
func (s *LogStore) List(ctx context.Context) ([]domain.InvocationLog, error) {
	return s.read(ctx, s.allKey())
}

// ListByTask returns the entries of one task in append order.
func (s *LogStore) ListByTask(ctx context.Context, taskID string) ([]domain.InvocationLog, error) {
	return s.read(ctx, s.taskKey(taskID))
}

func (s *LogStore) read(ctx context.Context, key string) ([]domain.InvocationLog, error) {
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	out := make([]domain.InvocationLog, 0, len(raw))
	for _, item := range raw {
		var entry domain.InvocationLog
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

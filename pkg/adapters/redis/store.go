package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "conductor:"

// Store implements ports.TaskStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Redis adapters.
type Option func(*options)

type options struct {
	prefix string
	ttl    time.Duration
}

// WithTTL sets the expiration for tasks. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

func buildOptions(opts []Option) options {
	o := options{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient creates a go-redis client for the given address.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// New creates a Redis task store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(NewClient(address, password, db), opts...)
}

// NewFromClient creates a Redis task store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{
		client: client,
		prefix: o.prefix,
		ttl:    o.ttl,
	}
}

func (s *Store) key(taskID string) string {
	return s.prefix + "task:" + taskID
}

func (s *Store) indexKey() string {
	return s.prefix + "tasks"
}

// Save persists the task. The index keeps the score of the first save.
func (s *Store) Save(ctx context.Context, task domain.Task) error {
	if task.ID == "" {
		return errors.New("task id cannot be empty")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	created := task.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(task.ID), data, s.ttl)
	pipe.ZAddNX(ctx, s.indexKey(), backend.Z{
		Score:  float64(created.UnixMicro()),
		Member: task.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the task.
func (s *Store) Load(ctx context.Context, taskID string) (domain.Task, error) {
	val, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		return domain.Task{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(val, &task); err != nil {
		return domain.Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return task, nil
}

// Delete removes the task and its index entry.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(taskID))
	pipe.ZRem(ctx, s.indexKey(), taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns task ids in creation order.
// Index entries whose task expired are pruned on the way.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if s.ttl == 0 || len(ids) == 0 {
		return ids, nil
	}

	pipe := s.client.Pipeline()
	checks := make([]*backend.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = pipe.Exists(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check task expiry: %w", err)
	}

	live := ids[:0]
	var expired []any
	for i, id := range ids {
		if checks[i].Val() == 1 {
			live = append(live, id)
		} else {
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired tasks: %w", err)
		}
	}
	return live, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

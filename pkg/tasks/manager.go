package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed task lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager guards task records with per-task locks.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.TaskStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL requested from the distributed locker.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given store.
func NewManager(store ports.TaskStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(taskID) after unlocking.
func (m *Manager) acquire(taskID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[taskID]
	if !exists {
		entry = &lockEntry{}
		m.locks[taskID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry once unused.
func (m *Manager) release(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[taskID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, taskID)
	}
}

// WithLock runs fn while holding the lock for taskID.
func (m *Manager) WithLock(ctx context.Context, taskID string, fn func(context.Context) error) error {
	entry := m.acquire(taskID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(taskID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, taskID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The caller's context may already be done; release on a fresh one.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"task_id", taskID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Create stores a new task. It fails if a task with the same id exists.
func (m *Manager) Create(ctx context.Context, task domain.Task) error {
	return m.WithLock(ctx, task.ID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, task.ID)
		if err == nil {
			return fmt.Errorf("task '%s' already exists", task.ID)
		}
		if !errors.Is(err, domain.ErrTaskNotFound) {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		return m.store.Save(ctx, task)
	})
}

// Delete removes the task from the store.
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	return m.WithLock(ctx, taskID, func(ctx context.Context) error {
		return m.store.Delete(ctx, taskID)
	})
}

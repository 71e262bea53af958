package ports

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
)

// TaskStore defines the interface for persisting tasks.
// This allows for durable execution, enabling "Stop & Resume" of long-lived tasks.
type TaskStore interface {
	// Save persists the task under task.ID, replacing any previous version.
	Save(ctx context.Context, task domain.Task) error

	// Load retrieves the task for a given ID.
	// Returns domain.ErrTaskNotFound if the task does not exist.
	Load(ctx context.Context, taskID string) (domain.Task, error)

	// Delete removes the task. Deleting an unknown task is not an error.
	Delete(ctx context.Context, taskID string) error

	// List returns the IDs of all stored tasks.
	List(ctx context.Context) ([]string, error)
}

// LogStore defines the interface for the invocation audit trail.
// Implementations are append-only.
type LogStore interface {
	// Append adds an entry at the end of the trail.
	Append(ctx context.Context, entry domain.InvocationLog) error

	// List returns every entry in append order.
	List(ctx context.Context) ([]domain.InvocationLog, error)

	// ListByTask returns the entries for one task in append order.
	ListByTask(ctx context.Context, taskID string) ([]domain.InvocationLog, error)
}

package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/conductor/pkg/domain"
)

// LoggingHooks returns hooks that log every lifecycle event to logger.
// Failed dispatches are logged at Warn, everything else at Info.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskCreated: func(ctx context.Context, e *domain.TaskEvent) {
			logger.InfoContext(ctx, "task_created",
				"task_id", e.TaskID,
				"workflow", e.WorkflowKey,
				"state", e.StateKey,
			)
		},
		OnEventHandled: func(ctx context.Context, e *domain.DispatchEvent) {
			attrs := []any{
				"task_id", e.TaskID,
				"workflow", e.WorkflowKey,
				"event", e.EventKey,
				"action", e.ActionKey,
				"cost", e.Cost,
				"duration", e.Duration,
			}
			if e.Success {
				logger.InfoContext(ctx, "event_handled", attrs...)
				return
			}
			logger.WarnContext(ctx, "event_failed", append(attrs, "code", e.Code)...)
		},
		OnStateCommit: func(ctx context.Context, e *domain.CommitEvent) {
			attrs := []any{
				"task_id", e.TaskID,
				"workflow", e.WorkflowKey,
				"from", e.FromState,
				"to", e.ToState,
			}
			if e.Diff != nil {
				attrs = append(attrs, "changed_keys", len(e.Diff.Data))
			}
			logger.InfoContext(ctx, "state_commit", attrs...)
		},
	}
}

// Combine returns hooks that call every non-nil hook in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		if h.OnTaskCreated != nil {
			out.OnTaskCreated = chain(out.OnTaskCreated, h.OnTaskCreated)
		}
		if h.OnEventHandled != nil {
			out.OnEventHandled = chain(out.OnEventHandled, h.OnEventHandled)
		}
		if h.OnStateCommit != nil {
			out.OnStateCommit = chain(out.OnStateCommit, h.OnStateCommit)
		}
	}
	return out
}

func chain[E any](first, next func(context.Context, E)) func(context.Context, E) {
	if first == nil {
		return next
	}
	return func(ctx context.Context, e E) {
		first(ctx, e)
		next(ctx, e)
	}
}

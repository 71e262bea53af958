package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/tasks"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/google/uuid"
)

// PersistStatus tells a persist hook what happened to the task.
type PersistStatus string

const (
	StatusTaskCreated    PersistStatus = "task_created"
	StatusStateCommitted PersistStatus = "state_committed"
	StatusUnchanged      PersistStatus = "unchanged"
)

// PersistHook is called after every operation that touched a task, with the
// task as stored and its invocation logs.
type PersistHook func(ctx context.Context, status PersistStatus, task domain.Task, logs []domain.InvocationLog)

// Orchestrator owns workflow definitions and live tasks.
// HandleEvent is the only event delivery entry point.
type Orchestrator struct {
	mu        sync.RWMutex
	workflows []*workflow.Workflow
	byKey     map[string]*workflow.Workflow

	store     ports.TaskStore
	logs      ports.LogStore
	locker    ports.DistributedLocker
	lockTTL   time.Duration
	tasks     *tasks.Manager
	messenger ports.Messenger
	hooks     domain.LifecycleHooks
	persist   PersistHook
	newID     func() string
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the task store. Defaults to an in-memory store.
func WithStore(store ports.TaskStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithLogStore sets the invocation log store. Defaults to an unbounded in-memory log.
func WithLogStore(logs ports.LogStore) Option {
	return func(o *Orchestrator) {
		o.logs = logs
	}
}

// WithLocker adds a distributed lock around each task's event handling.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(o *Orchestrator) {
		o.locker = locker
	}
}

// WithLockTTL sets the TTL requested from the distributed locker.
func WithLockTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.lockTTL = ttl
	}
}

// WithMessenger sets the messenger handed to every action invocation.
func WithMessenger(m ports.Messenger) Option {
	return func(o *Orchestrator) {
		o.messenger = m
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithPersistHook registers a callback for external durability.
func WithPersistHook(hook PersistHook) Option {
	return func(o *Orchestrator) {
		o.persist = hook
	}
}

// WithIDGenerator replaces the default UUID task id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = fn
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator. Without options it keeps everything in memory.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		byKey:  make(map[string]*workflow.Workflow),
		newID:  uuid.NewString,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = memory.NewStore()
	}
	if o.logs == nil {
		o.logs = memory.NewLogStore()
	}

	managerOpts := []tasks.Option{tasks.WithLogger(o.logger), tasks.WithLockTTL(o.lockTTL)}
	if o.locker != nil {
		managerOpts = append(managerOpts, tasks.WithLocker(o.locker))
	}
	o.tasks = tasks.NewManager(o.store, managerOpts...)
	return o
}

// RegisterWorkflow adds a workflow definition.
// Keys are unique: a second workflow with the same key is rejected.
func (o *Orchestrator) RegisterWorkflow(wf *workflow.Workflow) error {
	if wf == nil {
		return errors.New("workflow is nil")
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.byKey[wf.Key()]; exists {
		return fmt.Errorf("%w: '%s'", domain.ErrWorkflowKeyConflict, wf.Key())
	}
	o.workflows = append(o.workflows, wf)
	o.byKey[wf.Key()] = wf
	return nil
}

// Workflow returns the workflow registered under key.
func (o *Orchestrator) Workflow(key string) (*workflow.Workflow, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	wf, ok := o.byKey[key]
	return wf, ok
}

// Workflows returns the registered workflows in registration order.
func (o *Orchestrator) Workflows() []*workflow.Workflow {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*workflow.Workflow, len(o.workflows))
	copy(out, o.workflows)
	return out
}

// Messenger returns the messenger handed to actions, which may be nil.
func (o *Orchestrator) Messenger() ports.Messenger {
	return o.messenger
}

// InitTask creates a task in the workflow's initial state carrying data.
func (o *Orchestrator) InitTask(ctx context.Context, workflowKey string, data map[string]any) (domain.Task, error) {
	wf, ok := o.Workflow(workflowKey)
	if !ok {
		return domain.Task{}, fmt.Errorf("%w: '%s'", domain.ErrWorkflowNotFound, workflowKey)
	}

	now := o.now()
	task := domain.Task{
		ID:          o.newID(),
		WorkflowKey: wf.Key(),
		State:       domain.NewState(wf.InitialStateKey(), data),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := o.tasks.Create(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("failed to store task: %w", err)
	}

	o.logger.InfoContext(ctx, "task created",
		"task_id", task.ID,
		"workflow", task.WorkflowKey,
		"state", task.State.Key,
	)
	if o.hooks.OnTaskCreated != nil {
		o.hooks.OnTaskCreated(ctx, &domain.TaskEvent{
			EventBase: domain.EventBase{
				Timestamp:   now,
				Type:        domain.EventTaskCreated,
				TaskID:      task.ID,
				WorkflowKey: task.WorkflowKey,
			},
			StateKey: task.State.Key,
		})
	}
	if o.persist != nil {
		o.persist(ctx, StatusTaskCreated, task.Clone(), nil)
	}
	return task.Clone(), nil
}

// HandleEvent delivers event to the task and always returns the log entry it appended.
//
// The task's committed state changes only when the selected action succeeds
// and the new state is stored. Calls for the same task are serialised; calls
// for different tasks run concurrently even when they share a workflow.
func (o *Orchestrator) HandleEvent(ctx context.Context, taskID string, event domain.Event) domain.InvocationLog {
	event = domain.NewEvent(event.Key, event.Payload)
	var entry domain.InvocationLog

	err := o.tasks.WithLock(ctx, taskID, func(ctx context.Context) error {
		entry = o.handleLocked(ctx, taskID, event)
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "event not delivered", "task_id", taskID, "event", event.Key, "err", err)
		entry = o.record(ctx, taskID, event, nil, err.Error())
	}
	return entry
}

func (o *Orchestrator) handleLocked(ctx context.Context, taskID string, event domain.Event) domain.InvocationLog {
	task, err := o.store.Load(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			res := domain.Failed(domain.CodeTaskNotFound, fmt.Sprintf("task '%s' not found", taskID))
			o.notifyHandled(ctx, taskID, "", event, res, 0)
			return o.record(ctx, taskID, event, &res, res.Message)
		}
		o.logger.ErrorContext(ctx, "failed to load task", "task_id", taskID, "err", err)
		return o.record(ctx, taskID, event, nil, fmt.Sprintf("failed to load task: %v", err))
	}

	wf, ok := o.Workflow(task.WorkflowKey)
	if !ok {
		res := domain.Failed(domain.CodeWorkflowNotFound, fmt.Sprintf("workflow '%s' not found", task.WorkflowKey))
		o.notifyHandled(ctx, taskID, task.WorkflowKey, event, res, 0)
		return o.record(ctx, taskID, event, &res, res.Message)
	}

	out := wf.Dispatch(ctx, &task.State, event, o.messenger)
	res := out.Result

	status := StatusUnchanged
	if res.Success && res.NewState != nil {
		from := task.State
		task.State = *out.State
		task.UpdatedAt = o.now()

		if err := o.store.Save(ctx, task); err != nil {
			o.logger.ErrorContext(ctx, "failed to commit state", "task_id", taskID, "err", err)
			res.Success = false
			res.Code = domain.CodeCommitFailed
			res.Message = fmt.Sprintf("failed to commit state '%s': %v", task.State.Key, err)
			task.State = from
		} else {
			status = StatusStateCommitted
			o.logger.InfoContext(ctx, "state committed",
				"task_id", taskID,
				"workflow", task.WorkflowKey,
				"event", event.Key,
				"action", res.ActionKey,
				"from", from.Key,
				"to", task.State.Key,
			)
			if o.hooks.OnStateCommit != nil {
				to := task.State
				o.hooks.OnStateCommit(ctx, &domain.CommitEvent{
					EventBase: domain.EventBase{
						Timestamp:   task.UpdatedAt,
						Type:        domain.EventStateCommit,
						TaskID:      taskID,
						WorkflowKey: task.WorkflowKey,
					},
					FromState: from.Key,
					ToState:   to.Key,
					Diff:      domain.Diff(&from, &to),
				})
			}
		}
	} else if !res.Success {
		o.logger.DebugContext(ctx, "event not applied",
			"task_id", taskID,
			"event", event.Key,
			"code", res.Code,
			"reason", res.Message,
		)
	}

	o.notifyHandled(ctx, taskID, task.WorkflowKey, event, res, out.Duration)

	var message string
	if !res.Success {
		message = res.Message
	}
	entry := o.record(ctx, taskID, event, &res, message)

	if o.persist != nil {
		logs, err := o.logs.ListByTask(ctx, taskID)
		if err != nil {
			o.logger.WarnContext(ctx, "failed to list task logs for persist hook", "task_id", taskID, "err", err)
		}
		o.persist(ctx, status, task.Clone(), logs)
	}
	return entry
}

// record builds the log entry and appends it. A store failure is logged, not returned.
func (o *Orchestrator) record(ctx context.Context, taskID string, event domain.Event, res *domain.ActionResult, message string) domain.InvocationLog {
	entry := domain.InvocationLog{
		Timestamp: o.now(),
		TaskID:    taskID,
		Event:     event,
		Result:    res,
		Message:   message,
	}
	if res != nil {
		entry.Success = res.ActionKey != "" && res.Code != domain.CodeCommitFailed
	}
	if err := o.logs.Append(ctx, entry); err != nil {
		o.logger.ErrorContext(ctx, "failed to append invocation log", "task_id", taskID, "err", err)
	}
	return entry
}

func (o *Orchestrator) notifyHandled(ctx context.Context, taskID, workflowKey string, event domain.Event, res domain.ActionResult, d time.Duration) {
	if o.hooks.OnEventHandled == nil {
		return
	}
	o.hooks.OnEventHandled(ctx, &domain.DispatchEvent{
		EventBase: domain.EventBase{
			Timestamp:   o.now(),
			Type:        domain.EventHandled,
			TaskID:      taskID,
			WorkflowKey: workflowKey,
		},
		EventKey:  event.Key,
		ActionKey: res.ActionKey,
		Success:   res.Success,
		Code:      res.Code,
		Cost:      res.Cost,
		Duration:  d,
	})
}

// Task returns a copy of the task's committed record.
func (o *Orchestrator) Task(ctx context.Context, taskID string) (domain.Task, error) {
	return o.store.Load(ctx, taskID)
}

// Tasks returns every task in store order.
func (o *Orchestrator) Tasks(ctx context.Context) ([]domain.Task, error) {
	ids, err := o.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	out := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		task, err := o.store.Load(ctx, id)
		if errors.Is(err, domain.ErrTaskNotFound) {
			// Deleted or expired between List and Load.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load task '%s': %w", id, err)
		}
		out = append(out, task)
	}
	return out, nil
}

// DeleteTask removes a task record. Its invocation logs are kept.
func (o *Orchestrator) DeleteTask(ctx context.Context, taskID string) error {
	return o.tasks.Delete(ctx, taskID)
}

// Logs returns every invocation log in append order.
func (o *Orchestrator) Logs(ctx context.Context) ([]domain.InvocationLog, error) {
	return o.logs.List(ctx)
}

// TaskLogs returns the invocation logs of one task in append order.
func (o *Orchestrator) TaskLogs(ctx context.Context, taskID string) ([]domain.InvocationLog, error) {
	return o.logs.ListByTask(ctx, taskID)
}

// FollowUp derives the event an action asked the caller to deliver next.
// It never dispatches the event; cascading stays under the caller's control.
func FollowUp(entry domain.InvocationLog) (domain.Event, bool) {
	if entry.Result == nil || !entry.Result.Success {
		return domain.Event{}, false
	}
	return entry.Result.FollowUp()
}

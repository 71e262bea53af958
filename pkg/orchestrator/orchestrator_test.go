package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/orchestrator"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func procurement(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf := workflow.New("procurement", "rfq_uploaded")
	require.NoError(t, wf.AddTrigger("rfq_uploaded_event",
		workflow.MustAction(workflow.ActionSpec{
			Key:     "process_rfq",
			From:    "rfq_uploaded",
			Cost:    1.5,
			Perform: workflow.TransitionTo("processing", map[string]any{"rfq_id": "12345"}),
		}),
		nil,
	))
	require.NoError(t, wf.AddTrigger("rfq_processed_event",
		workflow.MustAction(workflow.ActionSpec{
			Key:  "request_roles",
			From: "processing",
			To:   "awaiting_role_assignment",
		}),
		nil,
	))
	return wf
}

func newOrchestrator(t *testing.T, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	t.Helper()
	o := orchestrator.New(opts...)
	require.NoError(t, o.RegisterWorkflow(procurement(t)))
	return o
}

func TestOrchestrator_InitTask(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	o := newOrchestrator(t,
		orchestrator.WithIDGenerator(func() string { return "task-1" }),
		orchestrator.WithClock(func() time.Time { return fixed }),
	)
	ctx := context.Background()

	task, err := o.InitTask(ctx, "procurement", map[string]any{"fileUrl": "https://x/rfq.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, "procurement", task.WorkflowKey)
	assert.Equal(t, "rfq_uploaded", task.State.Key)
	assert.Equal(t, "https://x/rfq.pdf", task.State.Data["fileUrl"])
	assert.Equal(t, fixed, task.CreatedAt)

	// The returned task is a copy.
	task.State.Data["fileUrl"] = "tampered"
	stored, err := o.Task(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "https://x/rfq.pdf", stored.State.Data["fileUrl"])

	_, err = o.InitTask(ctx, "unknown", nil)
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func TestOrchestrator_UniqueIDs(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		task, err := o.InitTask(ctx, "procurement", nil)
		require.NoError(t, err)
		require.False(t, seen[task.ID], "duplicate id %s", task.ID)
		seen[task.ID] = true
	}
}

func TestOrchestrator_RFQScenario(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	task, err := o.InitTask(ctx, "procurement", map[string]any{"fileUrl": "https://x/rfq.pdf"})
	require.NoError(t, err)

	// Too early: the guard wants "processing".
	entry := o.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_processed_event", nil))
	require.NotNil(t, entry.Result)
	assert.False(t, entry.Result.Success)
	assert.Equal(t, domain.CodeNoApplicableAction, entry.Result.Code)
	assert.False(t, entry.Success)
	assert.NotEmpty(t, entry.Message)

	current, err := o.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "rfq_uploaded", current.State.Key)

	entry = o.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_uploaded_event", nil))
	require.NotNil(t, entry.Result)
	assert.True(t, entry.Success)
	assert.True(t, entry.Result.Success)
	assert.Equal(t, "process_rfq", entry.Result.ActionKey)
	assert.Equal(t, 1.5, entry.Result.Cost)
	assert.Equal(t, task.ID, entry.TaskID)

	current, err = o.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "processing", current.State.Key)
	assert.Equal(t, "12345", current.State.Data["rfq_id"])
	assert.Equal(t, "https://x/rfq.pdf", current.State.Data["fileUrl"])

	entry = o.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_processed_event", nil))
	assert.True(t, entry.Result.Success)

	current, err = o.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "awaiting_role_assignment", current.State.Key)

	logs, err := o.TaskLogs(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "rfq_processed_event", logs[0].Event.Key)
	assert.Equal(t, "rfq_uploaded_event", logs[1].Event.Key)
	assert.Equal(t, "rfq_processed_event", logs[2].Event.Key)
}

func TestOrchestrator_UnknownTask(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	var entry domain.InvocationLog
	require.NotPanics(t, func() {
		entry = o.HandleEvent(ctx, "nonexistent-id", domain.NewEvent("rfq_uploaded_event", nil))
	})
	assert.Equal(t, "nonexistent-id", entry.TaskID)
	assert.False(t, entry.Success)
	require.NotNil(t, entry.Result)
	assert.Equal(t, domain.CodeTaskNotFound, entry.Result.Code)
	assert.ErrorIs(t, entry.Result.Err(), domain.ErrTaskNotFound)

	logs, err := o.Logs(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestOrchestrator_UnknownWorkflow(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domain.Task{
		ID:          "orphan",
		WorkflowKey: "retired",
		State:       domain.NewState("open", nil),
	}))

	o := newOrchestrator(t, orchestrator.WithStore(store))
	entry := o.HandleEvent(ctx, "orphan", domain.NewEvent("anything", nil))

	assert.False(t, entry.Success)
	require.NotNil(t, entry.Result)
	assert.Equal(t, domain.CodeWorkflowNotFound, entry.Result.Code)
}

func TestOrchestrator_FailedInvocationKeepsState(t *testing.T) {
	wf := workflow.New("fragile", "open")
	require.NoError(t, wf.AddTrigger("go", workflow.MustAction(workflow.ActionSpec{
		Key:  "call_supplier",
		Cost: 3,
		Perform: func(ctx context.Context, s domain.State, m ports.Messenger) (domain.ActionResult, error) {
			return domain.ActionResult{}, errors.New("timeout")
		},
	}), nil))

	o := orchestrator.New()
	require.NoError(t, o.RegisterWorkflow(wf))
	ctx := context.Background()

	task, err := o.InitTask(ctx, "fragile", map[string]any{"n": 1})
	require.NoError(t, err)

	entry := o.HandleEvent(ctx, task.ID, domain.NewEvent("go", nil))
	require.NotNil(t, entry.Result)
	assert.False(t, entry.Result.Success)
	assert.Equal(t, domain.CodeActionInvocationFailed, entry.Result.Code)
	assert.Equal(t, "call_supplier", entry.Result.ActionKey)
	assert.Zero(t, entry.Result.Cost)
	// An action was selected, so the delivery itself counts as routed.
	assert.True(t, entry.Success)
	assert.False(t, entry.Committed())
	assert.Equal(t, "timeout", entry.Message)

	current, err := o.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.State, current.State)
}

func TestOrchestrator_RegisterWorkflowConflict(t *testing.T) {
	o := newOrchestrator(t)
	err := o.RegisterWorkflow(workflow.New("procurement", "other"))
	assert.ErrorIs(t, err, domain.ErrWorkflowKeyConflict)

	wf, ok := o.Workflow("procurement")
	require.True(t, ok)
	assert.Equal(t, "rfq_uploaded", wf.InitialStateKey())
	assert.Len(t, o.Workflows(), 1)
}

type failingStore struct {
	*memory.Store
	failSave bool
}

func (s *failingStore) Save(ctx context.Context, task domain.Task) error {
	if s.failSave {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, task)
}

func TestOrchestrator_CommitFailure(t *testing.T) {
	store := &failingStore{Store: memory.NewStore()}
	o := newOrchestrator(t, orchestrator.WithStore(store))
	ctx := context.Background()

	task, err := o.InitTask(ctx, "procurement", nil)
	require.NoError(t, err)

	store.failSave = true
	entry := o.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_uploaded_event", nil))
	require.NotNil(t, entry.Result)
	assert.False(t, entry.Success)
	assert.False(t, entry.Result.Success)
	assert.Equal(t, domain.CodeCommitFailed, entry.Result.Code)
	assert.ErrorIs(t, entry.Result.Err(), domain.ErrCommitFailed)
	assert.Contains(t, entry.Message, "disk full")

	current, err := o.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "rfq_uploaded", current.State.Key)
}

func TestOrchestrator_HooksAndPersist(t *testing.T) {
	var (
		mu       sync.Mutex
		created  []string
		handled  []string
		commits  []*domain.CommitEvent
		statuses []orchestrator.PersistStatus
		lastLogs int
	)
	hooks := domain.LifecycleHooks{
		OnTaskCreated: func(ctx context.Context, e *domain.TaskEvent) {
			mu.Lock()
			defer mu.Unlock()
			created = append(created, e.StateKey)
		},
		OnEventHandled: func(ctx context.Context, e *domain.DispatchEvent) {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, fmt.Sprintf("%s:%v:%s", e.EventKey, e.Success, e.Code))
		},
		OnStateCommit: func(ctx context.Context, e *domain.CommitEvent) {
			mu.Lock()
			defer mu.Unlock()
			commits = append(commits, e)
		},
	}
	persist := func(ctx context.Context, status orchestrator.PersistStatus, task domain.Task, logs []domain.InvocationLog) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, status)
		lastLogs = len(logs)
	}

	o := newOrchestrator(t, orchestrator.WithHooks(hooks), orchestrator.WithPersistHook(persist))
	ctx := context.Background()

	task, err := o.InitTask(ctx, "procurement", map[string]any{"fileUrl": "a"})
	require.NoError(t, err)
	o.HandleEvent(ctx, task.ID, domain.NewEvent("unknown_event", nil))
	o.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_uploaded_event", nil))

	assert.Equal(t, []string{"rfq_uploaded"}, created)
	assert.Equal(t, []string{
		"unknown_event:false:no_triggers_for_event",
		"rfq_uploaded_event:true:",
	}, handled)

	require.Len(t, commits, 1)
	assert.Equal(t, "rfq_uploaded", commits[0].FromState)
	assert.Equal(t, "processing", commits[0].ToState)
	require.NotNil(t, commits[0].Diff)
	assert.Equal(t, map[string]any{"rfq_id": "12345"}, commits[0].Diff.Data)

	assert.Equal(t, []orchestrator.PersistStatus{
		orchestrator.StatusTaskCreated,
		orchestrator.StatusUnchanged,
		orchestrator.StatusStateCommitted,
	}, statuses)
	assert.Equal(t, 2, lastLogs)
}

func TestOrchestrator_ConcurrentTasksShareWorkflow(t *testing.T) {
	wf := workflow.New("slow", "start")
	require.NoError(t, wf.AddTrigger("tick", workflow.MustAction(workflow.ActionSpec{
		Key: "tick",
		Perform: func(ctx context.Context, s domain.State, m ports.Messenger) (domain.ActionResult, error) {
			time.Sleep(time.Millisecond)
			n, _ := s.Data["n"].(int)
			next := s.With("ticking", map[string]any{"n": n + 1})
			return domain.ActionResult{Success: true, NewState: &next}, nil
		},
	}), nil))

	o := orchestrator.New()
	require.NoError(t, o.RegisterWorkflow(wf))
	ctx := context.Background()

	const numTasks, ticks = 8, 10
	ids := make([]string, numTasks)
	for i := range ids {
		task, err := o.InitTask(ctx, "slow", map[string]any{"owner": i, "n": 0})
		require.NoError(t, err)
		ids[i] = task.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for j := 0; j < ticks; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				entry := o.HandleEvent(ctx, id, domain.NewEvent("tick", nil))
				assert.True(t, entry.Committed())
			}(id)
		}
	}
	wg.Wait()

	for i, id := range ids {
		task, err := o.Task(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, task.State.Data["owner"], "task %s saw another task's state", id)
		assert.Equal(t, ticks, task.State.Data["n"])
	}
}

func TestOrchestrator_FollowUp(t *testing.T) {
	wf := workflow.New("chain", "a")
	require.NoError(t, wf.AddTrigger("start", workflow.MustAction(workflow.ActionSpec{
		Key:  "to_b",
		From: "a",
		To:   "b",
		Emit: &domain.EmitEvent{
			Key: "arrived_b",
			BuildPayload: func(r domain.ActionResult) map[string]any {
				return map[string]any{"state": r.NewState.Key}
			},
		},
	}), nil))
	require.NoError(t, wf.AddTrigger("arrived_b", workflow.MustAction(workflow.ActionSpec{
		Key:  "to_c",
		From: "b",
		To:   "c",
	}), nil))

	o := orchestrator.New()
	require.NoError(t, o.RegisterWorkflow(wf))
	ctx := context.Background()
	task, err := o.InitTask(ctx, "chain", nil)
	require.NoError(t, err)

	entry := o.HandleEvent(ctx, task.ID, domain.NewEvent("start", nil))
	require.True(t, entry.Committed())

	// Nothing cascades on its own.
	current, _ := o.Task(ctx, task.ID)
	assert.Equal(t, "b", current.State.Key)

	next, ok := orchestrator.FollowUp(entry)
	require.True(t, ok)
	assert.Equal(t, "arrived_b", next.Key)
	assert.Equal(t, "b", next.Payload["state"])

	entry = o.HandleEvent(ctx, task.ID, next)
	require.True(t, entry.Committed())
	_, ok = orchestrator.FollowUp(entry)
	assert.False(t, ok)

	current, _ = o.Task(ctx, task.ID)
	assert.Equal(t, "c", current.State.Key)
}

func TestOrchestrator_TasksAndDelete(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	first, err := o.InitTask(ctx, "procurement", nil)
	require.NoError(t, err)
	second, err := o.InitTask(ctx, "procurement", nil)
	require.NoError(t, err)

	all, err := o.Tasks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	require.NoError(t, o.DeleteTask(ctx, first.ID))
	_, err = o.Task(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

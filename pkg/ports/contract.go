package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTaskStoreContract runs a suite of tests to verify that a TaskStore implementation
// adheres to the defined interface contract.
func RunTaskStoreContract(t *testing.T, store TaskStore) {
	ctx := context.Background()
	taskID := "contract-test-task-" + time.Now().Format("20060102150405")
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	newTask := func(id string) domain.Task {
		return domain.Task{
			ID:          id,
			WorkflowKey: "procurement",
			State:       domain.NewState("rfq_uploaded", map[string]any{"fileUrl": "https://x/rfq.pdf"}),
			CreatedAt:   created,
			UpdatedAt:   created,
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		task := newTask(taskID)
		task.State.Data["count"] = 42

		require.NoError(t, store.Save(ctx, task), "Save should not return error")

		loaded, err := store.Load(ctx, taskID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, task.ID, loaded.ID)
		assert.Equal(t, task.WorkflowKey, loaded.WorkflowKey)
		assert.Equal(t, "rfq_uploaded", loaded.State.Key)
		assert.Equal(t, "https://x/rfq.pdf", loaded.State.Data["fileUrl"])
		// JSON backed stores turn ints into float64; only check presence.
		assert.NotNil(t, loaded.State.Data["count"])
		assert.True(t, created.Equal(loaded.CreatedAt), "CreatedAt should survive a round trip")
	})

	t.Run("Save Replaces", func(t *testing.T) {
		task := newTask(taskID)
		task.State = domain.NewState("processing", map[string]any{"rfq_id": "12345"})
		require.NoError(t, store.Save(ctx, task))

		loaded, err := store.Load(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, "processing", loaded.State.Key)
		assert.Equal(t, "12345", loaded.State.Data["rfq_id"])
		assert.NotContains(t, loaded.State.Data, "fileUrl")
	})

	t.Run("Load Returns Isolated Copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, taskID)
		require.NoError(t, err)
		loaded.State.Data["mutated"] = true

		again, err := store.Load(ctx, taskID)
		require.NoError(t, err)
		assert.NotContains(t, again.State.Data, "mutated")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+taskID)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newTask(taskID)))
		require.NoError(t, store.Delete(ctx, taskID), "Delete should not return error")

		_, err := store.Load(ctx, taskID)
		assert.ErrorIs(t, err, domain.ErrTaskNotFound, "Load after Delete should return ErrTaskNotFound")

		assert.NoError(t, store.Delete(ctx, taskID), "Deleting twice should not fail")
	})

	t.Run("List", func(t *testing.T) {
		id1 := taskID + "-1"
		id2 := taskID + "-2"
		require.NoError(t, store.Save(ctx, newTask(id1)))
		require.NoError(t, store.Save(ctx, newTask(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunLogStoreContract verifies that a LogStore implementation is append-only and ordered.
func RunLogStoreContract(t *testing.T, store LogStore) {
	ctx := context.Background()
	prefix := "contract-log-" + time.Now().Format("20060102150405")
	taskA := prefix + "-a"
	taskB := prefix + "-b"
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	entries := []domain.InvocationLog{
		{Timestamp: ts, TaskID: taskA, Event: domain.Event{Key: "first"}, Success: true,
			Result: &domain.ActionResult{ActionKey: "act", Success: true, Cost: 1}},
		{Timestamp: ts.Add(time.Second), TaskID: taskB, Event: domain.Event{Key: "other"}, Success: false,
			Result: &domain.ActionResult{Code: domain.CodeNoTriggersForEvent, Message: "none"}},
		{Timestamp: ts.Add(2 * time.Second), TaskID: taskA, Event: domain.Event{Key: "second"}, Success: false,
			Message: "no applicable action"},
	}

	for _, e := range entries {
		require.NoError(t, store.Append(ctx, e))
	}

	t.Run("List Preserves Append Order", func(t *testing.T) {
		all, err := store.List(ctx)
		require.NoError(t, err)

		var keys []string
		for _, e := range all {
			if e.TaskID == taskA || e.TaskID == taskB {
				keys = append(keys, e.Event.Key)
			}
		}
		assert.Equal(t, []string{"first", "other", "second"}, keys)
	})

	t.Run("ListByTask Filters", func(t *testing.T) {
		logsA, err := store.ListByTask(ctx, taskA)
		require.NoError(t, err)
		require.Len(t, logsA, 2)
		assert.Equal(t, "first", logsA[0].Event.Key)
		assert.Equal(t, "second", logsA[1].Event.Key)
		require.NotNil(t, logsA[0].Result)
		assert.Equal(t, "act", logsA[0].Result.ActionKey)

		logsB, err := store.ListByTask(ctx, taskB)
		require.NoError(t, err)
		require.Len(t, logsB, 1)
		assert.Equal(t, domain.CodeNoTriggersForEvent, logsB[0].Result.Code)
	})

	t.Run("Unknown Task Has No Logs", func(t *testing.T) {
		logs, err := store.ListByTask(ctx, prefix+"-missing")
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}

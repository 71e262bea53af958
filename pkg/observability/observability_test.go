package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/observability"
	"github.com/aretw0/conductor/pkg/orchestrator"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf := workflow.New("procurement", "rfq_uploaded")
	require.NoError(t, wf.AddTrigger("rfq_uploaded_event", workflow.MustAction(workflow.ActionSpec{
		Key:  "process_rfq",
		Cost: 2.5,
		From: "rfq_uploaded",
		To:   "processing",
	}), nil))
	return wf
}

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	o := orchestrator.New(orchestrator.WithHooks(metrics.Hooks()))
	require.NoError(t, o.RegisterWorkflow(newWorkflow(t)))

	ctx := context.Background()
	task, err := o.InitTask(ctx, "procurement", nil)
	require.NoError(t, err)

	o.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_uploaded_event", nil))
	// Second delivery finds no applicable action.
	o.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_uploaded_event", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TasksCreated.WithLabelValues("procurement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Events.WithLabelValues("procurement", "rfq_uploaded_event", observability.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Events.WithLabelValues("procurement", "rfq_uploaded_event", observability.OutcomeFailure)))
	assert.Equal(t, 2.5, testutil.ToFloat64(metrics.ActionCost.WithLabelValues("procurement", "process_rfq")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Commits.WithLabelValues("procurement", "processing")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ActionDuration))

	n, err := testutil.GatherAndCount(reg, "conductor_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_NilRegisterer(t *testing.T) {
	m := observability.NewMetrics(nil)
	assert.Len(t, m.Collectors(), 5)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.Events))
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	o := orchestrator.New(orchestrator.WithHooks(observability.LoggingHooks(logger)))
	require.NoError(t, o.RegisterWorkflow(newWorkflow(t)))

	ctx := context.Background()
	task, err := o.InitTask(ctx, "procurement", nil)
	require.NoError(t, err)
	o.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_uploaded_event", nil))
	o.HandleEvent(ctx, task.ID, domain.NewEvent("unknown_event", nil))

	out := buf.String()
	assert.Contains(t, out, `"msg":"task_created"`)
	assert.Contains(t, out, `"msg":"event_handled"`)
	assert.Contains(t, out, `"msg":"state_commit"`)
	assert.Contains(t, out, `"msg":"event_failed"`)
	assert.Contains(t, out, `"code":"no_triggers_for_event"`)
	assert.Equal(t, 4, strings.Count(out, "\n"))
}

func TestCombine(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnTaskCreated: func(context.Context, *domain.TaskEvent) { calls = append(calls, "a") },
	}
	b := domain.LifecycleHooks{
		OnTaskCreated: func(context.Context, *domain.TaskEvent) { calls = append(calls, "b") },
		OnStateCommit: func(context.Context, *domain.CommitEvent) { calls = append(calls, "b-commit") },
	}

	h := observability.Combine(a, domain.LifecycleHooks{}, b)
	h.OnTaskCreated(context.Background(), &domain.TaskEvent{})
	h.OnStateCommit(context.Background(), &domain.CommitEvent{})
	assert.Nil(t, h.OnEventHandled)
	assert.Equal(t, []string{"a", "b", "b-commit"}, calls)
}

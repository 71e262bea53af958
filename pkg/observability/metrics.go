package observability

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values of conductor_events_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the Prometheus collectors fed by the lifecycle hooks.
type Metrics struct {
	TasksCreated   *prometheus.CounterVec
	Events         *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	ActionCost     *prometheus.CounterVec
	Commits        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_tasks_created_total",
				Help: "Total number of tasks created",
			},
			[]string{"workflow"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_events_total",
				Help: "Total number of events handled",
			},
			[]string{"workflow", "event", "outcome"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_action_duration_seconds",
				Help:    "Duration of action invocations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workflow", "action"},
		),
		ActionCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_action_cost_total",
				Help: "Sum of costs reported by successful actions",
			},
			[]string{"workflow", "action"},
		),
		Commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_state_commits_total",
				Help: "Total number of committed state changes",
			},
			[]string{"workflow", "to_state"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Collectors()...)
	}
	return m
}

// Collectors returns every collector, for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.TasksCreated, m.Events, m.ActionDuration, m.ActionCost, m.Commits}
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskCreated: func(_ context.Context, e *domain.TaskEvent) {
			m.TasksCreated.WithLabelValues(e.WorkflowKey).Inc()
		},
		OnEventHandled: func(_ context.Context, e *domain.DispatchEvent) {
			outcome := OutcomeFailure
			if e.Success {
				outcome = OutcomeSuccess
			}
			m.Events.WithLabelValues(e.WorkflowKey, e.EventKey, outcome).Inc()

			// No action ran.
			if e.ActionKey == "" {
				return
			}
			m.ActionDuration.WithLabelValues(e.WorkflowKey, e.ActionKey).Observe(e.Duration.Seconds())
			if e.Success && e.Cost > 0 {
				m.ActionCost.WithLabelValues(e.WorkflowKey, e.ActionKey).Add(e.Cost)
			}
		},
		OnStateCommit: func(_ context.Context, e *domain.CommitEvent) {
			m.Commits.WithLabelValues(e.WorkflowKey, e.ToState).Inc()
		},
	}
}

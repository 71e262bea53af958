package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/internal/presentation/graph"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Orchestrator is the part of the orchestrator the server exposes.
type Orchestrator interface {
	Workflows() []*workflow.Workflow
	Workflow(key string) (*workflow.Workflow, bool)
	InitTask(ctx context.Context, workflowKey string, data map[string]any) (domain.Task, error)
	HandleEvent(ctx context.Context, taskID string, event domain.Event) domain.InvocationLog
	Task(ctx context.Context, taskID string) (domain.Task, error)
	Tasks(ctx context.Context) ([]domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	Logs(ctx context.Context) ([]domain.InvocationLog, error)
	TaskLogs(ctx context.Context, taskID string) ([]domain.InvocationLog, error)
}

// Server serves the orchestrator over HTTP.
type Server struct {
	Orchestrator Orchestrator
	Streams      *StreamManager

	gatherer prometheus.Gatherer
	version  string
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStreams sets the stream manager feeding GET /events.
// Its Hooks must be installed on the orchestrator for diffs to flow.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithGatherer sets the metrics source of GET /metrics.
// Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the orchestrator.
func NewHandler(o Orchestrator, opts ...Option) http.Handler {
	s := &Server{
		Orchestrator: o,
		gatherer:     prometheus.DefaultGatherer,
		version:      "dev",
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/events", s.SubscribeEvents)

	r.Get("/workflows", s.ListWorkflows)
	r.Get("/workflows/{key}/graph", s.GetGraph)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.ListTasks)
		r.Post("/", s.CreateTask)
		r.Get("/{id}", s.GetTask)
		r.Delete("/{id}", s.DeleteTask)
		r.Post("/{id}/events", s.SendEvent)
		r.Get("/{id}/logs", s.GetTaskLogs)
	})
	r.Get("/logs", s.GetLogs)
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WorkflowInfo describes a registered workflow.
type WorkflowInfo struct {
	Key          string       `json:"key"`
	InitialState string       `json:"initial_state"`
	Events       []string     `json:"events"`
	Actions      []ActionInfo `json:"actions"`
}

// ActionInfo describes a registered action.
type ActionInfo struct {
	Key         string  `json:"key"`
	Description string  `json:"description,omitempty"`
	Cost        float64 `json:"cost"`
}

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Workflow string         `json:"workflow"`
	Data     map[string]any `json:"data,omitempty"`
}

// EventRequest is the body of POST /tasks/{id}/events.
type EventRequest struct {
	Key     string         `json:"key"`
	Payload map[string]any `json:"payload,omitempty"`
}

// DescribeWorkflow summarises wf for clients.
func DescribeWorkflow(wf *workflow.Workflow) WorkflowInfo {
	info := WorkflowInfo{
		Key:          wf.Key(),
		InitialState: wf.InitialStateKey(),
		Events:       wf.Events(),
	}
	for _, a := range wf.Actions() {
		info.Actions = append(info.Actions, ActionInfo{Key: a.Key(), Description: a.Description(), Cost: a.Cost()})
	}
	return info
}

// ListWorkflows handles GET /workflows.
func (s *Server) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs := s.Orchestrator.Workflows()
	out := make([]WorkflowInfo, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, DescribeWorkflow(wf))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetGraph handles GET /workflows/{key}/graph. With ?task_id the task's
// current state is highlighted.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	wf, ok := s.Orchestrator.Workflow(key)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: '%s'", domain.ErrWorkflowNotFound, key))
		return
	}

	var overlay *graph.GraphOverlay
	if taskID := r.URL.Query().Get("task_id"); taskID != "" {
		task, err := s.Orchestrator.Task(r.Context(), taskID)
		if err != nil {
			s.writeError(w, statusFor(err), err)
			return
		}
		overlay = &graph.GraphOverlay{CurrentState: task.State.Key}
		if logs, err := s.Orchestrator.TaskLogs(r.Context(), taskID); err == nil {
			overlay.VisitedStates = VisitedStates(wf.InitialStateKey(), logs)
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, graph.GenerateMermaid(wf, overlay))
}

// VisitedStates lists the states a task went through, from its log.
func VisitedStates(initial string, logs []domain.InvocationLog) []string {
	visited := []string{initial}
	for _, l := range logs {
		if l.Committed() && l.Result.NewState != nil {
			visited = append(visited, l.Result.NewState.Key)
		}
	}
	return visited
}

// CreateTask handles POST /tasks.
func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	var body CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Workflow == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("workflow is required"))
		return
	}

	task, err := s.Orchestrator.InitTask(r.Context(), body.Workflow, body.Data)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, task)
}

// ListTasks handles GET /tasks.
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Orchestrator.Tasks(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

// GetTask handles GET /tasks/{id}.
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Orchestrator.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/{id}.
func (s *Server) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.Orchestrator.DeleteTask(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendEvent handles POST /tasks/{id}/events.
// Delivery problems are part of the returned log, so the status is always 200
// once the body is valid.
func (s *Server) SendEvent(w http.ResponseWriter, r *http.Request) {
	var body EventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Key == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("event key is required"))
		return
	}

	entry := s.Orchestrator.HandleEvent(r.Context(), chi.URLParam(r, "id"), domain.NewEvent(body.Key, body.Payload))
	s.writeJSON(w, http.StatusOK, entry)
}

// GetTaskLogs handles GET /tasks/{id}/logs.
func (s *Server) GetTaskLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.Orchestrator.TaskLogs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if logs == nil {
		logs = []domain.InvocationLog{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

// GetLogs handles GET /logs.
func (s *Server) GetLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.Orchestrator.Logs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if logs == nil {
		logs = []domain.InvocationLog{}
	}
	s.writeJSON(w, http.StatusOK, logs)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "conductor-http",
		"version": strings.TrimSpace(s.version),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrWorkflowNotFound), errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	} else {
		s.logger.Warn("request rejected", "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

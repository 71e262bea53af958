package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/internal/presentation/graph"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// WorkflowsURI is the resource listing every registered workflow.
const WorkflowsURI = "conductor://workflows"

// Orchestrator is the part of the orchestrator exposed to MCP clients.
type Orchestrator interface {
	Workflows() []*workflow.Workflow
	Workflow(key string) (*workflow.Workflow, bool)
	InitTask(ctx context.Context, workflowKey string, data map[string]any) (domain.Task, error)
	HandleEvent(ctx context.Context, taskID string, event domain.Event) domain.InvocationLog
	Task(ctx context.Context, taskID string) (domain.Task, error)
}

// WorkflowSummary describes a workflow to MCP clients.
type WorkflowSummary struct {
	Key          string   `json:"key" jsonschema_description:"Workflow key"`
	InitialState string   `json:"initial_state" jsonschema_description:"State new tasks start in"`
	Events       []string `json:"events" jsonschema_description:"Events the workflow reacts to"`
	Actions      []string `json:"actions" jsonschema_description:"Registered action keys"`
}

// WorkflowList is the result of list_workflows.
type WorkflowList struct {
	Workflows []WorkflowSummary `json:"workflows"`
}

// Server wraps the orchestrator and exposes it as an MCP Server.
type Server struct {
	orch      Orchestrator
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(orch Orchestrator, version string, opts ...Option) *Server {
	s := &Server{
		orch:   orch,
		logger: logging.NewNop(),
		mcpServer: server.NewMCPServer("conductor-mcp", version,
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: list_workflows
	s.mcpServer.AddTool(mcp.NewTool("list_workflows",
		mcp.WithDescription("List the registered workflows with their events and actions."),
		mcp.WithOutputSchema[WorkflowList](),
	), mcp.NewStructuredToolHandler(s.handleListWorkflows))

	// TOOL: init_task
	s.mcpServer.AddTool(mcp.NewTool("init_task",
		mcp.WithDescription("Create a task of a workflow, in the workflow's initial state."),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Workflow key")),
		mcp.WithString("data", mcp.Description("JSON object of initial state data (optional)")),
		mcp.WithOutputSchema[domain.Task](),
	), mcp.NewStructuredToolHandler(s.handleInitTask))

	// TOOL: handle_event
	s.mcpServer.AddTool(mcp.NewTool("handle_event",
		mcp.WithDescription("Deliver an event to a task. Returns the invocation log; failures are reported in it."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithString("event", mcp.Required(), mcp.Description("Event key")),
		mcp.WithString("payload", mcp.Description("JSON object of event payload (optional)")),
		mcp.WithOutputSchema[domain.InvocationLog](),
	), mcp.NewStructuredToolHandler(s.handleEvent))

	// TOOL: get_task
	s.mcpServer.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Get a task and its committed state."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithOutputSchema[domain.Task](),
	), mcp.NewStructuredToolHandler(s.handleGetTask))

	// TOOL: get_graph
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the Mermaid flowchart of a workflow."),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Workflow key")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key := request.GetString("workflow", "")
		wf, ok := s.orch.Workflow(key)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("%v: '%s'", domain.ErrWorkflowNotFound, key)), nil
		}
		return mcp.NewToolResultText(graph.GenerateMermaid(wf, nil)), nil
	})
}

// Handler methods for structured tools

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (WorkflowList, error) {
	return WorkflowList{Workflows: s.summaries()}, nil
}

func (s *Server) handleInitTask(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (domain.Task, error) {
	key, _ := args["workflow"].(string)
	data, err := objectArg(args, "data")
	if err != nil {
		return domain.Task{}, err
	}
	task, err := s.orch.InitTask(ctx, key, data)
	if err != nil {
		return domain.Task{}, fmt.Errorf("init task failed: %w", err)
	}
	return task, nil
}

func (s *Server) handleEvent(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (domain.InvocationLog, error) {
	taskID, _ := args["task_id"].(string)
	eventKey, _ := args["event"].(string)
	if eventKey == "" {
		return domain.InvocationLog{}, errors.New("event is required")
	}
	payload, err := objectArg(args, "payload")
	if err != nil {
		return domain.InvocationLog{}, err
	}
	return s.orch.HandleEvent(ctx, taskID, domain.NewEvent(eventKey, payload)), nil
}

func (s *Server) handleGetTask(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (domain.Task, error) {
	taskID, _ := args["task_id"].(string)
	return s.orch.Task(ctx, taskID)
}

// objectArg reads an optional object argument, given either as a JSON
// object or as a string holding one.
func objectArg(args map[string]any, name string) (map[string]any, error) {
	switch v := args[name].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("%s must be a JSON object: %w", name, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be a JSON object, got %T", name, v)
	}
}

func (s *Server) summaries() []WorkflowSummary {
	wfs := s.orch.Workflows()
	out := make([]WorkflowSummary, 0, len(wfs))
	for _, wf := range wfs {
		sum := WorkflowSummary{
			Key:          wf.Key(),
			InitialState: wf.InitialStateKey(),
			Events:       wf.Events(),
		}
		for _, a := range wf.Actions() {
			sum.Actions = append(sum.Actions, a.Key())
		}
		out = append(out, sum)
	}
	return out
}

func (s *Server) registerResources() {
	// EXPOSE: conductor://workflows
	s.mcpServer.AddResource(mcp.NewResource(WorkflowsURI, "Registered Workflows",
		mcp.WithMIMEType("application/json"),
	), s.handleReadWorkflows)
}

func (s *Server) handleReadWorkflows(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jsonBytes, err := json.Marshal(WorkflowList{Workflows: s.summaries()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflows: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      WorkflowsURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

package conductor_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/messenger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procurementYAML = `
key: procurement
initial_state: rfq_uploaded
messages:
  roles_needed: Please assign approvers
actions:
  - key: process_rfq
    cost: 1
    requires_state: rfq_uploaded
    params:
      to: processing
      data: { buyer_email: buyer@example.com }
    emit: { key: rfq_processed_event }
  - key: request_roles
    kind: notify
    requires_state: processing
    params: { message: roles_needed, roles: [manager], to: awaiting_role_assignment }
triggers:
  - event: rfq_uploaded_event
    action: process_rfq
  - event: rfq_processed_event
    action: request_roles
`

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func quiet() conductor.Option {
	return conductor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func workflowsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "procurement.yaml"), []byte(procurementYAML), 0644))
	return dir
}

func runProcurement(t *testing.T, c *conductor.Conductor) domain.Task {
	t.Helper()
	ctx := context.Background()
	task, err := c.InitTask(ctx, "procurement", map[string]any{"rfq_id": "12345"})
	require.NoError(t, err)

	entry := c.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_uploaded_event", nil))
	require.True(t, entry.Committed(), entry.Message)
	entry = c.HandleEvent(ctx, task.ID, domain.NewEvent("rfq_processed_event", nil))
	require.True(t, entry.Committed(), entry.Message)

	task, err = c.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "awaiting_role_assignment", task.State.Key)
	return task
}

func TestNew_MemoryWithDefinitions(t *testing.T) {
	rec := messenger.NewRecorder()
	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = workflowsDir(t)

	c, err := conductor.New(context.Background(), cfg, quiet(), conductor.WithMessenger(rec))
	require.NoError(t, err)
	defer c.Close()

	require.Len(t, c.Definitions, 1)
	runProcurement(t, c)

	require.Len(t, rec.Deliveries(), 1)
	assert.Equal(t, "Please assign approvers", rec.Deliveries()[0].Payload)

	logs, err := c.Logs(context.Background())
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestNew_MessengerList(t *testing.T) {
	var console, logs bytes.Buffer
	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = workflowsDir(t)
	cfg.Messenger = "console,log"

	c, err := conductor.New(context.Background(), cfg,
		conductor.WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
		conductor.WithConsoleWriter(&console),
	)
	require.NoError(t, err)
	defer c.Close()

	multi, ok := c.Messenger().(messenger.Multi)
	require.True(t, ok, "got %T", c.Messenger())
	assert.Len(t, multi, 2)

	runProcurement(t, c)
	assert.Contains(t, console.String(), "Please assign approvers")
	assert.Contains(t, logs.String(), `"msg":"message sent"`)
	assert.Contains(t, logs.String(), `"message":"roles_needed"`)
}

func TestNew_MissingWorkflowsDirIsSkipped(t *testing.T) {
	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = filepath.Join(t.TempDir(), "absent")

	c, err := conductor.New(context.Background(), cfg, quiet())
	require.NoError(t, err)
	assert.Empty(t, c.Workflows())
}

func TestNew_InvalidDefinition(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("key: bad\n"), 0644))
	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = dir

	_, err := conductor.New(context.Background(), cfg, quiet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing initial_state")
}

func TestNew_FileBackendWithMiddleware(t *testing.T) {
	dir := t.TempDir()
	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = workflowsDir(t)
	cfg.Messenger = "none"
	cfg.Store.Backend = "file"
	cfg.Store.Dir = filepath.Join(dir, "tasks")
	cfg.Store.LogPath = filepath.Join(dir, "logs.jsonl")
	cfg.Security.EncryptionKey = testKey
	cfg.Security.PIIKeys = []string{"Buyer_Email"}

	c, err := conductor.New(context.Background(), cfg, quiet())
	require.NoError(t, err)
	task := runProcurement(t, c)

	// Masked before encryption, decrypted on load.
	assert.Equal(t, "***", task.State.Data["buyer_email"])
	assert.Equal(t, "12345", task.State.Data["rfq_id"])

	raw, err := os.ReadFile(filepath.Join(cfg.Store.Dir, task.ID+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "12345")
	assert.Contains(t, string(raw), "awaiting_role_assignment")

	logs, err := os.ReadFile(cfg.Store.LogPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(logs), "\n"))
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = workflowsDir(t)
	cfg.Messenger = "none"
	cfg.Store.Backend = "redis"
	cfg.Store.Redis.Prefix = "test:"
	cfg.Store.DistributedLock = true

	c, err := conductor.New(context.Background(), cfg, quiet(), conductor.WithRedisClient(client))
	require.NoError(t, err)
	defer c.Close()

	task := runProcurement(t, c)
	assert.True(t, mr.Exists("test:task:"+task.ID))
	members, err := mr.ZMembers("test:tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, members)

	// Locks are released after each delivery.
	assert.False(t, mr.Exists("test:lock:"+task.ID))
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = ""
	cfg.Store.Backend = "redis"
	cfg.Store.Redis.Addr = addr

	_, err := conductor.New(context.Background(), cfg, quiet())
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := conductor.DefaultConfig()
	cfg.Store.Backend = "postgres"
	_, err := conductor.New(context.Background(), cfg, quiet())
	assert.Error(t, err)
}

func TestHTTPHandler(t *testing.T) {
	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = workflowsDir(t)
	cfg.Messenger = "none"
	c, err := conductor.New(context.Background(), cfg, quiet())
	require.NoError(t, err)
	runProcurement(t, c)

	srv := httptest.NewServer(c.HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `conductor_action_cost_total{action="process_rfq",workflow="procurement"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_ToolsFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	tools := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(tools, []byte(`
tools:
  - name: score
    command: sh
    args: ["-c", "echo 42"]
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scoring.yaml"), []byte(`
key: scoring
initial_state: received
actions:
  - key: score_vendor
    kind: call
    params: { tool: score, save_to: score, to: scored }
triggers:
  - event: vendor_received
    action: score_vendor
`), 0644))

	cfg := conductor.DefaultConfig()
	cfg.WorkflowsDir = dir
	cfg.ToolsFile = tools
	cfg.Messenger = "none"
	c, err := conductor.New(context.Background(), cfg, quiet())
	require.NoError(t, err)
	assert.Equal(t, []string{"score"}, c.Tools.Names())

	ctx := context.Background()
	task, err := c.InitTask(ctx, "scoring", nil)
	require.NoError(t, err)
	entry := c.HandleEvent(ctx, task.ID, domain.NewEvent("vendor_received", nil))
	require.True(t, entry.Committed(), entry.Message)
	assert.Equal(t, "42", entry.Result.NewState.Data["score"])
}

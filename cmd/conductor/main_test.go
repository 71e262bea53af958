package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/conductor/pkg/definition"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testdataDir = "../../pkg/definition/testdata"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--quiet"))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	return writeConfigFor(t, testdataDir)
}

func writeConfigFor(t *testing.T, workflowsDir string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	cfg := fmt.Sprintf(`workflows_dir: %s
log_level: error
messenger: none
store:
  backend: file
  dir: %s
  log_path: %s
`, workflowsDir, filepath.Join(dir, "tasks"), filepath.Join(dir, "logs.jsonl"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "conductor version ")
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", testdataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ procurement")
	assert.Contains(t, out, "✓ onboarding")
}

func TestValidate_ReportsProblems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
key: broken
initial_state: start
actions:
  - key: go
    kind: teleport
triggers:
  - event: go_event
    action: missing
`), 0644))

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "unknown kind 'teleport'")
	assert.Contains(t, err.Error(), "1 of 1 workflows are invalid")
}

func TestGraph(t *testing.T) {
	out, err := execute(t, "graph", "onboarding", "--config", writeConfig(t), "--task", "")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "invite_accepted / accept")
}

func TestGraph_UnknownWorkflow(t *testing.T) {
	_, err := execute(t, "graph", "nope", "--config", writeConfig(t), "--task", "")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func TestTaskLifecycle(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "task", "new", "procurement", "--config", cfg, "--data", `{"buyer":"acme"}`)
	require.NoError(t, err)
	var task domain.Task
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.Equal(t, "rfq_uploaded", task.State.Key)

	out, err = execute(t, "task", "send", task.ID, "rfq_uploaded_event", "--config", cfg, "--payload", "", "--no-follow=false", "--max-follow", "16")
	require.NoError(t, err)
	assert.Contains(t, out, `"action_key": "process_rfq"`)
	assert.Contains(t, out, `"action_key": "request_roles"`)

	out, err = execute(t, "task", "ls", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, task.ID+"\tprocurement\tawaiting_role_assignment")

	out, err = execute(t, "task", "inspect", task.ID, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"buyer": "acme"`)
	assert.Contains(t, out, `"rfq_id": "12345"`)

	out, err = execute(t, "graph", "procurement", "--config", cfg, "--task", task.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "class awaiting_role_assignment current")

	out, err = execute(t, "task", "rm", task.ID, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed task")

	out, err = execute(t, "task", "ls", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks found.")
}

func TestTaskSend_RejectedEvent(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "task", "new", "onboarding", "--config", cfg, "--data", "")
	require.NoError(t, err)
	var task domain.Task
	require.NoError(t, json.Unmarshal([]byte(out), &task))

	_, err = execute(t, "task", "send", task.ID, "unknown_event", "--config", cfg, "--payload", "", "--no-follow=false", "--max-follow", "16")
	assert.ErrorContains(t, err, "was not applied")
}

func TestTaskSend_StopsSelfEmittingChain(t *testing.T) {
	wfDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(wfDir, "loop.yaml"), []byte(`
key: loop
initial_state: open
actions:
  - key: ping
    kind: transition
    params:
      to: open
    emit:
      key: ping_event
triggers:
  - event: ping_event
    action: ping
`), 0644))
	cfg := writeConfigFor(t, wfDir)

	out, err := execute(t, "task", "new", "loop", "--config", cfg, "--data", "")
	require.NoError(t, err)
	var task domain.Task
	require.NoError(t, json.Unmarshal([]byte(out), &task))

	out, err = execute(t, "task", "send", task.ID, "ping_event", "--config", cfg,
		"--payload", "", "--no-follow=false", "--max-follow", "3")
	require.ErrorIs(t, err, errFollowLimit)
	assert.ErrorContains(t, err, "stopped after 3 follow-up events")

	var entries int
	dec := json.NewDecoder(bytes.NewReader([]byte(out)))
	for dec.More() {
		var entry domain.InvocationLog
		require.NoError(t, dec.Decode(&entry))
		require.NotNil(t, entry.Result)
		assert.Equal(t, "ping", entry.Result.ActionKey)
		entries++
	}
	assert.Equal(t, 4, entries)

	_, err = execute(t, "task", "send", task.ID, "ping_event", "--config", cfg,
		"--payload", "", "--no-follow=true", "--max-follow", "16")
	require.NoError(t, err)
}

func TestTaskSend_RejectsNegativeFollowLimit(t *testing.T) {
	_, err := execute(t, "task", "send", "any", "any_event", "--config", writeConfig(t),
		"--payload", "", "--no-follow=false", "--max-follow", "-1")
	assert.ErrorContains(t, err, "invalid --max-follow")
}

func TestValidate_ReportsConflictingMessages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("key: a\ninitial_state: s\nmessages:\n  greet: \"Hello\"\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("key: b\ninitial_state: s\nmessages:\n  greet: \"Goodbye\"\n"), 0644))

	out, err := execute(t, "validate", dir)
	require.ErrorIs(t, err, definition.ErrMessageConflict)
	assert.Contains(t, out, "✗ shared messages")
	assert.Contains(t, out, "'greet'")
}

package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aretw0/conductor/pkg/adapters/process"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestRunner_Run(t *testing.T) {
	skipOnWindows(t)
	runner := process.NewRunner()
	runner.Register("hello", "echo", "hello")
	runner.Register("echo_env", "sh", "-c", "echo $CONDUCTOR_ARG_MSG")
	runner.Register("json", "sh", "-c", `echo '{"score": 7}'`)
	runner.Register("fail", "sh", "-c", "echo boom >&2; exit 3")

	t.Run("Executes Registered Command", func(t *testing.T) {
		out, err := runner.Run(context.Background(), "hello", nil)
		require.NoError(t, err)
		assert.Equal(t, "hello", out)
	})

	t.Run("Fails For Unregistered Command", func(t *testing.T) {
		_, err := runner.Run(context.Background(), "hacker_script", nil)
		assert.ErrorIs(t, err, process.ErrToolNotRegistered)
	})

	t.Run("Passes Arguments via Env Vars", func(t *testing.T) {
		out, err := runner.Run(context.Background(), "echo_env", map[string]any{"msg": "SecretMessage"})
		require.NoError(t, err)
		assert.Equal(t, "SecretMessage", out)
	})

	t.Run("Decodes JSON Output", func(t *testing.T) {
		out, err := runner.Run(context.Background(), "json", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"score": float64(7)}, out)
	})

	t.Run("Reports Stderr On Failure", func(t *testing.T) {
		_, err := runner.Run(context.Background(), "fail", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	assert.Equal(t, []string{"echo_env", "fail", "hello", "json"}, runner.Names())
}

func TestRunner_InstallCallAction(t *testing.T) {
	skipOnWindows(t)
	reg := registry.Builtins()
	process.NewRunner(process.WithTools(process.ToolConfig{
		Name:        "score",
		Command:     "sh",
		Args:        []string{"-c", `echo "{\"vendor\": \"$CONDUCTOR_ARG_VENDOR\"}"`},
		Environment: map[string]string{"LANG": "C"},
	})).Install(reg)
	require.True(t, reg.HasTool("score"))

	action, err := reg.Build(registry.Spec{
		Key:    "score_vendor",
		Kind:   registry.KindCall,
		Params: map[string]any{"tool": "score", "save_to": "scoring", "to": "scored"},
	})
	require.NoError(t, err)

	res, err := action.Invoke(context.Background(), domain.NewState("received", map[string]any{"vendor": "acme"}), nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "scored", res.NewState.Key)
	assert.Equal(t, map[string]any{"vendor": "acme"}, res.NewState.Data["scoring"])
}

func TestLoadTools(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing File", func(t *testing.T) {
		tools, err := process.LoadTools(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Empty(t, tools)
	})

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, "tools.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: lint
    command: golangci-lint
    args: [run]
    env: { GOFLAGS: -mod=mod }
`), 0644))
		tools, err := process.LoadTools(path)
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "lint", tools[0].Name)
		assert.Equal(t, []string{"run"}, tools[0].Args)
		assert.Equal(t, "-mod=mod", tools[0].Environment["GOFLAGS"])
	})

	t.Run("JSON", func(t *testing.T) {
		path := filepath.Join(dir, "tools.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"tools": [{"name": "date", "command": "date"}]}`), 0644))
		tools, err := process.LoadTools(path)
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "date", tools[0].Command)
	})

	t.Run("Missing Command", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tools:\n  - name: nothing\n"), 0644))
		_, err := process.LoadTools(path)
		assert.ErrorContains(t, err, "tools[0]: missing command")
	})
}

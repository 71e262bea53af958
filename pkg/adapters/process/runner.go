package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/conductor/pkg/registry"
)

// EnvPrefix prefixes the environment variables carrying tool arguments.
const EnvPrefix = "CONDUCTOR_ARG_"

// ErrToolNotRegistered is returned when running a name that is not allow-listed.
var ErrToolNotRegistered = errors.New("process tool not registered")

// Runner executes allow-listed local commands.
//
// Arguments never reach the command line: each one is passed as an
// environment variable EnvPrefix+UPPER(key), so values cannot inject flags.
type Runner struct {
	mu      sync.RWMutex
	tools   map[string]ToolConfig
	baseDir string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithTools allow-lists the given tools.
func WithTools(tools ...ToolConfig) RunnerOption {
	return func(r *Runner) {
		for _, t := range tools {
			r.tools[t.Name] = t
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a runner with an empty allow-list unless WithTools is given.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{tools: make(map[string]ToolConfig)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = ToolConfig{Name: name, Command: command, Args: args}
}

// Names returns the allow-listed tool names, sorted.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install registers every allow-listed tool on reg, so `call` actions can run them.
func (r *Runner) Install(reg *registry.Registry) {
	for _, name := range r.Names() {
		reg.Register(name, func(ctx context.Context, args map[string]any) (any, error) {
			return r.Run(ctx, name, args)
		})
	}
}

// Run executes the named tool and returns its output: decoded JSON when
// stdout is a JSON object or array, the trimmed text otherwise.
// A non-zero exit is an error carrying stderr.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotRegistered, name)
	}

	cmd := exec.CommandContext(ctx, tool.Command, tool.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = append(cmd.Environ(), environment(tool.Environment, args)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tool '%s' failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return decodeOutput(stdout.String()), nil
}

func environment(static map[string]string, args map[string]any) []string {
	env := make([]string, 0, len(static)+len(args))
	for k, v := range static {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+formatArg(v))
	}
	return env
}

// formatArg prints scalars as is and everything else as JSON.
func formatArg(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	}
	if raw, err := json.Marshal(v); err == nil {
		return string(raw)
	}
	return fmt.Sprint(v)
}

func decodeOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}

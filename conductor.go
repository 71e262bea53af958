package conductor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/aretw0/conductor/internal/config"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/adapters/file"
	httpadapter "github.com/aretw0/conductor/pkg/adapters/http"
	mcpadapter "github.com/aretw0/conductor/pkg/adapters/mcp"
	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/adapters/process"
	redisadapter "github.com/aretw0/conductor/pkg/adapters/redis"
	"github.com/aretw0/conductor/pkg/definition"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/messenger"
	"github.com/aretw0/conductor/pkg/observability"
	"github.com/aretw0/conductor/pkg/orchestrator"
	"github.com/aretw0/conductor/pkg/persistence/middleware"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/registry"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
)

// Conductor is the high-level entry point of the library.
// It wires stores, middleware, messenger, metrics and declared workflows
// around an orchestrator.
type Conductor struct {
	*orchestrator.Orchestrator

	Config      *Config
	Registry    *registry.Registry
	Tools       *process.Runner
	Metrics     *observability.Metrics
	Streams     *httpadapter.StreamManager
	Definitions []*definition.Definition

	metrics *prometheus.Registry
	logger  *slog.Logger
	closers []func() error
}

// Config is the runtime configuration. See DefaultConfig and LoadConfig.
type Config = config.Config

// DefaultConfig returns the configuration used when nothing is set:
// memory stores, console messenger and workflows read from ./workflows.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads a YAML config file and CONDUCTOR_* environment overrides.
// An empty path reads conductor.yaml if present.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

type settings struct {
	logger      *slog.Logger
	registry    *registry.Registry
	messenger   ports.Messenger
	consoleOut  io.Writer
	redisClient *goredis.Client
	workflows   []*workflow.Workflow
	hooks       []domain.LifecycleHooks
	orchOpts    []orchestrator.Option
}

// Option defines a functional option for configuring the Conductor.
type Option func(*settings)

// WithLogger sets a custom structured logger. By default one is built from the config.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithRegistry sets the action kind and tool registry used for declared workflows.
func WithRegistry(r *registry.Registry) Option {
	return func(s *settings) {
		s.registry = r
	}
}

// WithMessenger overrides the messenger selected by the config.
func WithMessenger(m ports.Messenger) Option {
	return func(s *settings) {
		s.messenger = m
	}
}

// WithConsoleWriter sets where the console messenger prints. Defaults to stdout.
func WithConsoleWriter(w io.Writer) Option {
	return func(s *settings) {
		s.consoleOut = w
	}
}

// WithRedisClient injects the client used by the redis backend.
// The Conductor does not close injected clients.
func WithRedisClient(client *goredis.Client) Option {
	return func(s *settings) {
		s.redisClient = client
	}
}

// WithWorkflows registers workflows built in Go next to the declared ones.
func WithWorkflows(wfs ...*workflow.Workflow) Option {
	return func(s *settings) {
		s.workflows = append(s.workflows, wfs...)
	}
}

// WithLifecycleHooks registers extra observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *settings) {
		s.hooks = append(s.hooks, hooks)
	}
}

// WithOrchestratorOptions passes options through to orchestrator.New.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(s *settings) {
		s.orchOpts = append(s.orchOpts, opts...)
	}
}

// New assembles a Conductor from cfg. A nil cfg means DefaultConfig().
// ctx bounds the connection checks made while opening stores.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Conductor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		level, _ := logging.ParseLevel(cfg.LogLevel)
		s.logger = logging.NewWithWriter(os.Stderr, cfg.LogFormat, level)
	}
	if s.registry == nil {
		s.registry = registry.Builtins()
	}

	c := &Conductor{
		Config:   cfg,
		Registry: s.registry,
		metrics:  prometheus.NewRegistry(),
		logger:   s.logger,
	}
	c.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = observability.NewMetrics(c.metrics)
	c.Streams = httpadapter.NewStreamManager(s.logger)

	store, logs, locker, err := c.openStores(ctx, s)
	if err != nil {
		c.Close()
		return nil, err
	}
	store, err = c.wrapStore(store)
	if err != nil {
		c.Close()
		return nil, err
	}

	m := s.messenger
	if m == nil {
		m = newMessenger(cfg.Messengers(), s.logger, s.consoleOut)
	}

	hooks := append([]domain.LifecycleHooks{
		observability.LoggingHooks(s.logger),
		c.Metrics.Hooks(),
		c.Streams.Hooks(),
	}, s.hooks...)

	orchOpts := []orchestrator.Option{
		orchestrator.WithStore(store),
		orchestrator.WithLogStore(logs),
		orchestrator.WithMessenger(m),
		orchestrator.WithHooks(observability.Combine(hooks...)),
		orchestrator.WithLockTTL(cfg.Store.LockTTL),
		orchestrator.WithLogger(s.logger),
	}
	if locker != nil {
		orchOpts = append(orchOpts, orchestrator.WithLocker(locker))
	}
	c.Orchestrator = orchestrator.New(append(orchOpts, s.orchOpts...)...)

	if err := c.loadTools(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.loadDefinitions(); err != nil {
		c.Close()
		return nil, err
	}
	for _, wf := range s.workflows {
		if err := c.RegisterWorkflow(wf); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Conductor) openStores(ctx context.Context, s *settings) (ports.TaskStore, ports.LogStore, ports.DistributedLocker, error) {
	cfg := c.Config.Store
	switch cfg.Backend {
	case config.BackendFile:
		return file.New(cfg.Dir), file.NewLogStore(cfg.LogPath), nil, nil

	case config.BackendRedis:
		client := s.redisClient
		if client == nil {
			client = redisadapter.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			c.closers = append(c.closers, client.Close)
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		opts := []redisadapter.Option{redisadapter.WithPrefix(cfg.Redis.Prefix), redisadapter.WithTTL(cfg.Redis.TTL)}
		var locker ports.DistributedLocker
		if cfg.DistributedLock {
			locker = redisadapter.NewLocker(client, opts...)
		}
		return redisadapter.NewFromClient(client, opts...), redisadapter.NewLogStore(client, opts...), locker, nil

	default:
		return memory.NewStore(), memory.NewLogStore(), nil, nil
	}
}

// wrapStore applies PII masking before encryption, so masked values are what gets encrypted.
func (c *Conductor) wrapStore(store ports.TaskStore) (ports.TaskStore, error) {
	var mws []middleware.Middleware
	if keys := c.Config.Security.PIIKeys; len(keys) > 0 {
		patterns := make([]string, len(keys))
		for i, k := range keys {
			patterns[i] = "(?i)^" + regexp.QuoteMeta(k) + "$"
		}
		mws = append(mws, middleware.NewPIIMiddleware(patterns))
	}
	active, fallback, err := c.Config.Security.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	return middleware.Chain(store, mws...), nil
}

// newMessenger builds the configured messengers, fanning out when several are listed.
func newMessenger(kinds []string, logger *slog.Logger, consoleOut io.Writer) ports.Messenger {
	var targets messenger.Multi
	for _, kind := range kinds {
		switch kind {
		case config.MessengerNone:
			return messenger.NewRecorder()
		case config.MessengerLog:
			targets = append(targets, messenger.NewLog(logger))
		default:
			var opts []messenger.ConsoleOption
			if consoleOut != nil {
				opts = append(opts, messenger.WithWriter(consoleOut))
			}
			targets = append(targets, messenger.NewConsole(opts...))
		}
	}
	if len(targets) == 1 {
		return targets[0]
	}
	return targets
}

// loadTools allow-lists the commands of the tools file as `call` tools.
func (c *Conductor) loadTools() error {
	c.Tools = process.NewRunner()
	if c.Config.ToolsFile == "" {
		return nil
	}
	tools, err := process.LoadTools(c.Config.ToolsFile)
	if err != nil {
		return err
	}
	c.Tools = process.NewRunner(process.WithTools(tools...))
	c.Tools.Install(c.Registry)
	c.logger.Debug("process tools registered", "file", c.Config.ToolsFile, "tools", c.Tools.Names())
	return nil
}

func (c *Conductor) loadDefinitions() error {
	dir := c.Config.WorkflowsDir
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		c.logger.Debug("workflows directory not found, skipping", "dir", dir)
		return nil
	}

	defs, err := definition.LoadPath(dir)
	if err != nil {
		return err
	}
	wfs, err := definition.BuildAll(defs, c.Registry, c.logger)
	if err != nil {
		return err
	}
	for i, wf := range wfs {
		definition.RegisterMessages(defs[i], c.Messenger())
		if err := c.RegisterWorkflow(wf); err != nil {
			return fmt.Errorf("%s: %w", defs[i].Source, err)
		}
	}
	c.Definitions = defs
	c.logger.Info("workflows loaded", "dir", dir, "count", len(wfs))
	return nil
}

// Logger returns the logger the conductor was built with.
func (c *Conductor) Logger() *slog.Logger {
	return c.logger
}

// Gatherer returns the registry holding the conductor and runtime metrics.
func (c *Conductor) Gatherer() prometheus.Gatherer {
	return c.metrics
}

// HTTPHandler returns the REST API, wired to the conductor's metrics and streams.
func (c *Conductor) HTTPHandler() http.Handler {
	return httpadapter.NewHandler(c.Orchestrator,
		httpadapter.WithStreams(c.Streams),
		httpadapter.WithGatherer(c.metrics),
		httpadapter.WithVersion(strings.TrimSpace(Version)),
		httpadapter.WithLogger(c.logger),
	)
}

// MCPServer returns an MCP server exposing the orchestrator.
func (c *Conductor) MCPServer() *mcpadapter.Server {
	return mcpadapter.NewServer(c.Orchestrator, strings.TrimSpace(Version), mcpadapter.WithLogger(c.logger))
}

// Close releases connections opened by New.
func (c *Conductor) Close() error {
	var errs []error
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	c.closers = nil
	return errors.Join(errs...)
}

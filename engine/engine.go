// Package engine boots the execution pipeline with its registries, session
// store, event bus, and hot-reload coordinators, wired from a single Config.
// It is the embedding surface for servers and tools: construct once, call
// Execute per request, Shutdown on exit.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/promptforge/promptforge/events"
	"github.com/promptforge/promptforge/framework"
	"github.com/promptforge/promptforge/gate"
	"github.com/promptforge/promptforge/logger"
	"github.com/promptforge/promptforge/metrics/prometheus"
	"github.com/promptforge/promptforge/pipeline"
	"github.com/promptforge/promptforge/prompt"
	"github.com/promptforge/promptforge/resource"
	"github.com/promptforge/promptforge/scripts"
	"github.com/promptforge/promptforge/session"
	"github.com/promptforge/promptforge/style"
	"github.com/promptforge/promptforge/types"
	"github.com/promptforge/promptforge/version"
)

// Engine owns the pipeline and everything it depends on.
type Engine struct {
	cfg  *Config
	bus  *events.Bus
	deps *pipeline.Deps
	pipe *pipeline.Pipeline

	roots        map[resource.Kind]string
	tracker      *resource.ChangeTracker
	coordinators []*resource.Coordinator
	exporter     *prometheus.Exporter
	redis        *redis.Client
}

// New builds an engine from the configuration: registries loaded from their
// resolved roots, the session backend, gate evaluator, script runner, event
// bus with the metrics listener attached, and the pipeline on top. Watchers
// and the metrics endpoint start later, in Start.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := parseLogLevel(cfg.LogLevel)
	logger.SetLevel(level)

	bus := events.NewBus()
	bus.SubscribeAll(prometheus.NewMetricsListener().Handle)

	e := &Engine{
		cfg:   cfg,
		bus:   bus,
		roots: make(map[resource.Kind]string),
	}

	if cfg.JournalPath != "" {
		tracker, err := resource.NewChangeTracker(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("opening change journal: %w", err)
		}
		e.tracker = tracker
	}

	deps := &pipeline.Deps{
		Prompts:    prompt.NewRegistry(),
		Gates:      gate.NewRegistry(),
		Frameworks: framework.NewRegistry(),
		Styles:     style.NewRegistry(),
		Bus:        bus,
		Config:     cfg.pipelineConfig(),
	}
	if err := e.loadRegistries(deps); err != nil {
		return nil, err
	}
	e.detectDrift()

	sessions, err := e.openSessionStore()
	if err != nil {
		return nil, err
	}
	deps.Sessions = sessions

	executor := &scripts.ShellExecutor{Timeout: cfg.Scripts.Timeout}
	deps.Scripts = scripts.NewRunner(executor)
	deps.Evaluator = gate.NewEvaluator(gate.WithShellRunner(executor))

	if cfg.Metrics.Enabled {
		e.exporter = prometheus.NewExporter(cfg.Metrics.Addr)
	}

	e.deps = deps
	e.pipe = pipeline.New(deps)
	logger.Info("engine ready", version.LogAttrs()...)
	return e, nil
}

// loadRegistries resolves each kind's root and loads it. A kind with no
// resolvable root is skipped; methodologies fall back to the built-ins.
func (e *Engine) loadRegistries(deps *pipeline.Deps) error {
	load := map[resource.Kind]func(string) error{
		resource.KindPrompt:      deps.Prompts.LoadRoot,
		resource.KindGate:        deps.Gates.LoadRoot,
		resource.KindStyle:       deps.Styles.LoadRoot,
		resource.KindMethodology: deps.Frameworks.LoadRoot,
	}
	for _, kind := range []resource.Kind{
		resource.KindPrompt, resource.KindGate, resource.KindStyle, resource.KindMethodology,
	} {
		root, err := resource.ResolveRoot(e.cfg.ResourceBase, kind)
		if err != nil {
			logger.Debug("no resource root for kind", "kind", kind, "error", err)
			continue
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			logger.Debug("resource root missing, skipping", "kind", kind, "root", root)
			continue
		}
		if err := load[kind](root); err != nil {
			return fmt.Errorf("loading %s root %s: %w", kind, root, err)
		}
		e.roots[kind] = root
	}
	return nil
}

// detectDrift compares the resolved roots against the change journal and
// logs files that changed while the process was down.
func (e *Engine) detectDrift() {
	if e.tracker == nil {
		return
	}
	for kind, root := range e.roots {
		changes, err := e.tracker.DetectExternalChanges(root)
		if err != nil {
			logger.Warn("drift detection failed", "kind", kind, "root", root, "error", err)
			continue
		}
		for _, ch := range changes {
			logger.Warn("resource changed outside the process",
				"kind", kind, "path", ch.Path, "change", ch.Change)
		}
	}
}

func (e *Engine) openSessionStore() (session.Store, error) {
	switch e.cfg.Session.Backend {
	case SessionBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     e.cfg.Session.Redis.Addr,
			Password: e.cfg.Session.Redis.Password,
			DB:       e.cfg.Session.Redis.DB,
		})
		e.redis = client
		var opts []session.RedisOption
		if e.cfg.Session.TTL > 0 {
			opts = append(opts, session.WithTTL(e.cfg.Session.TTL))
		}
		if e.cfg.Session.Redis.Prefix != "" {
			opts = append(opts, session.WithPrefix(e.cfg.Session.Redis.Prefix))
		}
		return session.NewRedisStore(client, opts...), nil
	default:
		var opts []session.MemoryOption
		if e.cfg.Session.TTL > 0 {
			opts = append(opts, session.WithMemoryTTL(e.cfg.Session.TTL))
		}
		return session.NewMemoryStore(opts...), nil
	}
}

// Start brings up the optional runtime pieces: the metrics endpoint and, when
// hot reload is enabled, one watcher coordinator per resolved resource root.
func (e *Engine) Start(ctx context.Context) error {
	if e.exporter != nil {
		if err := e.exporter.Start(); err != nil {
			return fmt.Errorf("starting metrics endpoint: %w", err)
		}
	}
	if !e.cfg.HotReload {
		return nil
	}

	appliers := map[resource.Kind]resource.Applier{
		resource.KindPrompt:      e.deps.Prompts,
		resource.KindGate:        e.deps.Gates,
		resource.KindStyle:       e.deps.Styles,
		resource.KindMethodology: e.deps.Frameworks,
	}
	emitter := events.NewEmitter(e.bus, "", "", "")
	for kind, root := range e.roots {
		c := resource.NewCoordinator(kind, root, appliers[kind], e.tracker, emitter)
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("watching %s root %s: %w", kind, root, err)
		}
		e.coordinators = append(e.coordinators, c)
	}
	return nil
}

// Execute runs one request through the pipeline.
func (e *Engine) Execute(ctx context.Context, req *types.ExecutionRequest) (*types.ExecutionResponse, error) {
	return e.pipe.Execute(ctx, req)
}

// Shutdown drains in-flight requests and releases everything Start and New
// acquired. Bounded by the context deadline.
func (e *Engine) Shutdown(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	keep(e.pipe.Shutdown(ctx))
	for _, c := range e.coordinators {
		c.Stop()
	}
	if e.exporter != nil {
		keep(e.exporter.Shutdown(ctx))
	}
	if e.redis != nil {
		keep(e.redis.Close())
	}
	e.bus.Close()
	return first
}

// Accessors for embedding surfaces (tool handlers, admin endpoints).

func (e *Engine) Prompts() *prompt.Registry       { return e.deps.Prompts }
func (e *Engine) Gates() *gate.Registry           { return e.deps.Gates }
func (e *Engine) Frameworks() *framework.Registry { return e.deps.Frameworks }
func (e *Engine) Styles() *style.Registry         { return e.deps.Styles }
func (e *Engine) Sessions() session.Store         { return e.deps.Sessions }
func (e *Engine) Bus() *events.Bus                { return e.bus }

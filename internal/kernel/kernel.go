// Package kernel wires the runtime together: cache, cooldowns, hooks,
// registry, router, plugins, alerts, metrics and storage, plus the worker
// pool that runs dispatches concurrently.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/config"
	"github.com/keshon/chatkernel/internal/cooldown"
	"github.com/keshon/chatkernel/internal/hook"
	"github.com/keshon/chatkernel/internal/logging"
	"github.com/keshon/chatkernel/internal/manifest"
	"github.com/keshon/chatkernel/internal/monitor"
	"github.com/keshon/chatkernel/internal/plugin"
	"github.com/keshon/chatkernel/internal/router"
	"github.com/keshon/chatkernel/internal/storage"
	"github.com/keshon/chatkernel/internal/storage/datastore"
	"github.com/keshon/chatkernel/pkg/cache"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/keshon/chatkernel/pkg/jobmgr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	ErrNotRunning     = errors.New("kernel is not running")
	ErrAlreadyStarted = errors.New("kernel was already started")
	ErrQueueFull      = errors.New("dispatch queue is full")
)

// Event is one inbound command waiting for a worker.
type Event struct {
	Command string
	Context *cmd.Context
	// Done receives the dispatch result. When nil, the kernel replies with
	// the rendered error instead.
	Done func(err error)
}

type Kernel struct {
	cfg     *config.Config
	log     zerolog.Logger
	now     func() time.Time
	reg     prometheus.Registerer
	catalog *plugin.Catalog

	Cache    *cache.Cache
	Cooldown *cooldown.Tracker
	Alerts   *alert.Service
	Monitor  *monitor.Monitor
	Hooks    *hook.Pipeline
	Registry *cmd.Registry
	Router   *router.Router
	Plugins  *plugin.Manager
	Storage  *storage.Storage
	Jobs     *jobmgr.Manager

	runMu   sync.RWMutex
	running bool
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan Event
	workers sync.WaitGroup
	unsub   func()
}

type Option func(*Kernel)

// WithCatalog replaces the default plugin catalog.
func WithCatalog(c *plugin.Catalog) Option {
	return func(k *Kernel) { k.catalog = c }
}

// WithRegisterer registers the monitor's collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(k *Kernel) { k.reg = reg }
}

// WithClock replaces time.Now across every component.
func WithClock(now func() time.Time) Option {
	return func(k *Kernel) {
		if now != nil {
			k.now = now
		}
	}
}

// New builds every component from cfg. Nothing runs until Start.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Kernel, error) {
	k := &Kernel{
		cfg:     cfg,
		log:     logging.Component(log, "kernel"),
		now:     time.Now,
		catalog: plugin.DefaultCatalog,
	}
	for _, opt := range opts {
		opt(k)
	}

	k.Cache = cache.New(
		cache.WithDefaultTTL(cfg.CacheDefaultTTL),
		cache.WithSweepInterval(cfg.CacheSweepInterval),
		cache.WithClock(k.now),
	)
	k.Cooldown = cooldown.New(k.Cache, k.now)
	k.Alerts = alert.NewService(
		alert.WithLimit(cfg.AlertLimit),
		alert.WithLogger(logging.Component(log, "alert")),
		alert.WithClock(k.now),
	)
	k.Monitor = monitor.New(
		monitor.WithInterval(cfg.MetricsInterval),
		monitor.WithHistory(cfg.MetricsHistory),
		monitor.WithCache(k.Cache),
		monitor.WithLogger(logging.Component(log, "monitor")),
		monitor.WithClock(k.now),
	)
	if k.reg != nil {
		if err := k.Monitor.Register(k.reg); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	k.Hooks = hook.New(k.Alerts)
	k.Registry = cmd.NewRegistry()
	k.Router = router.New(k.Registry, k.Hooks, k.Cooldown,
		router.WithCache(k.Cache),
		router.WithAlerts(k.Alerts),
		router.WithRecorder(k.Monitor),
		router.WithLogger(logging.Component(log, "router")),
		router.WithClock(k.now),
	)

	if cfg.StoragePath != "" {
		dsCfg := datastore.DefaultConfig(cfg.StoragePath)
		dsCfg.Log = logging.Component(log, "datastore")
		store, err := storage.Open(dsCfg)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		k.Storage = store
		for _, d := range []hook.Descriptor{store.HistoryHook(k.now), store.ToggleHook(k.Registry.Resolve)} {
			if err := k.Hooks.Register(d); err != nil {
				return nil, fmt.Errorf("register %s hook: %w", d.Name, err)
			}
		}
	}

	k.Jobs = jobmgr.NewManager(context.Background(), logging.Component(log, "jobs"))
	k.Plugins = plugin.NewManager(k.Registry, k.Hooks,
		plugin.WithCatalog(k.catalog),
		plugin.WithAlerts(k.Alerts),
		plugin.WithLogger(logging.Component(log, "plugin")),
		plugin.WithClock(k.now),
		plugin.WithEnv(plugin.Env{
			Cache:   k.Cache,
			Alerts:  k.Alerts,
			Monitor: k.Monitor,
			Storage: k.Storage,
			Jobs:    k.Jobs,
			Prefix:  cfg.CommandPrefix,
			Log:     logging.Component(log, "plugin"),
		}),
	)
	return k, nil
}

// Start launches background jobs and workers, then loads the plugins named
// by the manifest. A plugin that fails to load is reported and skipped.
// A Kernel can be started once.
func (k *Kernel) Start(ctx context.Context) error {
	k.runMu.Lock()
	if k.started {
		k.runMu.Unlock()
		return ErrAlreadyStarted
	}
	k.started = true
	k.running = true
	k.ctx, k.cancel = context.WithCancel(ctx)
	k.queue = make(chan Event, k.cfg.QueueSize)
	k.runMu.Unlock()

	k.Alerts.Start()
	k.Monitor.Start()
	if k.Storage != nil {
		k.unsub = k.Alerts.Subscribe(k.Storage.ArchiveSubscriber(func(err error) {
			k.log.Warn().Err(err).Msg("archive alert")
		}))
	}

	workers := max(k.cfg.Workers, 1)
	for i := 0; i < workers; i++ {
		k.workers.Add(1)
		go k.worker()
	}

	if err := k.startJobs(); err != nil {
		return errors.Join(fmt.Errorf("start background jobs: %w", err), k.Stop(context.WithoutCancel(ctx)))
	}
	k.log.Info().Int("workers", workers).Int("queue", k.cfg.QueueSize).Msg("kernel started")

	return k.loadPlugins(ctx)
}

func (k *Kernel) startJobs() error {
	if err := k.Jobs.Start("cache-sweep", k.Cache.Run); err != nil {
		return err
	}
	if k.Storage != nil {
		return k.Jobs.Start("datastore-autosave", k.Storage.Run)
	}
	return nil
}

func (k *Kernel) loadPlugins(ctx context.Context) error {
	m, err := manifest.Load(k.cfg.PluginManifest, k.catalog.Names())
	if err != nil {
		return fmt.Errorf("plugin manifest: %w", err)
	}
	for _, name := range m.Enabled() {
		if _, err := k.Plugins.LoadByName(ctx, name); err != nil {
			// The manager already alerted; keep loading the rest.
			k.log.Warn().Err(err).Str("plugin", name).Msg("plugin not loaded")
		}
	}
	k.log.Info().Strs("active", k.Plugins.Active()).Bool("implicit_manifest", m.Implicit).Msg("plugins loaded")
	return nil
}

// Stop unloads every plugin, drains the queue and stops background work.
func (k *Kernel) Stop(ctx context.Context) error {
	k.runMu.Lock()
	if !k.running {
		k.runMu.Unlock()
		return nil
	}
	k.running = false
	close(k.queue)
	k.runMu.Unlock()

	k.workers.Wait()
	k.cancel()

	err := k.Plugins.UnloadAll(ctx)
	k.Jobs.StopAll()
	k.Monitor.Stop()
	if k.unsub != nil {
		k.unsub()
	}
	k.Alerts.Stop()
	if k.Storage != nil {
		err = errors.Join(err, k.Storage.Close())
	}
	k.log.Info().Msg("kernel stopped")
	return err
}

// Running reports whether Start succeeded and Stop has not been called.
func (k *Kernel) Running() bool {
	k.runMu.RLock()
	defer k.runMu.RUnlock()
	return k.running
}

// Submit queues ev for a worker. It never blocks: a full queue is reported
// as ErrQueueFull.
func (k *Kernel) Submit(ev Event) error {
	k.runMu.RLock()
	defer k.runMu.RUnlock()
	if !k.running {
		return ErrNotRunning
	}
	select {
	case k.queue <- ev:
		return nil
	default:
		k.Alerts.Send(alert.Alert{
			Type:     alert.TypeWarning,
			Title:    "Dispatch queue full",
			Message:  "dropped " + ev.Command,
			Metadata: map[string]string{"command": ev.Command, "queue": fmt.Sprint(cap(k.queue))},
		})
		return ErrQueueFull
	}
}

// Dispatch runs a command in the calling goroutine.
func (k *Kernel) Dispatch(ctx context.Context, name string, c *cmd.Context) error {
	return k.Router.Dispatch(ctx, name, c)
}

func (k *Kernel) worker() {
	defer k.workers.Done()
	for ev := range k.queue {
		k.handle(ev)
	}
}

func (k *Kernel) handle(ev Event) {
	c := ev.Context
	if c == nil {
		c = &cmd.Context{}
	}
	err := k.Router.Dispatch(k.ctx, ev.Command, c)
	if ev.Done != nil {
		ev.Done(err)
		return
	}
	if msg, ok := Present(err); ok {
		if rerr := c.Reply(k.ctx, msg); rerr != nil && !errors.Is(rerr, cmd.ErrNoReplier) {
			k.log.Warn().Err(rerr).Str("command", ev.Command).Msg("reply failed")
		}
	}
}

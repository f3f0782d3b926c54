package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/hook"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/rs/zerolog"
)

type record struct {
	source Source
	plugin Plugin
	hooks  []hookRef
	desc   Descriptor
}

type hookRef struct {
	event, name string
}

// Manager owns the plugin table and moves plugins through their lifecycle.
// It is safe for concurrent use; lifecycle calls for different plugins may
// overlap, calls for the same plugin are refused while it is busy.
type Manager struct {
	registry *cmd.Registry
	hooks    *hook.Pipeline
	catalog  *Catalog
	alerts   alert.Sink
	log      zerolog.Logger
	now      func() time.Time
	env      Env

	mu      sync.RWMutex
	plugins map[string]*record
	order   []string // active plugins in load order

	lmu          sync.RWMutex
	listeners    map[int]Listener
	nextListener int
}

// Option configures a Manager.
type Option func(*Manager)

// WithCatalog sets the catalog LoadByName reads from.
func WithCatalog(c *Catalog) Option {
	return func(m *Manager) {
		if c != nil {
			m.catalog = c
		}
	}
}

// WithAlerts sets where lifecycle failures are reported.
func WithAlerts(s alert.Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.alerts = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithEnv sets what sources receive. Env.Plugins is always the manager.
func WithEnv(env Env) Option {
	return func(m *Manager) { m.env = env }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager returns a manager registering plugin commands in registry and
// plugin hooks in hooks.
func NewManager(registry *cmd.Registry, hooks *hook.Pipeline, opts ...Option) *Manager {
	m := &Manager{
		registry:  registry,
		hooks:     hooks,
		catalog:   DefaultCatalog,
		alerts:    alert.Discard,
		log:       zerolog.Nop(),
		now:       time.Now,
		plugins:   make(map[string]*record),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.env.Plugins = m
	m.env.Registry = registry
	return m
}

// Catalog returns the catalog LoadByName reads from.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// LoadByName loads a plugin from the catalog.
func (m *Manager) LoadByName(ctx context.Context, name string) (Descriptor, error) {
	src, ok := m.catalog.Get(name)
	if !ok {
		return Descriptor{}, fmt.Errorf("plugin %q: %w in catalog", name, ErrNotFound)
	}
	return m.Load(ctx, src)
}

// Load builds a plugin from src, checks its dependencies and names,
// initializes it and registers its commands and hooks. On any failure the
// plugin ends Failed with nothing registered.
func (m *Manager) Load(ctx context.Context, src Source) (Descriptor, error) {
	p, err := m.build(src)
	if err != nil {
		return Descriptor{}, err
	}
	name := p.Name()
	cmds := p.Commands()
	hks := p.Hooks()

	m.mu.Lock()
	if rec, exists := m.plugins[name]; exists && (rec.desc.State == StateActive || rec.desc.State.busy()) {
		state := rec.desc.State
		m.mu.Unlock()
		return Descriptor{}, fmt.Errorf("plugin %q is %s: %w", name, state, ErrAlreadyLoaded)
	}
	rec := &record{
		source: src,
		plugin: p,
		desc: Descriptor{
			Name:         name,
			Version:      p.Version(),
			Dependencies: append([]string(nil), p.Dependencies()...),
			State:        StateLoading,
			UpdatedAt:    m.now(),
		},
	}
	m.plugins[name] = rec
	preErr := m.precheck(name, rec.desc.Dependencies, cmds, hks)
	if preErr != nil {
		m.setFailedLocked(rec, preErr)
	}
	m.mu.Unlock()

	if preErr != nil {
		return m.failed(rec, preErr)
	}

	m.log.Debug().Str("plugin", name).Str("version", rec.desc.Version).Msg("initializing plugin")
	if err := m.call(func() error { return p.Initialize(ctx) }); err != nil {
		lerr := &LoadError{Plugin: name, Stage: "initialize", Err: err}
		m.mu.Lock()
		m.setFailedLocked(rec, lerr)
		m.mu.Unlock()
		return m.failed(rec, lerr)
	}

	refs, err := m.register(name, cmds, hks)
	if err != nil {
		lerr := &LoadError{Plugin: name, Stage: "register", Err: err}
		if derr := m.call(func() error { return p.Destroy(ctx) }); derr != nil {
			lerr.Err = errors.Join(err, fmt.Errorf("destroy: %w", derr))
		}
		m.mu.Lock()
		m.setFailedLocked(rec, lerr)
		m.mu.Unlock()
		return m.failed(rec, lerr)
	}

	m.mu.Lock()
	now := m.now()
	rec.desc.State = StateActive
	rec.desc.Err = nil
	rec.desc.Commands = commandNames(cmds)
	rec.hooks = refs
	rec.desc.Hooks = hookKeys(refs)
	rec.desc.LoadedAt = now
	rec.desc.UpdatedAt = now
	m.order = append(m.order, name)
	out := rec.desc.clone()
	m.mu.Unlock()

	m.log.Info().
		Str("plugin", name).
		Str("version", out.Version).
		Int("commands", len(out.Commands)).
		Int("hooks", len(out.Hooks)).
		Msg("plugin loaded")
	m.emit(Event{Type: EventLoaded, Plugin: name})
	return out, nil
}

func (m *Manager) build(src Source) (p Plugin, err error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidPlugin)
	}
	err = m.call(func() error {
		p = src(m.env)
		return nil
	})
	if err != nil {
		return nil, &LoadError{Stage: "source", Err: err}
	}
	if p == nil || p.Name() == "" {
		return nil, fmt.Errorf("%w: source returned no plugin or an unnamed one", ErrInvalidPlugin)
	}
	return p, nil
}

// precheck runs with m.mu held.
func (m *Manager) precheck(name string, deps []string, cmds []cmd.Command, hks []hook.Descriptor) error {
	var missing []string
	for _, dep := range deps {
		rec, ok := m.plugins[dep]
		if !ok || rec.desc.State != StateActive {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &UnmetDependencyError{Plugin: name, Missing: missing}
	}
	if err := m.registry.Check(cmds...); err != nil {
		return err
	}
	return m.hooks.Check(hks...)
}

// register adds cmds and hks, undoing everything on failure.
func (m *Manager) register(name string, cmds []cmd.Command, hks []hook.Descriptor) ([]hookRef, error) {
	if err := m.registry.Register(name, cmds...); err != nil {
		return nil, err
	}
	refs := make([]hookRef, 0, len(hks))
	for i, h := range hks {
		if err := m.hooks.Register(h); err != nil {
			for _, done := range hks[:i] {
				m.hooks.Unregister(done.Event, done.Name)
			}
			m.registry.UnregisterOwner(name)
			return nil, err
		}
		refs = append(refs, hookRef{event: h.Event, name: h.Name})
	}
	return refs, nil
}

// setFailedLocked runs with m.mu held.
func (m *Manager) setFailedLocked(rec *record, err error) {
	rec.desc.State = StateFailed
	rec.desc.Err = err
	rec.desc.Commands = nil
	rec.desc.Hooks = nil
	rec.desc.UpdatedAt = m.now()
}

func (m *Manager) failed(rec *record, err error) (Descriptor, error) {
	m.mu.RLock()
	out := rec.desc.clone()
	m.mu.RUnlock()

	m.log.Error().Err(err).Str("plugin", out.Name).Msg("plugin failed to load")
	m.alerts.Send(alert.Alert{
		Type:    alert.TypeError,
		Title:   "Plugin failed to load",
		Message: err.Error(),
		Metadata: map[string]string{
			"plugin":  out.Name,
			"version": out.Version,
		},
	})
	m.emit(Event{Type: EventFailed, Plugin: out.Name, Err: err})
	return out, err
}

// Unload removes an active plugin's commands and hooks and then destroys
// it. Cleanup problems are reported as alerts, not returned; only a refused
// unload returns an error.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	rec, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", name, ErrNotFound)
	}
	if rec.desc.State != StateActive {
		state := rec.desc.State
		m.mu.Unlock()
		return fmt.Errorf("plugin %q is %s: %w", name, state, ErrNotActive)
	}
	if deps := m.dependentsLocked(name); len(deps) > 0 {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q needed by %s: %w", name, strings.Join(deps, ", "), ErrHasDependents)
	}
	rec.desc.State = StateUnloading
	rec.desc.UpdatedAt = m.now()
	owned := rec.desc.Commands
	refs := rec.hooks
	m.removeFromOrderLocked(name)
	m.mu.Unlock()

	var errs []error
	func() {
		defer func() {
			if err := m.call(func() error { return rec.plugin.Destroy(ctx) }); err != nil {
				errs = append(errs, fmt.Errorf("destroy: %w", err))
			}
		}()
		removed := m.registry.UnregisterOwner(name)
		if len(removed) != len(owned) {
			errs = append(errs, fmt.Errorf("expected to remove commands %v, removed %v", owned, removed))
		}
		for _, ref := range refs {
			if !m.hooks.Unregister(ref.event, ref.name) {
				errs = append(errs, fmt.Errorf("hook %s/%s was already gone", ref.event, ref.name))
			}
		}
	}()

	cleanupErr := errors.Join(errs...)
	m.mu.Lock()
	rec.desc.State = StateUnloaded
	rec.desc.Err = cleanupErr
	rec.desc.Commands = nil
	rec.desc.Hooks = nil
	rec.hooks = nil
	rec.desc.UpdatedAt = m.now()
	m.mu.Unlock()

	if cleanupErr != nil {
		m.log.Warn().Err(cleanupErr).Str("plugin", name).Msg("plugin unloaded with errors")
		m.alerts.Send(alert.Alert{
			Type:     alert.TypeWarning,
			Title:    "Plugin cleanup failed",
			Message:  cleanupErr.Error(),
			Metadata: map[string]string{"plugin": name},
		})
	} else {
		m.log.Info().Str("plugin", name).Msg("plugin unloaded")
	}
	m.emit(Event{Type: EventUnloaded, Plugin: name, Err: cleanupErr})
	return nil
}

// Reload unloads an active plugin and loads a fresh instance from the same
// source. It is not atomic: if the second load fails the plugin stays
// Failed. Plugins that are Failed or Unloaded are simply loaded again.
func (m *Manager) Reload(ctx context.Context, name string) error {
	m.mu.RLock()
	rec, ok := m.plugins[name]
	var state State
	var src Source
	if ok {
		state = rec.desc.State
		src = rec.source
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("plugin %q: %w", name, ErrNotFound)
	}
	if state == StateActive {
		if err := m.Unload(ctx, name); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
	}
	if _, err := m.Load(ctx, src); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	m.emit(Event{Type: EventReloaded, Plugin: name})
	return nil
}

// UnloadAll unloads active plugins in reverse load order.
func (m *Manager) UnloadAll(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, len(m.order))
	for i, name := range m.order {
		names[len(m.order)-1-i] = name
	}
	m.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := m.Unload(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns a snapshot of one plugin.
func (m *Manager) Get(name string) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.plugins[name]
	if !ok {
		return Descriptor{}, false
	}
	return rec.desc.clone(), true
}

// List returns snapshots of every known plugin, sorted by name.
func (m *Manager) List() []Descriptor {
	m.mu.RLock()
	out := make([]Descriptor, 0, len(m.plugins))
	for _, rec := range m.plugins {
		out = append(out, rec.desc.clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Active returns the names of active plugins in load order.
func (m *Manager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

func (m *Manager) dependentsLocked(name string) []string {
	var out []string
	for other, rec := range m.plugins {
		if other == name || rec.desc.State != StateActive {
			continue
		}
		for _, dep := range rec.desc.Dependencies {
			if dep == name {
				out = append(out, other)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func (m *Manager) removeFromOrderLocked(name string) {
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// call runs plugin code, turning a panic into an error.
func (m *Manager) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}

func commandNames(cmds []cmd.Command) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, cmd.Normalize(c.Name()))
	}
	sort.Strings(out)
	return out
}

func hookKeys(refs []hookRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.event+"/"+r.name)
	}
	return out
}

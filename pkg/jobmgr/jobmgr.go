// Package jobmgr runs named background jobs with cancellation and tracks
// which of them are still running.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(ctx, logger)
//	err := jm.Start("cache-sweep", func(ctx context.Context) error {
//	    return c.Run(ctx)
//	})
//	...
//	jm.StopAll() // cancels every job and waits for them to return
//
// There is no retry and no persistence. A job is forgotten once its func
// returns.
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrRunning    = errors.New("job already running")
	ErrNotRunning = errors.New("job not running")
	ErrStopped    = errors.New("job manager stopped")
)

// State is a lifecycle step of a job.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Status is reported for every state change.
type Status struct {
	Job   string
	State State
	Err   error
}

// Reporter receives job status changes. It may be nil.
type Reporter func(Status)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts, stops and tracks jobs. It is safe for concurrent use.
type Manager struct {
	ctx    context.Context
	log    zerolog.Logger
	report Reporter

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
	wg      sync.WaitGroup
}

// NewManager returns a manager whose jobs are cancelled when parent is.
func NewManager(parent context.Context, log zerolog.Logger) *Manager {
	if parent == nil {
		parent = context.Background()
	}
	return &Manager{
		ctx:  parent,
		log:  log,
		jobs: make(map[string]*job),
	}
}

// OnStatus sets the reporter. Call before starting jobs.
func (m *Manager) OnStatus(r Reporter) { m.report = r }

// RunSync runs a job in the calling goroutine under the manager's context.
func (m *Manager) RunSync(name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	err := fn(ctx)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	return nil
}

// Start runs fn in its own goroutine. Only one job per name may run.
func (m *Manager) Start(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("job %q: %w", name, ErrRunning)
	}
	ctx, cancel := context.WithCancel(m.ctx)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer close(j.done)
		defer cancel()

		m.emit(Status{Job: name, State: StateRunning})
		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.emit(Status{Job: name, State: StateFailed, Err: err})
		} else {
			m.emit(Status{Job: name, State: StateDone})
		}

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Stop cancels a job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %q: %w", name, ErrNotRunning)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll cancels every job, waits for all of them and refuses new ones.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.stopped = true
	for _, j := range m.jobs {
		j.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// List returns the names of running jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Summary returns a one-line description of running jobs.
func (m *Manager) Summary() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) emit(s Status) {
	evt := m.log.Debug()
	if s.State == StateFailed {
		evt = m.log.Error().Err(s.Err)
	}
	evt.Str("job", s.Job).Str("state", string(s.State)).Msg("job status")
	if m.report != nil {
		m.report(s)
	}
}

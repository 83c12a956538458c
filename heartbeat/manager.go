package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/canonical/raftbeat/internal/task"
	"github.com/canonical/raftbeat/logger"
)

// Config carries the three tunables the heartbeat core needs at
// construction (§6).
type Config struct {
	// HeartbeatInterval is the nominal spacing between ticks and the
	// piggyback-elision window.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is the per-RPC transport deadline.
	HeartbeatTimeout time.Duration

	// SelfNodeID is the identity used to recognize self-targeted
	// batches.
	SelfNodeID NodeID
}

// Manager is the top-level orchestrator: it owns the timer, the
// registry, the gate for graceful shutdown, and the mutex serializing
// registry mutations against dispatch. The nesting it preserves is
// gate-open -> mutex-held -> dispatch-runs, composed as scoped
// acquisitions so early exits release in reverse order.
type Manager struct {
	cfg  Config
	opts *options

	registry   *Registry
	router     *Router
	dispatcher *Dispatcher

	// mu serializes registry mutation (RegisterGroup/DeregisterGroup)
	// against a running dispatch cycle. It is held for the whole
	// duration of one cycle, not just the planning step, so that a
	// group cannot be deregistered while its reply is still in flight
	// and being routed.
	mu      sync.Mutex
	started bool
	stopped bool

	stopScheduler  func(ctx context.Context) error
	resetScheduler func()
}

// NewManager builds a Manager. It does not start the timer; call Start
// for that.
func NewManager(cfg Config, transport Transport, opts ...Option) *Manager {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	registry := NewRegistry()
	router := NewRouter(registry)
	dispatcher := NewDispatcher(transport, cfg.SelfNodeID, cfg.HeartbeatTimeout, cfg.HeartbeatInterval, router)

	return &Manager{
		cfg:        cfg,
		opts:       o,
		registry:   registry,
		router:     router,
		dispatcher: dispatcher,
	}
}

// Start opens the gate, triggers an immediate dispatch, and arms the
// timer. It is idempotent only in the sense that calling it twice
// returns ErrAlreadyStarted; it must not have been stopped before.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}

	m.started = true
	m.mu.Unlock()

	m.stopScheduler, m.resetScheduler = task.Start(m.tick, task.Every(m.cfg.HeartbeatInterval))

	return nil
}

// Stop cancels the timer and closes the gate, then blocks until any
// in-flight dispatch cycle finishes or ctx is done. After Stop returns,
// further RegisterGroup/DeregisterGroup calls are rejected.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	alreadyStopped := m.stopped
	m.stopped = true
	stopScheduler := m.stopScheduler
	m.mu.Unlock()

	if alreadyStopped || stopScheduler == nil {
		return nil
	}

	return stopScheduler(ctx)
}

// RegisterGroup inserts handle into the registry under the mutex, so it
// cannot race with an in-progress dispatch. It fails fatally if the
// group is already present — a programmer error, per §4.1.
func (m *Manager) RegisterGroup(handle Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}

	m.registry.Insert(handle)
	return nil
}

// DeregisterGroup removes the group with the given id under the mutex.
// It fails fatally if the group is absent.
func (m *Manager) DeregisterGroup(id GroupID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}

	m.registry.Erase(id)
	return nil
}

// tick is the scheduler's Func: plan, then dispatch, under the mutex
// that serializes this cycle against register/deregister. Overlapping
// ticks are impossible because task.Start never runs two rounds
// concurrently, but the mutex is still what makes RegisterGroup and
// DeregisterGroup wait for a running cycle to finish.
func (m *Manager) tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		// An exception escaping a dispatch is logged at warn and the
		// timer is still re-armed by the scheduler, so long as the gate
		// is open; it must never propagate out of tick and kill the
		// scheduler goroutine.
		if r := recover(); r != nil {
			logger.Warn("Heartbeat dispatch cycle panicked", logger.Ctx{"panic": r})
		}
	}()

	now := m.opts.now()
	batches, reconnect := Plan(now, m.registry, m.cfg.HeartbeatInterval)
	m.dispatcher.Dispatch(ctx, batches, reconnect)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/troupe/internal/logging"
	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a distributed lock.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.SnapshotStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker    ports.DistributedLocker // Optional distributed locker
	lockTTL   time.Duration
	actorOpts []actor.Option
	logger    *slog.Logger // Logger for internal events (like deferred errors)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithActorOptions adds options to every actor created by Dispatch
// (hooks, clock, logger).
func WithActorOptions(opts ...actor.Option) Option {
	return func(m *Manager) {
		m.actorOpts = append(m.actorOpts, opts...)
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager with the given persistence store.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.PersistedSnapshot, error) {
	var snap *domain.PersistedSnapshot
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, sessionID)
		return err
	})
	return snap, err
}

// Save persists the session snapshot.
func (m *Manager) Save(ctx context.Context, sessionID string, snap *domain.PersistedSnapshot) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Save(ctx, sessionID, snap)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// A canceled request context must not leave the lock behind.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Result is the outcome of a dispatch.
type Result struct {
	// Previous is nil when the session was created by the dispatch.
	Previous *domain.PersistedSnapshot
	Snapshot *domain.PersistedSnapshot
}

// Created reports whether the dispatch created the session.
func (r *Result) Created() bool { return r.Previous == nil }

// Dispatch restores the session (or creates it with input when it does not
// exist), starts the actor, sends events in order, persists the resulting
// snapshot and stops the actor.
//
// Sending to a session that is done, stopped or failed returns
// domain.ErrActorStopped and leaves the store untouched. A failure while
// processing one of the events is not returned: it is recorded in the
// persisted snapshot (status error) and the remaining events are dropped.
func (m *Manager) Dispatch(ctx context.Context, sessionID string, logic actor.Logic, input any, events ...domain.Event) (*Result, error) {
	var res *Result
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		res, err = m.dispatch(ctx, sessionID, logic, input, events)
		return err
	})
	return res, err
}

func (m *Manager) dispatch(ctx context.Context, sessionID string, logic actor.Logic, input any, events []domain.Event) (*Result, error) {
	opts := append([]actor.Option{
		actor.WithSessionID(sessionID),
		actor.WithContext(ctx),
	}, m.actorOpts...)

	prev, err := m.store.Load(ctx, sessionID)
	var a *actor.Actor
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		a = actor.New(logic, append(opts, actor.WithInput(input))...)
	case err != nil:
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	default:
		if prev.LogicID != "" && prev.LogicID != logic.LogicID() {
			return nil, fmt.Errorf("session %s belongs to %q: %w", sessionID, prev.LogicID, domain.ErrLogicMismatch)
		}
		a, err = actor.Restore(logic, prev, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to restore session %s: %w", sessionID, err)
		}
	}

	if err := a.Start(); err != nil && a.Status() != actor.StatusErrored {
		return nil, fmt.Errorf("failed to start session %s: %w", sessionID, err)
	}
	defer a.Stop()

	if prev != nil && len(events) > 0 && a.Status() != actor.StatusRunning {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, prev.Status, domain.ErrActorStopped)
	}

	for _, ev := range events {
		if a.Status() != actor.StatusRunning {
			m.logger.Debug("event dropped", "session_id", sessionID, "event", ev.Type, "status", a.Status())
			continue
		}
		if err := a.Send(ev); err != nil {
			if a.Status() == actor.StatusErrored {
				m.logger.Warn("session failed while processing event",
					"session_id", sessionID,
					"event", ev.Type,
					"err", err,
				)
				continue
			}
			return nil, err
		}
	}

	snap, err := a.PersistedSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}
	if err := m.store.Save(ctx, sessionID, snap); err != nil {
		return nil, fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return &Result{Previous: prev, Snapshot: snap}, nil
}

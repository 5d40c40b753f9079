package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"weak"

	"github.com/aretw0/troupe/pkg/domain"
)

// ProcessStatus is the runtime status of an actor.
type ProcessStatus int

const (
	StatusNotStarted ProcessStatus = iota // Created; sends are buffered
	StatusRunning                         // Processing events
	StatusStopped                         // Stopped explicitly or completed
	StatusErrored                         // Failed; no further events are processed
)

func (s ProcessStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not-started"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusErrored:
		return "errored"
	default:
		return fmt.Sprintf("ProcessStatus(%d)", int(s))
	}
}

// Actor is a running instance of a Logic.
type Actor struct {
	id        string
	sessionID string
	systemID  string
	src       string
	input     any

	logic  Logic
	system *System
	parent weak.Pointer[Actor]
	logger *slog.Logger
	scope  *Scope

	ctx    context.Context
	cancel context.CancelFunc

	mailbox *mailbox

	mu         sync.RWMutex
	status     ProcessStatus
	snapshot   Snapshot
	initErr    error
	children   map[string]*Actor
	childOrder []string

	// deferred holds the effects of the step being processed and stopping
	// the children it detached. Only the caller currently processing the
	// actor touches them.
	deferred          []func() error
	stopping          []*Actor
	restoredScheduled []domain.ScheduledEvent

	subs subscriptions
	done chan struct{}
}

// New creates a root actor for the given logic.
// The initial snapshot is computed immediately; effects wait for Start.
func New(logic Logic, opts ...Option) *Actor {
	a := newActor(logic, nil, applyOptions(opts))
	a.initialize()
	return a
}

func newActor(logic Logic, parent *Actor, o options) *Actor {
	sys := o.system
	if sys == nil {
		if parent != nil {
			sys = parent.system
		} else {
			sys = o.newSystem()
		}
	}

	a := &Actor{
		sessionID: sys.newSessionID(),
		systemID:  o.systemID,
		src:       o.src,
		input:     o.input,
		logic:     logic,
		system:    sys,
		children:  make(map[string]*Actor),
		done:      make(chan struct{}),
	}
	if o.sessionID != "" {
		a.sessionID = o.sessionID
	}
	a.id = o.id
	if a.id == "" {
		a.id = a.sessionID
	}

	base := sys.ctx
	if parent != nil {
		a.parent = weak.Make(parent)
		base = parent.ctx
	}
	a.ctx, a.cancel = context.WithCancel(base)
	a.logger = sys.logger.With("actor_id", a.id, "session_id", a.sessionID)
	a.scope = &Scope{actor: a}
	a.mailbox = newMailbox(a.process)
	return a
}

func (a *Actor) initialize() {
	snap, err := a.guard(func() (Snapshot, error) {
		return a.logic.InitialSnapshot(a.scope, a.input)
	})
	if err != nil {
		a.initErr = err
		snap = failedSnapshot{err: err}
	}
	a.snapshot = snap
}

// ID returns the actor id, unique among its siblings.
func (a *Actor) ID() string { return a.id }

// SessionID returns the globally unique id of this actor instance.
func (a *Actor) SessionID() string { return a.sessionID }

// SystemID returns the system registry alias, if any.
func (a *Actor) SystemID() string { return a.systemID }

// Src returns the registry key the actor logic was resolved from, if any.
func (a *Actor) Src() string { return a.src }

// Logic returns the behavior wrapped by the actor.
func (a *Actor) Logic() Logic { return a.logic }

// System returns the system the actor belongs to.
func (a *Actor) System() *System { return a.system }

// Logger returns the actor logger.
func (a *Actor) Logger() *slog.Logger { return a.logger }

// Parent returns the parent actor, or nil for a root actor or a collected parent.
func (a *Actor) Parent() *Actor { return a.parent.Value() }

// Done is closed when the actor stops, completes or fails.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Status returns the runtime status of the actor.
func (a *Actor) Status() ProcessStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Snapshot returns the last committed snapshot.
func (a *Actor) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Children returns the current children in spawn order.
func (a *Actor) Children() []*Actor {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Actor, 0, len(a.childOrder))
	for _, id := range a.childOrder {
		out = append(out, a.children[id])
	}
	return out
}

// Child returns the child with the given id.
func (a *Actor) Child(id string) (*Actor, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.children[id]
	return c, ok
}

// Start starts the actor, runs its initialization effects and then releases
// every event sent before Start, in order.
func (a *Actor) Start() error {
	a.mu.Lock()
	if a.status != StatusNotStarted {
		a.mu.Unlock()
		return nil
	}
	a.status = StatusRunning
	snap := a.snapshot
	initErr := a.initErr
	a.mu.Unlock()

	a.logger.Debug("actor starting", "logic", a.logic.LogicID())

	if a.systemID != "" {
		if err := a.system.register(a.systemID, a); err != nil {
			a.deferred = nil
			return a.fail(snap, err)
		}
	}
	if h := a.system.hooks.OnActorStart; h != nil {
		h(a.system.ctx, a.system.actorEvent(a, domain.EventActorStart, snap.Status(), nil))
	}
	if initErr != nil {
		a.deferred = nil
		return a.fail(snap, initErr)
	}

	for _, se := range a.restoredScheduled {
		a.system.scheduler.schedule(a, a, se.Event, se.DueAt, se.ID)
	}
	a.restoredScheduled = nil

	next, err := a.guard(func() (Snapshot, error) {
		return a.logic.Start(a.scope, snap)
	})
	if err != nil {
		a.deferred = nil
		return a.fail(snap, err)
	}
	if err := a.update(next); err != nil {
		return err
	}
	return a.mailbox.start()
}

// Send delivers an event to the actor.
// If no other caller is processing the actor, the event (and everything
// queued while it is processed) is handled before Send returns, and the first
// processing error is returned. Sends before Start are buffered.
func (a *Actor) Send(ev domain.Event) error {
	switch a.Status() {
	case StatusStopped, StatusErrored:
		return fmt.Errorf("send %q to %s: %w", ev.Type, a.id, domain.ErrActorStopped)
	}
	if err := a.mailbox.enqueue(envelope{event: ev}); err != nil {
		if errors.Is(err, domain.ErrActorStopped) {
			return fmt.Errorf("send %q to %s: %w", ev.Type, a.id, err)
		}
		return err
	}
	return nil
}

// deliver is used by the runtime for notifications and delayed events.
// Failures are reported through the actor itself, so they are only logged here.
func (a *Actor) deliver(ev domain.Event) {
	if err := a.mailbox.enqueue(envelope{event: ev}); err != nil {
		a.logger.Debug("event not processed", "event", ev.Type, "err", err)
	}
}

// Stop stops the actor and, depth-first, all of its children.
// When called while the actor is processing, the stop runs right after the
// current event; pending events are discarded.
func (a *Actor) Stop() {
	switch a.Status() {
	case StatusStopped, StatusErrored:
		return
	case StatusNotStarted:
		a.halt()
		return
	}
	a.mailbox.clear()
	_ = a.mailbox.enqueue(envelope{stop: true})
}

func (a *Actor) process(env envelope) error {
	if env.stop {
		a.halt()
		return nil
	}

	a.mu.RLock()
	snap, status := a.snapshot, a.status
	a.mu.RUnlock()
	if status != StatusRunning || snap.Status() != domain.StatusActive {
		return nil
	}

	started := time.Now()
	next, err := a.guard(func() (Snapshot, error) {
		return a.logic.Transition(a.scope, snap, env.event)
	})
	if err != nil {
		a.deferred = nil
		a.reportEvent(env.event, started, domain.StatusError)
		return a.fail(snap, err)
	}
	a.reportEvent(env.event, started, next.Status())
	return a.update(next)
}

// update commits a snapshot, runs deferred effects and notifies observers.
func (a *Actor) update(next Snapshot) error {
	a.mu.Lock()
	a.snapshot = next
	a.mu.Unlock()

	for len(a.deferred) > 0 {
		fn := a.deferred[0]
		a.deferred = a.deferred[1:]
		if err := a.runDeferred(fn); err != nil {
			a.deferred = nil
			return a.fail(next, err)
		}
	}
	a.stopping = nil

	switch next.Status() {
	case domain.StatusDone:
		a.subs.next(next)
		a.finish(next)
	case domain.StatusError:
		return a.fail(next, next.Err())
	case domain.StatusStopped:
		a.halt()
	default:
		a.subs.next(next)
	}
	return nil
}

func (a *Actor) fail(last Snapshot, err error) error {
	if err == nil {
		err = errors.New("actor failed")
	}
	if last == nil {
		last = failedSnapshot{}
	}
	failed := last.WithStatus(domain.StatusError, err)

	a.mu.Lock()
	if a.status == StatusStopped || a.status == StatusErrored {
		a.mu.Unlock()
		return err
	}
	a.status = StatusErrored
	a.snapshot = failed
	a.mu.Unlock()

	a.logger.Error("actor failed", "err", err)
	a.teardown(failed)
	a.subs.fail(err)
	if h := a.system.hooks.OnActorError; h != nil {
		h(a.system.ctx, a.system.actorEvent(a, domain.EventActorError, domain.StatusError, err))
	}
	if p := a.Parent(); p != nil && p.detachChild(a) {
		p.deliver(domain.ErrorActorEvent(a.id, err))
	}
	close(a.done)
	return err
}

func (a *Actor) finish(snap Snapshot) {
	a.mu.Lock()
	if a.status == StatusStopped || a.status == StatusErrored {
		a.mu.Unlock()
		return
	}
	a.status = StatusStopped
	a.mu.Unlock()

	a.teardown(snap)
	a.subs.complete()
	if h := a.system.hooks.OnActorStop; h != nil {
		h(a.system.ctx, a.system.actorEvent(a, domain.EventActorStop, snap.Status(), nil))
	}
	if p := a.Parent(); p != nil && p.detachChild(a) {
		p.deliver(domain.DoneActorEvent(a.id, snap.Output()))
	}
	close(a.done)
}

func (a *Actor) halt() {
	a.mu.Lock()
	if a.status == StatusStopped || a.status == StatusErrored {
		a.mu.Unlock()
		return
	}
	a.status = StatusStopped
	snap := a.snapshot
	if snap.Status() == domain.StatusActive {
		snap = snap.WithStatus(domain.StatusStopped, nil)
		a.snapshot = snap
	}
	a.mu.Unlock()

	a.teardown(snap)
	a.subs.complete()
	if p := a.Parent(); p != nil {
		p.detachChild(a)
	}
	if h := a.system.hooks.OnActorStop; h != nil {
		h(a.system.ctx, a.system.actorEvent(a, domain.EventActorStop, snap.Status(), nil))
	}
	close(a.done)
}

// teardown releases everything the actor holds, children first.
func (a *Actor) teardown(snap Snapshot) {
	a.system.scheduler.cancelAll(a)
	a.mailbox.close()
	a.cancel()

	for _, child := range a.takeChildren() {
		child.Stop()
	}
	// Children detached by a step that never committed.
	for _, child := range a.stopping {
		child.Stop()
	}
	a.stopping = nil

	func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("recovered from panic while stopping logic", "panic", r)
			}
		}()
		a.logic.Stop(a.scope, snap)
	}()

	a.system.unregister(a.systemID, a)
	a.logger.Debug("actor stopped", "status", snap.Status())
}

func (a *Actor) guard(fn func() (Snapshot, error)) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("recovered from panic in actor logic", "panic", r)
			err = fmt.Errorf("panic in actor %s: %v", a.id, r)
		}
	}()
	return fn()
}

func (a *Actor) runDeferred(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("recovered from panic in deferred effect", "panic", r)
			err = fmt.Errorf("panic in actor %s: %v", a.id, r)
		}
	}()
	return fn()
}

func (a *Actor) reportEvent(ev domain.Event, started time.Time, status domain.Status) {
	h := a.system.hooks.OnEvent
	if h == nil {
		return
	}
	h(a.system.ctx, &domain.MessageEvent{
		EventBase: a.system.base(a, domain.EventProcessed),
		Event:     ev,
		Duration:  time.Since(started),
		Status:    status,
	})
}

func (a *Actor) attachChild(c *Actor) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.children[c.id]; exists {
		return fmt.Errorf("%w: %q in %s", domain.ErrDuplicateChild, c.id, a.id)
	}
	a.children[c.id] = c
	a.childOrder = append(a.childOrder, c.id)
	return nil
}

// detachChild removes c from the children map if it is still attached.
func (a *Actor) detachChild(c *Actor) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.children[c.id] != c {
		return false
	}
	delete(a.children, c.id)
	for i, id := range a.childOrder {
		if id == c.id {
			a.childOrder = append(a.childOrder[:i], a.childOrder[i+1:]...)
			break
		}
	}
	return true
}

// takeChildren detaches every child, most recently spawned first.
func (a *Actor) takeChildren() []*Actor {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Actor, 0, len(a.childOrder))
	for i := len(a.childOrder) - 1; i >= 0; i-- {
		out = append(out, a.children[a.childOrder[i]])
	}
	a.children = make(map[string]*Actor)
	a.childOrder = nil
	return out
}

// failedSnapshot stands in for a logic snapshot that could not be computed.
type failedSnapshot struct {
	err error
}

func (f failedSnapshot) Status() domain.Status { return domain.StatusError }
func (f failedSnapshot) Output() any           { return nil }
func (f failedSnapshot) Err() error            { return f.err }

func (f failedSnapshot) WithStatus(_ domain.Status, err error) Snapshot {
	if err == nil {
		err = f.err
	}
	return failedSnapshot{err: err}
}

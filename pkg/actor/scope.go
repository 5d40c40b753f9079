package actor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/troupe/pkg/domain"
)

// Scope is the view a Logic has of the actor running it.
// Effects requested through a Scope are deferred: they run in order after
// the snapshot produced by the current step has been committed.
type Scope struct {
	actor *Actor
}

// Self returns the actor running the logic.
func (s *Scope) Self() *Actor { return s.actor }

// System returns the actor system.
func (s *Scope) System() *System { return s.actor.system }

// Logger returns the actor logger.
func (s *Scope) Logger() *slog.Logger { return s.actor.logger }

// Context is cancelled when the actor stops.
func (s *Scope) Context() context.Context { return s.actor.ctx }

// Running reports whether the actor has been started and not yet stopped.
func (s *Scope) Running() bool { return s.actor.Status() == StatusRunning }

// Parent returns the parent actor, or nil.
func (s *Scope) Parent() *Actor { return s.actor.Parent() }

// Defer queues an effect to run after the current step commits.
// A returned error fails the actor and discards the remaining effects.
func (s *Scope) Defer(fn func() error) {
	s.actor.deferred = append(s.actor.deferred, fn)
}

// Emit notifies the listeners registered with Actor.On.
func (s *Scope) Emit(ev domain.Event) {
	s.Defer(func() error {
		s.actor.emit(ev)
		return nil
	})
}

// SendTo delivers an event to another actor once the current step commits.
func (s *Scope) SendTo(target *Actor, ev domain.Event) {
	s.Defer(func() error {
		target.deliver(ev)
		return nil
	})
}

// Spawn creates a child actor and attaches it immediately, so it is part of
// the snapshot being computed. The child starts once the step commits.
// Failures of the child are reported to this actor as error.actor.<id> events.
func (s *Scope) Spawn(src string, logic Logic, opts ...Option) (*Actor, error) {
	o := applyOptions(append(opts, withSrc(src)))
	child := newActor(logic, s.actor, o)
	if err := s.actor.attachChild(child); err != nil {
		return nil, err
	}
	child.initialize()
	s.Defer(func() error {
		if child.Status() == StatusNotStarted {
			_ = child.Start()
		}
		return nil
	})
	return child, nil
}

// Child returns the child with the given id.
func (s *Scope) Child(id string) (*Actor, bool) { return s.actor.Child(id) }

// StopChild detaches a child right away, so the id is free for a child
// spawned later in the same step, and stops it once the step commits.
func (s *Scope) StopChild(id string) {
	child, ok := s.actor.Child(id)
	if !ok || !s.actor.detachChild(child) {
		return
	}
	s.actor.stopping = append(s.actor.stopping, child)
	s.Defer(func() error {
		child.Stop()
		return nil
	})
}

// Schedule delivers ev to target after delay. Scheduling again with the same
// id replaces the pending event.
func (s *Scope) Schedule(target *Actor, ev domain.Event, delay time.Duration, id string) {
	s.Defer(func() error {
		s.actor.system.Schedule(s.actor, target, ev, delay, id)
		return nil
	})
}

// Cancel cancels a delayed event scheduled by this actor.
func (s *Scope) Cancel(id string) {
	s.Defer(func() error {
		s.actor.system.Cancel(s.actor, id)
		return nil
	})
}

// ReportTransition fires the OnTransition hook of the system.
func (s *Scope) ReportTransition(eventType string, source string, targets []string) {
	h := s.actor.system.hooks.OnTransition
	if h == nil {
		return
	}
	h(s.actor.system.ctx, &domain.TransitionEvent{
		EventBase: s.actor.system.base(s.actor, domain.EventTransition),
		EventType: eventType,
		Source:    source,
		Targets:   targets,
	})
}

// Deliver sends an event to target right away.
// It is meant for deferred effects that resolve their target late.
func (s *Scope) Deliver(target *Actor, ev domain.Event) {
	target.deliver(ev)
}

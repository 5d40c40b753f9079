package actor

import (
	"context"
	"errors"

	"github.com/aretw0/troupe/pkg/domain"
)

// Events delivered by a promise actor to itself.
const (
	EventPromiseResolve = "@promise.resolve"
	EventPromiseReject  = "@promise.reject"
)

// PromiseFunc computes a single value. The context is cancelled when the
// actor stops.
type PromiseFunc func(ctx context.Context, input any) (any, error)

type promiseLogic struct {
	id string
	fn PromiseFunc
}

// FromPromise creates a logic that runs fn once and completes with its
// result, or fails with its error.
// A restored active promise actor runs fn again.
func FromPromise(id string, fn PromiseFunc) Logic {
	return &promiseLogic{id: id, fn: fn}
}

func (l *promiseLogic) LogicID() string { return l.id }

func (l *promiseLogic) InitialSnapshot(_ *Scope, input any) (Snapshot, error) {
	return newBasicSnapshot(input, nil), nil
}

func (l *promiseLogic) Start(scope *Scope, snap Snapshot) (Snapshot, error) {
	s, err := basicFrom(snap)
	if err != nil {
		return nil, err
	}
	if s.status != domain.StatusActive {
		return s, nil
	}

	ctx := scope.Context()
	self := scope.Self()
	go func() {
		out, err := l.fn(ctx, s.input)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			self.deliver(domain.Event{Type: EventPromiseReject, Payload: err})
			return
		}
		self.deliver(domain.Event{Type: EventPromiseResolve, Payload: out})
	}()
	return s, nil
}

func (l *promiseLogic) Transition(_ *Scope, snap Snapshot, ev domain.Event) (Snapshot, error) {
	s, err := basicFrom(snap)
	if err != nil {
		return nil, err
	}
	switch ev.Type {
	case EventPromiseResolve:
		return s.with(func(n *BasicSnapshot) {
			n.status = domain.StatusDone
			n.output = ev.Payload
		}), nil
	case EventPromiseReject:
		cause := domain.EventError(ev)
		if cause == nil {
			cause = errors.New("promise rejected")
		}
		return s.WithStatus(domain.StatusError, cause), nil
	}
	return s, nil
}

func (l *promiseLogic) Stop(*Scope, Snapshot) {}

func (l *promiseLogic) Persist(snap Snapshot) (*domain.PersistedSnapshot, error) {
	return persistBasic(l.id, snap)
}

func (l *promiseLogic) Restore(_ *Scope, ps *domain.PersistedSnapshot) (Snapshot, error) {
	return restoreBasic(ps), nil
}

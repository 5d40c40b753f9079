package actor

import (
	"context"
	"errors"

	"github.com/aretw0/troupe/pkg/domain"
)

// Events delivered by a stream actor to itself.
const (
	EventStreamNext     = "@stream.next"
	EventStreamComplete = "@stream.complete"
	EventStreamError    = "@stream.error"
)

// StreamFunc produces values by calling next until it returns.
// Returning nil completes the actor with the last value as output.
type StreamFunc func(ctx context.Context, input any, next func(any)) error

type streamLogic struct {
	id string
	fn StreamFunc
}

// FromStream creates a logic that follows a producer of values.
// The snapshot data is the last value produced.
func FromStream(id string, fn StreamFunc) Logic {
	return &streamLogic{id: id, fn: fn}
}

func (l *streamLogic) LogicID() string { return l.id }

func (l *streamLogic) InitialSnapshot(_ *Scope, input any) (Snapshot, error) {
	return newBasicSnapshot(input, nil), nil
}

func (l *streamLogic) Start(scope *Scope, snap Snapshot) (Snapshot, error) {
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
		err := l.fn(ctx, s.input, func(v any) {
			if ctx.Err() == nil {
				self.deliver(domain.Event{Type: EventStreamNext, Payload: v})
			}
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			self.deliver(domain.Event{Type: EventStreamError, Payload: err})
			return
		}
		self.deliver(domain.Event{Type: EventStreamComplete})
	}()
	return s, nil
}

func (l *streamLogic) Transition(_ *Scope, snap Snapshot, ev domain.Event) (Snapshot, error) {
	s, err := basicFrom(snap)
	if err != nil {
		return nil, err
	}
	switch ev.Type {
	case EventStreamNext:
		return s.with(func(n *BasicSnapshot) { n.data = ev.Payload }), nil
	case EventStreamComplete:
		return s.with(func(n *BasicSnapshot) {
			n.status = domain.StatusDone
			n.output = n.data
		}), nil
	case EventStreamError:
		cause := domain.EventError(ev)
		if cause == nil {
			cause = errors.New("stream failed")
		}
		return s.WithStatus(domain.StatusError, cause), nil
	}
	return s, nil
}

func (l *streamLogic) Stop(*Scope, Snapshot) {}

func (l *streamLogic) Persist(snap Snapshot) (*domain.PersistedSnapshot, error) {
	return persistBasic(l.id, snap)
}

func (l *streamLogic) Restore(_ *Scope, ps *domain.PersistedSnapshot) (Snapshot, error) {
	return restoreBasic(ps), nil
}

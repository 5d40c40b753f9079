package actor

import (
	"context"
	"sync"

	"github.com/aretw0/troupe/pkg/domain"
)

// CallbackArgs is passed to a CallbackFunc.
type CallbackArgs struct {
	Input any
	Self  *Actor
	// Context is cancelled when the actor stops.
	Context context.Context
	// SendBack delivers an event to the parent actor.
	SendBack func(domain.Event)
	// Receive registers the handler for events sent to the actor.
	Receive func(func(domain.Event))
}

// CallbackFunc sets up a long running effect and returns its cleanup.
// The cleanup may be nil.
type CallbackFunc func(args CallbackArgs) (cleanup func())

type callbackLogic struct {
	id string
	fn CallbackFunc
}

type callbackRuntime struct {
	mu      sync.Mutex
	receive func(domain.Event)
	cleanup func()
}

// FromCallback creates a logic backed by a callback. The actor stays active
// until it is stopped; events sent to it go to the Receive handler.
func FromCallback(id string, fn CallbackFunc) Logic {
	return &callbackLogic{id: id, fn: fn}
}

func (l *callbackLogic) LogicID() string { return l.id }

func (l *callbackLogic) InitialSnapshot(_ *Scope, input any) (Snapshot, error) {
	s := newBasicSnapshot(input, nil)
	s.runtime = &callbackRuntime{}
	return s, nil
}

func (l *callbackLogic) Start(scope *Scope, snap Snapshot) (Snapshot, error) {
	s, err := basicFrom(snap)
	if err != nil {
		return nil, err
	}
	if s.status != domain.StatusActive {
		return s, nil
	}
	rt, ok := s.runtime.(*callbackRuntime)
	if !ok {
		rt = &callbackRuntime{}
		s = s.with(func(n *BasicSnapshot) { n.runtime = rt })
	}

	self := scope.Self()
	cleanup := l.fn(CallbackArgs{
		Input:   s.input,
		Self:    self,
		Context: scope.Context(),
		SendBack: func(ev domain.Event) {
			if p := self.Parent(); p != nil {
				p.deliver(ev)
			}
		},
		Receive: func(fn func(domain.Event)) {
			rt.mu.Lock()
			rt.receive = fn
			rt.mu.Unlock()
		},
	})
	rt.mu.Lock()
	rt.cleanup = cleanup
	rt.mu.Unlock()
	return s, nil
}

func (l *callbackLogic) Transition(_ *Scope, snap Snapshot, ev domain.Event) (Snapshot, error) {
	s, err := basicFrom(snap)
	if err != nil {
		return nil, err
	}
	if rt, ok := s.runtime.(*callbackRuntime); ok {
		rt.mu.Lock()
		receive := rt.receive
		rt.mu.Unlock()
		if receive != nil {
			receive(ev)
		}
	}
	return s, nil
}

func (l *callbackLogic) Stop(_ *Scope, snap Snapshot) {
	s, ok := snap.(*BasicSnapshot)
	if !ok {
		return
	}
	rt, ok := s.runtime.(*callbackRuntime)
	if !ok {
		return
	}
	rt.mu.Lock()
	cleanup := rt.cleanup
	rt.cleanup = nil
	rt.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
}

func (l *callbackLogic) Persist(snap Snapshot) (*domain.PersistedSnapshot, error) {
	return persistBasic(l.id, snap)
}

func (l *callbackLogic) Restore(_ *Scope, ps *domain.PersistedSnapshot) (Snapshot, error) {
	s := restoreBasic(ps)
	s.runtime = &callbackRuntime{}
	return s, nil
}

package actor

import "github.com/aretw0/troupe/pkg/domain"

// Reducer computes the next state of a transition logic.
type Reducer func(state any, ev domain.Event, scope *Scope) (any, error)

type transitionLogic struct {
	id      string
	reducer Reducer
	initial func(input any) any
}

// FromTransition creates a logic whose state is folded over received events.
// The actor never completes on its own.
func FromTransition(id string, reducer Reducer, initial func(input any) any) Logic {
	return &transitionLogic{id: id, reducer: reducer, initial: initial}
}

func (l *transitionLogic) LogicID() string { return l.id }

func (l *transitionLogic) InitialSnapshot(_ *Scope, input any) (Snapshot, error) {
	var state any
	if l.initial != nil {
		state = l.initial(input)
	}
	return newBasicSnapshot(input, state), nil
}

func (l *transitionLogic) Start(_ *Scope, snap Snapshot) (Snapshot, error) { return snap, nil }

func (l *transitionLogic) Transition(scope *Scope, snap Snapshot, ev domain.Event) (Snapshot, error) {
	s, err := basicFrom(snap)
	if err != nil {
		return nil, err
	}
	next, err := l.reducer(s.data, ev, scope)
	if err != nil {
		return nil, err
	}
	return s.with(func(n *BasicSnapshot) { n.data = next }), nil
}

func (l *transitionLogic) Stop(*Scope, Snapshot) {}

func (l *transitionLogic) Persist(snap Snapshot) (*domain.PersistedSnapshot, error) {
	return persistBasic(l.id, snap)
}

func (l *transitionLogic) Restore(_ *Scope, ps *domain.PersistedSnapshot) (Snapshot, error) {
	return restoreBasic(ps), nil
}

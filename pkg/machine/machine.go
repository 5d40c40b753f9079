package machine

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/schema"
)

// Machine is a compiled statechart. It is immutable and implements
// actor.Logic, so one Machine can back any number of actors.
type Machine struct {
	id            string
	config        MachineConfig
	impl          Implementations
	opts          []Option
	maxMicrosteps int

	root    *StateNode
	nodes   map[string]*StateNode
	ordered []*StateNode
	events  []string

	version     *semver.Version
	schema      schema.Schema
	context     map[string]any
	contextFrom MapperFunc
	inline      map[string]actor.Logic
}

var (
	_ actor.Logic         = (*Machine)(nil)
	_ actor.ChildResolver = (*Machine)(nil)
	_ actor.Versioned     = (*Machine)(nil)
)

// Option configures a Machine.
type Option func(*Machine)

// WithMaxMicrosteps sets the microstep ceiling of a macrostep.
func WithMaxMicrosteps(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxMicrosteps = n
		}
	}
}

// ID returns the machine id, which is also the id of the root state.
func (m *Machine) ID() string { return m.id }

func (m *Machine) LogicID() string { return m.id }

// Version returns the declared version, or "".
func (m *Machine) Version() string {
	if m.version == nil {
		return ""
	}
	return m.version.String()
}

// Config returns the description the machine was compiled from.
func (m *Machine) Config() MachineConfig { return m.config }

// Root returns the root state node.
func (m *Machine) Root() *StateNode { return m.root }

// StateNode returns a node by id.
func (m *Machine) StateNode(id string) (*StateNode, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// StateNodes returns every node in document order.
func (m *Machine) StateNodes() []*StateNode { return slices.Clone(m.ordered) }

// Events returns the event descriptors declared anywhere in the machine, sorted.
func (m *Machine) Events() []string { return slices.Clone(m.events) }

// ResolveChild finds the logic registered for a child src.
func (m *Machine) ResolveChild(src string) (actor.Logic, bool) {
	if l, ok := m.impl.Actors[src]; ok {
		return l, true
	}
	l, ok := m.inline[src]
	return l, ok
}

// Provide returns a new machine compiled with impl merged over the current
// implementations.
func (m *Machine) Provide(impl Implementations) (*Machine, error) {
	return New(m.config, m.impl.Merge(impl), m.opts...)
}

// InitialState computes the initial state without an actor. Effects are skipped.
func (m *Machine) InitialState(input any) (*State, error) {
	return m.initial(&exec{m: m}, input)
}

// Step computes the state that follows ev without an actor. Effects are
// skipped; assigns, raised events and eventless transitions are applied.
func (m *Machine) Step(s *State, ev domain.Event) (*State, error) {
	return m.step(&exec{m: m}, s, ev)
}

func (m *Machine) InitialSnapshot(scope *actor.Scope, input any) (actor.Snapshot, error) {
	return m.initial(&exec{m: m, scope: scope}, input)
}

func (m *Machine) Start(_ *actor.Scope, snap actor.Snapshot) (actor.Snapshot, error) {
	s, err := m.state(snap)
	if err != nil {
		return nil, err
	}
	if s.status == domain.StatusActive {
		if err := m.validate(s.context); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (m *Machine) Transition(scope *actor.Scope, snap actor.Snapshot, ev domain.Event) (actor.Snapshot, error) {
	s, err := m.state(snap)
	if err != nil {
		return nil, err
	}
	return m.step(&exec{m: m, scope: scope}, s, ev)
}

// Stop has nothing to release: children and timers belong to the actor.
func (m *Machine) Stop(*actor.Scope, actor.Snapshot) {}

func (m *Machine) state(snap actor.Snapshot) (*State, error) {
	s, ok := snap.(*State)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot type %T", snap)
	}
	if s.machine != m && s.machine.id != m.id {
		return nil, fmt.Errorf("%w: state of %q given to %q", domain.ErrLogicMismatch, s.machine.id, m.id)
	}
	return s, nil
}

func (m *Machine) initial(x *exec, input any) (*State, error) {
	ev := domain.Event{Type: domain.EventInit, Payload: input}
	ctx := copyContext(m.context)
	if m.contextFrom != nil {
		if v, ok := m.contextFrom(Args{Context: ctx, Event: ev}).(map[string]any); ok {
			ctx = v
		}
	} else if in, ok := input.(map[string]any); ok {
		for k, v := range in {
			ctx[k] = v
		}
	}

	w := &working{
		nodes:   make(map[*StateNode]bool),
		context: ctx,
		history: make(map[string][]*StateNode),
		status:  domain.StatusActive,
	}
	t := &Transition{Source: m.root, Targets: []*StateNode{m.root}, Reenter: true}
	if _, err := x.microstep(w, []*Transition{t}, ev, true); err != nil {
		return nil, err
	}
	if err := x.settle(w, ev); err != nil {
		return nil, err
	}
	return m.stateFrom(w), nil
}

func (m *Machine) step(x *exec, s *State, ev domain.Event) (*State, error) {
	if s.status != domain.StatusActive {
		return s, nil
	}
	w := newWorking(s)
	if err := x.macrostep(w, ev); err != nil {
		return nil, err
	}
	if x.steps == 0 && w.status == s.status {
		return s, nil
	}
	if w.status == domain.StatusActive {
		if err := m.validate(w.context); err != nil {
			return nil, err
		}
	}
	return m.stateFrom(w), nil
}

func (m *Machine) validate(ctx map[string]any) error {
	if len(m.schema) == 0 {
		return nil
	}
	if err := schema.Validate(m.schema, ctx); err != nil {
		return fmt.Errorf("context of %q: %w", m.id, err)
	}
	return nil
}

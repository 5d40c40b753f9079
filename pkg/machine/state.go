package machine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
)

// State is the snapshot of a machine actor. It is immutable.
type State struct {
	machine *Machine
	nodes   []*StateNode
	value   any
	context map[string]any
	status  domain.Status
	output  any
	err     error
	history map[string][]*StateNode
}

var _ actor.Snapshot = (*State)(nil)

func (m *Machine) stateFrom(w *working) *State {
	s := &State{
		machine: m,
		nodes:   w.configuration(),
		context: w.context,
		status:  w.status,
		output:  w.output,
		err:     w.err,
		history: w.history,
	}
	s.value = nodeValue(m.root, w.nodes)
	return s
}

// Machine returns the machine that produced the state.
func (s *State) Machine() *Machine { return s.machine }

// Value is the nested state value: the key of the active child of a compound
// state, or a map of child key to value for deeper and parallel states.
func (s *State) Value() any { return s.value }

// Context returns the extended state. It must not be modified.
func (s *State) Context() map[string]any { return s.context }

func (s *State) Status() domain.Status { return s.status }
func (s *State) Output() any           { return s.output }
func (s *State) Err() error            { return s.err }

func (s *State) WithStatus(status domain.Status, err error) actor.Snapshot {
	next := *s
	next.status = status
	if err != nil {
		next.err = err
	}
	return &next
}

// Nodes returns the active states in document order.
func (s *State) Nodes() []*StateNode { return slices.Clone(s.nodes) }

// Matches reports whether a state is active. The reference is a state id
// ("#id") or a key path from the root ("active.editing").
func (s *State) Matches(ref string) bool {
	var n *StateNode
	if id, ok := strings.CutPrefix(ref, "#"); ok {
		n = s.machine.nodes[id]
	} else {
		n = descend(s.machine.root, strings.Split(ref, "."))
	}
	return n != nil && slices.Contains(s.nodes, n)
}

// HasTag reports whether an active state carries the tag.
func (s *State) HasTag(tag string) bool {
	for _, n := range s.nodes {
		if slices.Contains(n.Tags, tag) {
			return true
		}
	}
	return false
}

// Tags returns the tags of the active states, sorted.
func (s *State) Tags() []string {
	var tags []string
	for _, n := range s.nodes {
		for _, t := range n.Tags {
			if !slices.Contains(tags, t) {
				tags = append(tags, t)
			}
		}
	}
	slices.Sort(tags)
	return tags
}

// Can reports whether ev would select a transition with a target or actions.
// Guards are evaluated; nothing else runs.
func (s *State) Can(ev domain.Event) bool {
	if s.status != domain.StatusActive {
		return false
	}
	for _, t := range selectTransitions(newWorking(s), ev) {
		if len(t.Targets) > 0 || len(t.actions) > 0 {
			return true
		}
	}
	return false
}

// AcceptedEvents lists the event descriptors declared by the active states.
func (s *State) AcceptedEvents() []string {
	var out []string
	for _, n := range s.nodes {
		for _, ev := range n.ownEvents {
			if !slices.Contains(out, ev) {
				out = append(out, ev)
			}
		}
	}
	slices.Sort(out)
	return out
}

// HistoryValue returns the recorded states per history state id.
func (s *State) HistoryValue() map[string][]string {
	if len(s.history) == 0 {
		return nil
	}
	out := make(map[string][]string, len(s.history))
	for id, nodes := range s.history {
		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		out[id] = ids
	}
	return out
}

func nodeValue(n *StateNode, active map[*StateNode]bool) any {
	switch n.Kind {
	case KindCompound:
		for _, c := range n.Children {
			if !active[c] {
				continue
			}
			if c.Kind == KindCompound || c.Kind == KindParallel {
				return map[string]any{c.Key: nodeValue(c, active)}
			}
			return c.Key
		}
		return nil
	case KindParallel:
		out := make(map[string]any)
		for _, region := range n.regions() {
			if !active[region] {
				continue
			}
			if region.Kind == KindCompound || region.Kind == KindParallel {
				out[region.Key] = nodeValue(region, active)
			} else {
				out[region.Key] = map[string]any{}
			}
		}
		return out
	}
	return map[string]any{}
}

// nodesFromValue rebuilds a configuration from a state value. Missing parts
// are filled with initial states.
func (m *Machine) nodesFromValue(value any) (map[*StateNode]bool, error) {
	active := map[*StateNode]bool{m.root: true}
	if err := collectNodes(m.root, value, active); err != nil {
		return nil, err
	}
	return active, nil
}

func collectNodes(n *StateNode, value any, active map[*StateNode]bool) error {
	switch n.Kind {
	case KindCompound:
		child := n.Initial
		var sub any
		switch v := value.(type) {
		case nil:
		case string:
			child = n.childByKey[v]
		case map[string]any:
			if len(v) != 1 {
				return fmt.Errorf("%w: state %q expects a single active child, got %d", domain.ErrInvalidSnapshot, n.ID, len(v))
			}
			for key, inner := range v {
				child, sub = n.childByKey[key], inner
			}
		default:
			return fmt.Errorf("%w: state %q: unexpected value %T", domain.ErrInvalidSnapshot, n.ID, value)
		}
		if child == nil || child.Kind == KindHistory {
			return fmt.Errorf("%w: state %q has no child %v", domain.ErrInvalidSnapshot, n.ID, value)
		}
		active[child] = true
		return collectNodes(child, sub, active)
	case KindParallel:
		v, _ := value.(map[string]any)
		for key := range v {
			if c, ok := n.childByKey[key]; !ok || c.Kind == KindHistory {
				return fmt.Errorf("%w: state %q has no region %q", domain.ErrInvalidSnapshot, n.ID, key)
			}
		}
		for _, region := range n.regions() {
			active[region] = true
			if err := collectNodes(region, v[region.Key], active); err != nil {
				return err
			}
		}
	}
	return nil
}

// Persist converts a State into plain data.
func (m *Machine) Persist(snap actor.Snapshot) (*domain.PersistedSnapshot, error) {
	s, ok := snap.(*State)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot type %T", snap)
	}
	ps := &domain.PersistedSnapshot{
		LogicID:      m.id,
		Version:      m.Version(),
		Status:       s.status,
		Value:        s.value,
		Context:      maps.Clone(s.context),
		Output:       s.output,
		HistoryValue: s.HistoryValue(),
	}
	if s.err != nil {
		ps.Error = s.err.Error()
	}
	return ps, nil
}

// Restore rebuilds a State from plain data. Entry actions are not run again.
func (m *Machine) Restore(_ *actor.Scope, ps *domain.PersistedSnapshot) (actor.Snapshot, error) {
	return m.RestoreState(ps)
}

// RestoreState is Restore without an actor.
func (m *Machine) RestoreState(ps *domain.PersistedSnapshot) (*State, error) {
	if ps == nil {
		return nil, domain.ErrInvalidSnapshot
	}
	nodes, err := m.nodesFromValue(ps.Value)
	if err != nil {
		return nil, err
	}
	w := &working{
		nodes:   nodes,
		context: ps.Context,
		history: make(map[string][]*StateNode, len(ps.HistoryValue)),
		status:  ps.Status,
		output:  ps.Output,
	}
	if w.context == nil {
		w.context = make(map[string]any)
	}
	if w.status == "" {
		w.status = domain.StatusActive
	}
	if ps.Error != "" {
		w.err = errors.New(ps.Error)
	}
	for id, ids := range ps.HistoryValue {
		if h, ok := m.nodes[id]; !ok || h.Kind != KindHistory {
			return nil, fmt.Errorf("%w: unknown history state %q", domain.ErrInvalidSnapshot, id)
		}
		recorded := make([]*StateNode, 0, len(ids))
		for _, sid := range ids {
			n, ok := m.nodes[sid]
			if !ok {
				return nil, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidSnapshot, sid)
			}
			recorded = append(recorded, n)
		}
		w.history[id] = recorded
	}
	return m.stateFrom(w), nil
}

package machine

import (
	"slices"
	"time"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
)

// NodeKind is the kind of a state node.
type NodeKind int

const (
	KindAtomic NodeKind = iota
	KindCompound
	KindParallel
	KindFinal
	KindHistory
)

func (k NodeKind) String() string {
	switch k {
	case KindAtomic:
		return TypeAtomic
	case KindCompound:
		return TypeCompound
	case KindParallel:
		return TypeParallel
	case KindFinal:
		return TypeFinal
	case KindHistory:
		return TypeHistory
	}
	return "unknown"
}

// HistoryKind selects what a history node records.
type HistoryKind int

const (
	HistoryShallow HistoryKind = iota // Direct children of the parent
	HistoryDeep                       // Atomic descendants of the parent
)

// StateNode is a compiled state. Nodes are immutable once the machine is built.
type StateNode struct {
	ID          string
	Key         string
	Kind        NodeKind
	History     HistoryKind
	Parent      *StateNode
	Children    []*StateNode
	Tags        []string
	Description string

	// Order is the document order of the node (pre-order, root is 0).
	Order int
	// Initial is the default child of a compound state.
	Initial *StateNode

	machine     *Machine
	childByKey  map[string]*StateNode
	exact       map[string][]*Transition
	wildcards   []wildcardEntry
	descriptors []string
	ownEvents   []string
	always      []*Transition
	entry       []action
	exit        []action
	invokes     []*invokeDef
	output      *valueRef
	// historyTargets is the default of a history node without a record.
	historyTargets []*StateNode
}

type wildcardEntry struct {
	descriptor  string
	transitions []*Transition
}

// Transition is a compiled transition candidate.
type Transition struct {
	Source  *StateNode
	Event   string
	Targets []*StateNode
	Reenter bool

	guard   guard
	actions []action
	order   int
}

// TargetIDs returns the ids of the declared targets.
func (t *Transition) TargetIDs() []string {
	ids := make([]string, len(t.Targets))
	for i, n := range t.Targets {
		ids[i] = n.ID
	}
	return ids
}

type invokeDef struct {
	id       string
	src      string
	systemID string
	logic    actor.Logic
	input    *valueRef
}

// valueRef is either a literal (with $context/$event references) or a mapper.
type valueRef struct {
	literal any
	mapper  MapperFunc
}

func (v *valueRef) resolve(args Args) any {
	if v == nil {
		return nil
	}
	if v.mapper != nil {
		return v.mapper(args)
	}
	return resolveRefs(v.literal, args)
}

// delayRef is a fixed duration or a named delay.
type delayRef struct {
	fixed time.Duration
	fn    DelayFunc
}

func (d delayRef) resolve(args Args) time.Duration {
	if d.fn != nil {
		return d.fn(args)
	}
	return d.fixed
}

// Machine returns the machine the node belongs to.
func (n *StateNode) Machine() *Machine { return n.machine }

// Child returns the child with the given key.
func (n *StateNode) Child(key string) (*StateNode, bool) {
	c, ok := n.childByKey[key]
	return c, ok
}

// Transitions returns the candidates declared for an event descriptor.
func (n *StateNode) Transitions(descriptor string) []*Transition {
	if ts, ok := n.exact[descriptor]; ok {
		return ts
	}
	for _, w := range n.wildcards {
		if w.descriptor == descriptor {
			return w.transitions
		}
	}
	return nil
}

// Events returns the event descriptors handled by this node, in declaration order.
func (n *StateNode) Events() []string { return slices.Clone(n.descriptors) }

// candidates returns the transitions that may handle an event type: the exact
// descriptor if declared, otherwise matching wildcards, longest first.
func (n *StateNode) candidates(eventType string) []*Transition {
	if ts, ok := n.exact[eventType]; ok {
		return ts
	}
	var out []*Transition
	for _, w := range n.wildcards {
		if domain.MatchesDescriptor(w.descriptor, eventType) {
			out = append(out, w.transitions...)
		}
	}
	return out
}

func (n *StateNode) isAtomic() bool { return n.Kind == KindAtomic || n.Kind == KindFinal }

// isDescendantOf reports whether n is a proper descendant of ancestor.
func (n *StateNode) isDescendantOf(ancestor *StateNode) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// properAncestors lists ancestors from the parent up to, excluding, stop.
func (n *StateNode) properAncestors(stop *StateNode) []*StateNode {
	var out []*StateNode
	for p := n.Parent; p != nil && p != stop; p = p.Parent {
		out = append(out, p)
	}
	return out
}

func (n *StateNode) historyChildren() []*StateNode {
	var out []*StateNode
	for _, c := range n.Children {
		if c.Kind == KindHistory {
			out = append(out, c)
		}
	}
	return out
}

func (n *StateNode) regions() []*StateNode {
	var out []*StateNode
	for _, c := range n.Children {
		if c.Kind != KindHistory {
			out = append(out, c)
		}
	}
	return out
}

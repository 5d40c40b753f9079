package dsl

import (
	"time"

	"github.com/aretw0/troupe/pkg/machine"
)

// NodeBuilder provides a fluent API for configuring a state.
type NodeBuilder struct {
	node   *machine.StateConfig
	parent *NodeBuilder
}

// State returns the builder of a child state, creating it on first use.
// Children keep the order in which they are first declared; the first one is
// the default initial state of a compound parent.
func (n *NodeBuilder) State(key string) *NodeBuilder {
	if child, ok := n.node.States.Get(key); ok {
		return &NodeBuilder{node: child, parent: n}
	}
	child := &machine.StateConfig{}
	n.node.States.Set(key, child)
	return &NodeBuilder{node: child, parent: n}
}

// Parent returns the builder of the enclosing state, or n itself at the root.
func (n *NodeBuilder) Parent() *NodeBuilder {
	if n.parent == nil {
		return n
	}
	return n.parent
}

// ID overrides the state id, so targets can use "#id".
func (n *NodeBuilder) ID(id string) *NodeBuilder {
	n.node.ID = id
	return n
}

// Initial sets the initial child of a compound state.
func (n *NodeBuilder) Initial(key string) *NodeBuilder {
	n.node.Initial = key
	return n
}

// Describe attaches a description.
func (n *NodeBuilder) Describe(text string) *NodeBuilder {
	n.node.Description = text
	return n
}

// On adds a transition taken on event.
// An empty target makes a targetless transition that only runs actions.
func (n *NodeBuilder) On(event, target string, actions ...machine.ActionConfig) *NodeBuilder {
	return n.Transition(event, machine.TransitionConfig{Target: targets(target), Actions: actions})
}

// OnWhen adds a guarded transition taken on event.
func (n *NodeBuilder) OnWhen(event string, guard *machine.GuardConfig, target string, actions ...machine.ActionConfig) *NodeBuilder {
	return n.Transition(event, machine.TransitionConfig{Target: targets(target), Guard: guard, Actions: actions})
}

// Reenter adds a transition that exits and reenters its source.
func (n *NodeBuilder) Reenter(event, target string, actions ...machine.ActionConfig) *NodeBuilder {
	return n.Transition(event, machine.TransitionConfig{Target: targets(target), Actions: actions, Reenter: true})
}

// Transition appends a fully specified candidate for event.
func (n *NodeBuilder) Transition(event string, t machine.TransitionConfig) *NodeBuilder {
	list, _ := n.node.On.Get(event)
	n.node.On.Set(event, append(list, t))
	return n
}

// Always adds an eventless transition.
func (n *NodeBuilder) Always(target string, actions ...machine.ActionConfig) *NodeBuilder {
	n.node.Always = append(n.node.Always, machine.TransitionConfig{Target: targets(target), Actions: actions})
	return n
}

// AlwaysWhen adds a guarded eventless transition.
func (n *NodeBuilder) AlwaysWhen(guard *machine.GuardConfig, target string, actions ...machine.ActionConfig) *NodeBuilder {
	n.node.Always = append(n.node.Always, machine.TransitionConfig{Target: targets(target), Guard: guard, Actions: actions})
	return n
}

// After adds a delayed transition taken when the state stays active for delay.
func (n *NodeBuilder) After(delay time.Duration, target string, actions ...machine.ActionConfig) *NodeBuilder {
	return n.AfterNamed(delay.String(), target, actions...)
}

// AfterNamed adds a delayed transition whose delay is a key: a duration,
// milliseconds, or the name of an Implementations.Delays entry.
func (n *NodeBuilder) AfterNamed(delay, target string, actions ...machine.ActionConfig) *NodeBuilder {
	list, _ := n.node.After.Get(delay)
	n.node.After.Set(delay, append(list, machine.TransitionConfig{Target: targets(target), Actions: actions}))
	return n
}

// OnDone adds a transition taken when the state reaches a final configuration.
func (n *NodeBuilder) OnDone(target string, actions ...machine.ActionConfig) *NodeBuilder {
	n.node.OnDone = append(n.node.OnDone, machine.TransitionConfig{Target: targets(target), Actions: actions})
	return n
}

// Entry appends entry actions.
func (n *NodeBuilder) Entry(actions ...machine.ActionConfig) *NodeBuilder {
	n.node.Entry = append(n.node.Entry, actions...)
	return n
}

// Exit appends exit actions.
func (n *NodeBuilder) Exit(actions ...machine.ActionConfig) *NodeBuilder {
	n.node.Exit = append(n.node.Exit, actions...)
	return n
}

// Invoke starts a child actor while the state is active.
func (n *NodeBuilder) Invoke(inv machine.InvokeConfig) *NodeBuilder {
	n.node.Invoke = append(n.node.Invoke, inv)
	return n
}

// Tags adds tags to the state.
func (n *NodeBuilder) Tags(tags ...string) *NodeBuilder {
	n.node.Tags = append(n.node.Tags, tags...)
	return n
}

// Parallel marks the state as parallel: every child is an active region.
func (n *NodeBuilder) Parallel() *NodeBuilder {
	n.node.Type = machine.TypeParallel
	return n
}

// Final marks the state as final, optionally with an output.
func (n *NodeBuilder) Final(output ...any) *NodeBuilder {
	n.node.Type = machine.TypeFinal
	if len(output) > 0 {
		n.node.Output = output[0]
	}
	return n
}

// History marks the state as a history pseudo-state.
// The default target is used when nothing was recorded yet.
func (n *NodeBuilder) History(deep bool, defaultTarget ...string) *NodeBuilder {
	n.node.Type = machine.TypeHistory
	n.node.History = "shallow"
	if deep {
		n.node.History = "deep"
	}
	n.node.Target = append(machine.Targets(nil), defaultTarget...)
	return n
}

// Output sets the output of a final state.
func (n *NodeBuilder) Output(v any) *NodeBuilder {
	n.node.Output = v
	return n
}

// Config returns the underlying state description.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Config() *machine.StateConfig {
	return n.node
}

func targets(target string) machine.Targets {
	if target == "" {
		return nil
	}
	return machine.Targets{target}
}

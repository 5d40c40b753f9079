package machine

import (
	"strings"

	"github.com/aretw0/troupe/pkg/domain"
)

// Builtin guard types.
const (
	GuardAnd     = "and"
	GuardOr      = "or"
	GuardNot     = "not"
	GuardStateIn = "stateIn"
)

type guard interface {
	eval(w *working, ev domain.Event) bool
}

type namedGuard struct {
	name   string
	fn     GuardFunc
	params map[string]any
}

func (g namedGuard) eval(w *working, ev domain.Event) bool {
	return g.fn(Args{Context: w.context, Event: ev, Params: g.params})
}

type andGuard []guard

func (g andGuard) eval(w *working, ev domain.Event) bool {
	for _, inner := range g {
		if !inner.eval(w, ev) {
			return false
		}
	}
	return true
}

type orGuard []guard

func (g orGuard) eval(w *working, ev domain.Event) bool {
	for _, inner := range g {
		if inner.eval(w, ev) {
			return true
		}
	}
	return false
}

type notGuard struct{ inner guard }

func (g notGuard) eval(w *working, ev domain.Event) bool { return !g.inner.eval(w, ev) }

type stateInGuard struct{ node *StateNode }

func (g stateInGuard) eval(w *working, _ domain.Event) bool { return w.nodes[g.node] }

// When wraps an inline guard function.
func When(name string, fn GuardFunc) *GuardConfig {
	return &GuardConfig{Type: name, Func: fn}
}

// Guard references a named guard with optional params.
func Guard(name string, params map[string]any) *GuardConfig {
	return &GuardConfig{Type: name, Params: params}
}

// And passes when every guard passes.
func And(guards ...*GuardConfig) *GuardConfig {
	return &GuardConfig{Type: GuardAnd, Guards: guards}
}

// Or passes when any guard passes.
func Or(guards ...*GuardConfig) *GuardConfig {
	return &GuardConfig{Type: GuardOr, Guards: guards}
}

// Not negates a guard.
func Not(g *GuardConfig) *GuardConfig {
	return &GuardConfig{Type: GuardNot, Guard: g}
}

// StateIn passes when the state is active. The state is a "#id" or a
// dotted key path from the root.
func StateIn(state string) *GuardConfig {
	return &GuardConfig{Type: GuardStateIn, State: state}
}

func (c *compiler) guard(owner string, g *GuardConfig) guard {
	if g == nil {
		return nil
	}
	if g.Func != nil {
		return namedGuard{name: g.Type, fn: g.Func, params: g.Params}
	}
	switch g.Type {
	case GuardAnd, GuardOr:
		if len(g.Guards) == 0 {
			c.fail(owner, "guard %q requires guards", g.Type)
			return nil
		}
		inner := make([]guard, 0, len(g.Guards))
		for _, sub := range g.Guards {
			if compiled := c.guard(owner, sub); compiled != nil {
				inner = append(inner, compiled)
			}
		}
		if g.Type == GuardAnd {
			return andGuard(inner)
		}
		return orGuard(inner)
	case GuardNot:
		if g.Guard == nil {
			c.fail(owner, "guard %q requires a guard", g.Type)
			return nil
		}
		inner := c.guard(owner, g.Guard)
		if inner == nil {
			return nil
		}
		return notGuard{inner: inner}
	case GuardStateIn:
		node := c.lookupState(g.State)
		if node == nil {
			c.fail(owner, "stateIn: unknown state %q", g.State)
			return nil
		}
		return stateInGuard{node: node}
	}
	fn, ok := c.impl.Guards[g.Type]
	if !ok {
		c.fail(owner, "unknown guard %q", g.Type)
		return nil
	}
	return namedGuard{name: g.Type, fn: fn, params: g.Params}
}

// lookupState resolves "#id" or a dotted key path from the root.
func (c *compiler) lookupState(ref string) *StateNode {
	if id, ok := strings.CutPrefix(ref, "#"); ok {
		return c.m.nodes[id]
	}
	node := c.m.root
	for _, key := range strings.Split(ref, ".") {
		next, ok := node.childByKey[key]
		if !ok {
			return nil
		}
		node = next
	}
	return node
}

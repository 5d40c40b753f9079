package machine

import (
	"slices"

	"github.com/aretw0/troupe/pkg/domain"
)

// selectTransitions picks, for every active atomic state, the first enabled
// transition found on the state itself or its nearest ancestor, then drops
// transitions whose exit sets conflict.
func selectTransitions(w *working, ev domain.Event) []*Transition {
	return selectWith(w, ev, func(n *StateNode) []*Transition { return n.candidates(ev.Type) })
}

func selectEventless(w *working, ev domain.Event) []*Transition {
	return selectWith(w, ev, func(n *StateNode) []*Transition { return n.always })
}

func selectWith(w *working, ev domain.Event, candidates func(*StateNode) []*Transition) []*Transition {
	var enabled []*Transition
	for _, leaf := range w.configuration() {
		if !leaf.isAtomic() {
			continue
		}
	walk:
		for n := leaf; n != nil; n = n.Parent {
			for _, t := range candidates(n) {
				if t.guard != nil && !t.guard.eval(w, ev) {
					continue
				}
				if !slices.Contains(enabled, t) {
					enabled = append(enabled, t)
				}
				break walk
			}
		}
	}
	return removeConflicting(w, enabled)
}

// removeConflicting keeps the transition whose source is deeper when two
// transitions would exit the same states; otherwise the earlier one wins.
func removeConflicting(w *working, enabled []*Transition) []*Transition {
	var filtered []*Transition
	for _, t1 := range enabled {
		preempted := false
		var remove []*Transition
		exit1 := exitSet(w, []*Transition{t1})
		for _, t2 := range filtered {
			if !intersects(exit1, exitSet(w, []*Transition{t2})) {
				continue
			}
			if t1.Source.isDescendantOf(t2.Source) {
				remove = append(remove, t2)
			} else {
				preempted = true
				break
			}
		}
		if preempted {
			continue
		}
		filtered = slices.DeleteFunc(filtered, func(t *Transition) bool { return slices.Contains(remove, t) })
		filtered = append(filtered, t1)
	}
	return filtered
}

func intersects(a, b map[*StateNode]bool) bool {
	for n := range a {
		if b[n] {
			return true
		}
	}
	return false
}

// exitSet returns the active states left by the transitions.
func exitSet(w *working, ts []*Transition) map[*StateNode]bool {
	out := make(map[*StateNode]bool)
	for _, t := range ts {
		if len(t.Targets) == 0 {
			continue
		}
		dom := transitionDomain(w, t)
		if dom == nil {
			continue
		}
		if exitsDomain(t, dom) {
			out[dom] = true
		}
		for n := range w.nodes {
			if n.isDescendantOf(dom) {
				out[n] = true
			}
		}
	}
	return out
}

// transitionDomain is the compound state (or root) that contains both the
// source and the targets of a transition without being exited by it.
func transitionDomain(w *working, t *Transition) *StateNode {
	targets := effectiveTargets(w, t)
	if len(targets) == 0 {
		return nil
	}
	if !t.Reenter {
		internal := true
		for _, target := range targets {
			if target != t.Source && !target.isDescendantOf(t.Source) {
				internal = false
				break
			}
		}
		if internal {
			return t.Source
		}
	}
	if lcca := findLCCA(append(slices.Clone(targets), t.Source)); lcca != nil {
		return lcca
	}
	// Only transitions from or to the root itself have no compound ancestor.
	return t.Source.machine.root
}

// exitsDomain reports whether the domain itself is exited and entered again.
// That only happens for the root, when it reenters itself or is targeted
// from one of its descendants.
func exitsDomain(t *Transition, dom *StateNode) bool {
	if dom == nil {
		return false
	}
	if t.Source == dom {
		return t.Reenter
	}
	return slices.Contains(t.Targets, dom)
}

// findLCCA returns the least common compound ancestor of the nodes.
func findLCCA(nodes []*StateNode) *StateNode {
	head, tail := nodes[0], nodes[1:]
	for _, anc := range head.properAncestors(nil) {
		if anc.Kind != KindCompound && anc.Parent != nil {
			continue
		}
		all := true
		for _, n := range tail {
			if !n.isDescendantOf(anc) {
				all = false
				break
			}
		}
		if all {
			return anc
		}
	}
	return nil
}

// effectiveTargets expands history targets into the states they stand for.
func effectiveTargets(w *working, t *Transition) []*StateNode {
	var out []*StateNode
	add := func(n *StateNode) {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	for _, target := range t.Targets {
		if target.Kind != KindHistory {
			add(target)
			continue
		}
		recorded, ok := w.history[target.ID]
		if !ok {
			recorded = target.historyTargets
		}
		for _, n := range recorded {
			add(n)
		}
	}
	return out
}

// computeEntrySet collects the states entered by the transitions.
func computeEntrySet(w *working, ts []*Transition, toEnter map[*StateNode]bool) {
	for _, t := range ts {
		dom := transitionDomain(w, t)
		for _, s := range t.Targets {
			if s.Kind != KindHistory && (t.Source != s || t.Source != dom || t.Reenter) {
				toEnter[s] = true
			}
			addDescendantStates(w, s, toEnter)
		}
		reentrancy := dom
		if exitsDomain(t, dom) {
			reentrancy = nil
		}
		for _, s := range effectiveTargets(w, t) {
			ancestors := s.properAncestors(dom)
			if dom != nil && (dom.Kind == KindParallel || reentrancy == nil) {
				ancestors = append(ancestors, dom)
			}
			addAncestorStates(w, ancestors, reentrancy, toEnter)
		}
	}
}

func addDescendantStates(w *working, n *StateNode, toEnter map[*StateNode]bool) {
	switch n.Kind {
	case KindHistory:
		recorded, ok := w.history[n.ID]
		if !ok {
			recorded = n.historyTargets
		}
		for _, s := range recorded {
			toEnter[s] = true
			addDescendantStates(w, s, toEnter)
		}
		for _, s := range recorded {
			addAncestorStates(w, s.properAncestors(n.Parent), nil, toEnter)
		}
	case KindCompound:
		initial := n.Initial
		toEnter[initial] = true
		addDescendantStates(w, initial, toEnter)
		addAncestorStates(w, initial.properAncestors(n), nil, toEnter)
	case KindParallel:
		addRegions(w, n, toEnter)
	}
}

func addAncestorStates(w *working, ancestors []*StateNode, reentrancy *StateNode, toEnter map[*StateNode]bool) {
	for _, anc := range ancestors {
		if reentrancy == nil || anc.isDescendantOf(reentrancy) {
			toEnter[anc] = true
		}
		if anc.Kind == KindParallel {
			addRegions(w, anc, toEnter)
		}
	}
}

// addRegions enters every region of a parallel state not already covered.
func addRegions(w *working, n *StateNode, toEnter map[*StateNode]bool) {
	for _, region := range n.regions() {
		covered := false
		for s := range toEnter {
			if s.isDescendantOf(region) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		toEnter[region] = true
		addDescendantStates(w, region, toEnter)
	}
}

// inFinalState reports whether a compound or parallel state has completed.
func inFinalState(w *working, n *StateNode) bool {
	switch n.Kind {
	case KindCompound:
		for _, c := range n.Children {
			if c.Kind == KindFinal && w.nodes[c] {
				return true
			}
		}
		return false
	case KindParallel:
		for _, region := range n.regions() {
			if !inFinalState(w, region) {
				return false
			}
		}
		return true
	case KindFinal:
		return true
	}
	return false
}

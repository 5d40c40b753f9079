package machine

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
)

// DefaultMaxMicrosteps bounds the microsteps of one macrostep.
const DefaultMaxMicrosteps = 1000

var discardLogger = slog.New(slog.DiscardHandler)

// exec carries one macrostep. scope is nil for pure evaluation, in which case
// effects (spawns, sends, custom actions) are skipped.
type exec struct {
	m     *Machine
	scope *actor.Scope
	queue []domain.Event
	steps int
}

func (x *exec) logger() *slog.Logger {
	if x.scope != nil {
		return x.scope.Logger()
	}
	return discardLogger
}

// working is the mutable copy of a State used while a macrostep runs.
type working struct {
	nodes   map[*StateNode]bool
	context map[string]any
	history map[string][]*StateNode
	status  domain.Status
	output  any
	err     error

	contextChanged bool
	historyChanged bool
}

func newWorking(s *State) *working {
	w := &working{
		nodes:   make(map[*StateNode]bool, len(s.nodes)),
		context: s.context,
		history: maps.Clone(s.history),
		status:  s.status,
		output:  s.output,
		err:     s.err,
	}
	if w.history == nil {
		w.history = make(map[string][]*StateNode)
	}
	for _, n := range s.nodes {
		w.nodes[n] = true
	}
	return w
}

// configuration returns the active states in document order.
func (w *working) configuration() []*StateNode {
	return sortedNodes(w.nodes, false)
}

func sortedNodes(set map[*StateNode]bool, reverse bool) []*StateNode {
	out := make([]*StateNode, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *StateNode) int {
		if reverse {
			return b.Order - a.Order
		}
		return a.Order - b.Order
	})
	return out
}

// macrostep processes ev and then every eventless transition and internal
// event it causes, until the configuration is stable.
func (x *exec) macrostep(w *working, ev domain.Event) error {
	ts := selectTransitions(w, ev)
	if len(ts) == 0 && domain.IsErrorEvent(ev.Type) {
		err := domain.EventError(ev)
		if err == nil {
			err = fmt.Errorf("unhandled error event %q", ev.Type)
		}
		w.status = domain.StatusError
		w.err = err
		return nil
	}
	if len(ts) == 0 {
		if len(x.queue) == 0 {
			// An ignored event must not wake eventless guards that read it.
			return nil
		}
	} else if _, err := x.microstep(w, ts, ev, false); err != nil {
		return err
	}
	return x.settle(w, ev)
}

// settle runs eventless transitions and drains the internal queue.
func (x *exec) settle(w *working, ev domain.Event) error {
	eventless := true
	for w.status == domain.StatusActive {
		var ts []*Transition
		if eventless {
			ts = selectEventless(w, ev)
		}
		if len(ts) == 0 {
			if len(x.queue) == 0 {
				break
			}
			ev = x.queue[0]
			x.queue = x.queue[1:]
			ts = selectTransitions(w, ev)
		}
		if len(ts) == 0 {
			eventless = false
			continue
		}
		changed, err := x.microstep(w, ts, ev, false)
		if err != nil {
			return err
		}
		eventless = changed
	}
	return nil
}

// microstep takes a set of non-conflicting transitions. It reports whether
// the configuration, the context or the history changed.
func (x *exec) microstep(w *working, ts []*Transition, ev domain.Event, initial bool) (bool, error) {
	x.steps++
	if x.steps > x.m.maxMicrosteps {
		return false, fmt.Errorf("%w: more than %d microsteps while processing %q",
			domain.ErrInfiniteLoop, x.m.maxMicrosteps, ev.Type)
	}
	before := maps.Clone(w.nodes)
	w.contextChanged, w.historyChanged = false, false

	if !initial {
		if err := x.exitStates(w, ts, ev); err != nil {
			return false, err
		}
	}
	for _, t := range ts {
		if err := x.run(w, t.actions, ev); err != nil {
			return false, err
		}
	}
	if err := x.enterStates(w, ts, ev); err != nil {
		return false, err
	}
	if w.status == domain.StatusDone {
		for _, n := range sortedNodes(w.nodes, true) {
			if err := x.leave(w, n, ev); err != nil {
				return false, err
			}
		}
	}

	if x.scope != nil && !initial {
		for _, t := range ts {
			x.scope.ReportTransition(ev.Type, t.Source.ID, t.TargetIDs())
		}
	}
	return !maps.Equal(before, w.nodes) || w.contextChanged || w.historyChanged, nil
}

func (x *exec) run(w *working, actions []action, ev domain.Event) error {
	for _, a := range actions {
		if err := a.run(x, w, ev); err != nil {
			return err
		}
	}
	return nil
}

func (x *exec) exitStates(w *working, ts []*Transition, ev domain.Event) error {
	toExit := sortedNodes(exitSet(w, ts), true)

	for _, n := range toExit {
		for _, h := range n.historyChildren() {
			var recorded []*StateNode
			for _, s := range w.configuration() {
				if h.History == HistoryDeep {
					if s.isAtomic() && s.isDescendantOf(n) {
						recorded = append(recorded, s)
					}
				} else if s.Parent == n {
					recorded = append(recorded, s)
				}
			}
			w.history[h.ID] = recorded
			w.historyChanged = true
		}
	}

	for _, n := range toExit {
		if err := x.leave(w, n, ev); err != nil {
			return err
		}
		delete(w.nodes, n)
	}
	return nil
}

// leave runs the exit actions of a state and stops its invocations.
func (x *exec) leave(w *working, n *StateNode, ev domain.Event) error {
	if err := x.run(w, n.exit, ev); err != nil {
		return err
	}
	for _, inv := range n.invokes {
		if err := (stopChildAction{id: inv.id}).run(x, w, ev); err != nil {
			return err
		}
	}
	return nil
}

func (x *exec) enterStates(w *working, ts []*Transition, ev domain.Event) error {
	toEnter := make(map[*StateNode]bool)
	computeEntrySet(w, ts, toEnter)

	completed := make(map[*StateNode]bool)
	for _, n := range sortedNodes(toEnter, false) {
		w.nodes[n] = true
		if err := x.run(w, n.entry, ev); err != nil {
			return err
		}
		for _, inv := range n.invokes {
			spawn := spawnAction{src: inv.src, id: inv.id, systemID: inv.systemID, logic: inv.logic, input: inv.input}
			if err := spawn.run(x, w, ev); err != nil {
				return err
			}
		}
		if n.Kind != KindFinal {
			continue
		}

		output := n.output.resolve(Args{Context: w.context, Event: ev})
		parent := n.Parent
		if parent == nil {
			x.complete(w, n, output)
			continue
		}
		marker := parent.Parent
		if parent.Kind == KindParallel {
			marker = parent
		}
		completion := n
		if parent.Kind == KindCompound {
			x.queue = append(x.queue, domain.DoneStateEvent(parent.ID, output))
		}
		for marker != nil && marker.Kind == KindParallel && !completed[marker] && inFinalState(w, marker) {
			completed[marker] = true
			x.queue = append(x.queue, domain.DoneStateEvent(marker.ID, nil))
			completion = marker
			marker = marker.Parent
		}
		if marker != nil {
			continue
		}
		if completion == n {
			x.complete(w, n, output)
		} else {
			x.complete(w, completion, nil)
		}
	}
	return nil
}

// complete marks the machine done. The root output, when declared, sees the
// completion as a done.state event; otherwise the final state's output is used.
func (x *exec) complete(w *working, completion *StateNode, output any) {
	w.status = domain.StatusDone
	w.output = output
	if root := x.m.root; root.output != nil {
		w.output = root.output.resolve(Args{
			Context: w.context,
			Event:   domain.DoneStateEvent(completion.ID, output),
		})
	}
}

package machine

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/schema"
)

// DefaultMachineID is used when the root state declares no id.
const DefaultMachineID = "machine"

// New compiles a machine description.
// Every reference (targets, actions, guards, delays, child logics, mappers)
// is resolved here; all problems are reported together as a
// *schema.AggregateError.
func New(cfg MachineConfig, impl Implementations, opts ...Option) (*Machine, error) {
	m := &Machine{
		config:        cfg,
		impl:          impl,
		opts:          opts,
		maxMicrosteps: DefaultMaxMicrosteps,
		nodes:         make(map[string]*StateNode),
		inline:        make(map[string]actor.Logic),
		schema:        cfg.Schema,
		context:       cfg.Context,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.id = cfg.ID
	if m.id == "" {
		m.id = DefaultMachineID
	}

	c := &compiler{m: m, impl: impl, configs: make(map[*StateNode]*StateConfig)}
	root := cfg.StateConfig
	m.root = c.build(&root, nil, m.id, nil)
	if len(c.errs) == 0 {
		for _, n := range m.ordered {
			c.resolve(n)
		}
	}

	if cfg.Version != "" {
		v, err := semver.NewVersion(cfg.Version)
		if err != nil {
			c.fail(m.id, "invalid version %q: %v", cfg.Version, err)
		}
		m.version = v
	}
	if cfg.ContextFrom != "" {
		fn, ok := impl.Mappers[cfg.ContextFrom]
		if !ok {
			c.fail(m.id, "unknown mapper %q", cfg.ContextFrom)
		}
		m.contextFrom = fn
	}

	if len(c.errs) > 0 {
		return nil, &schema.AggregateError{Errors: c.errs}
	}

	seen := make(map[string]bool)
	for _, n := range m.ordered {
		for _, ev := range n.ownEvents {
			if !seen[ev] {
				seen[ev] = true
				m.events = append(m.events, ev)
			}
		}
	}
	slices.Sort(m.events)
	return m, nil
}

type compiler struct {
	m       *Machine
	impl    Implementations
	configs map[*StateNode]*StateConfig
	errs    []error
	order   int
	torder  int
}

func (c *compiler) fail(owner string, format string, args ...any) {
	c.errs = append(c.errs, &schema.ValidationError{Key: owner, Reason: fmt.Sprintf(format, args...)})
}

// build creates the node tree and assigns ids and document order.
func (c *compiler) build(cfg *StateConfig, parent *StateNode, key string, path []string) *StateNode {
	if cfg == nil {
		cfg = &StateConfig{}
	}
	n := &StateNode{
		Key:         key,
		Parent:      parent,
		Order:       c.order,
		Tags:        cfg.Tags,
		Description: cfg.Description,
		machine:     c.m,
		childByKey:  make(map[string]*StateNode),
		exact:       make(map[string][]*Transition),
	}
	c.order++

	switch {
	case parent == nil:
		n.ID = c.m.id
	case cfg.ID != "":
		n.ID = cfg.ID
	default:
		n.ID = c.m.id + "." + strings.Join(path, ".")
	}
	if _, dup := c.m.nodes[n.ID]; dup {
		c.fail(n.ID, "duplicate state id")
	}
	c.m.nodes[n.ID] = n
	c.m.ordered = append(c.m.ordered, n)
	c.configs[n] = cfg

	hasChildren := len(cfg.States) > 0
	switch cfg.Type {
	case "":
		switch {
		case cfg.History != "":
			n.Kind = KindHistory
		case hasChildren:
			n.Kind = KindCompound
		default:
			n.Kind = KindAtomic
		}
	case TypeAtomic:
		n.Kind = KindAtomic
	case TypeCompound:
		n.Kind = KindCompound
	case TypeParallel:
		n.Kind = KindParallel
	case TypeFinal:
		n.Kind = KindFinal
	case TypeHistory:
		n.Kind = KindHistory
	default:
		c.fail(n.ID, "unknown state type %q", cfg.Type)
	}

	switch n.Kind {
	case KindCompound, KindParallel:
		if !hasChildren {
			c.fail(n.ID, "%s state requires child states", n.Kind)
		}
	default:
		if hasChildren {
			c.fail(n.ID, "%s state cannot have child states", n.Kind)
		}
	}

	if n.Kind == KindHistory {
		switch cfg.History {
		case "", "shallow":
			n.History = HistoryShallow
		case "deep":
			n.History = HistoryDeep
		default:
			c.fail(n.ID, "unknown history type %q", cfg.History)
		}
		if parent == nil {
			c.fail(n.ID, "the root cannot be a history state")
		}
	}

	for _, e := range cfg.States {
		if e.Key == "" || strings.ContainsAny(e.Key, ".#") {
			c.fail(n.ID, "invalid state key %q", e.Key)
			continue
		}
		child := c.build(e.Value, n, e.Key, append(slices.Clone(path), e.Key))
		n.Children = append(n.Children, child)
		n.childByKey[e.Key] = child
	}
	return n
}

// resolve compiles the references of a node. Nodes are resolved in document
// order, so a parent's initial child is known before its history children.
func (c *compiler) resolve(n *StateNode) {
	cfg := c.configs[n]
	owner := n.ID

	switch n.Kind {
	case KindCompound:
		if cfg.Initial != "" {
			child, ok := n.childByKey[cfg.Initial]
			switch {
			case !ok:
				c.fail(owner, "initial state %q is not a child", cfg.Initial)
			case child.Kind == KindHistory:
				c.fail(owner, "initial state %q cannot be a history state", cfg.Initial)
			default:
				n.Initial = child
			}
		} else if regions := n.regions(); len(regions) > 0 {
			n.Initial = regions[0]
		} else {
			c.fail(owner, "compound state has no initial state")
		}
	default:
		if cfg.Initial != "" {
			c.fail(owner, "initial is only valid on compound states")
		}
	}

	if n.Kind == KindHistory {
		for _, ref := range cfg.Target {
			if target := c.resolveTarget(n, ref); target != nil {
				n.historyTargets = append(n.historyTargets, target)
			} else {
				c.fail(owner, "unknown history target %q", ref)
			}
		}
		if len(n.historyTargets) == 0 {
			switch p := n.Parent; p.Kind {
			case KindCompound:
				if p.Initial != nil {
					n.historyTargets = []*StateNode{p.Initial}
				}
			case KindParallel:
				n.historyTargets = p.regions()
			}
		}
	}

	n.entry = c.actions(owner, cfg.Entry)
	n.exit = c.actions(owner, cfg.Exit)

	for _, e := range cfg.After {
		d := c.delay(owner, e.Key)
		if d == nil {
			continue
		}
		evType := domain.AfterType(e.Key, n.ID)
		n.entry = append(n.entry, raiseAction{event: domain.Event{Type: evType}, delay: d, id: evType})
		n.exit = append(n.exit, cancelAction{id: evType})
		c.addTransitions(n, evType, e.Value)
	}

	for _, e := range cfg.On {
		c.addTransitions(n, e.Key, e.Value)
		n.ownEvents = append(n.ownEvents, e.Key)
	}

	n.always = c.transitions(n, "", cfg.Always)

	if len(cfg.OnDone) > 0 {
		if n.Kind != KindCompound && n.Kind != KindParallel {
			c.fail(owner, "onDone is only valid on compound and parallel states")
		}
		c.addTransitions(n, domain.DoneStateType(n.ID), cfg.OnDone)
	}

	for i, ic := range cfg.Invoke {
		id := ic.ID
		if id == "" {
			id = fmt.Sprintf("%s:invocation[%d]", n.ID, i)
		}
		logic := c.logic(owner, ic.Src, ic.Logic)
		if logic == nil {
			continue
		}
		n.invokes = append(n.invokes, &invokeDef{
			id:       id,
			src:      ic.Src,
			systemID: ic.SystemID,
			logic:    logic,
			input:    c.valueRef(owner, ic.Input, ic.InputFrom),
		})
		c.addTransitions(n, domain.DoneActorType(id), ic.OnDone)
		c.addTransitions(n, domain.ErrorActorType(id), ic.OnError)
	}

	n.output = c.valueRef(owner, cfg.Output, cfg.OutputFrom)

	sort.SliceStable(n.wildcards, func(i, j int) bool {
		return len(n.wildcards[i].descriptor) > len(n.wildcards[j].descriptor)
	})
}

func (c *compiler) addTransitions(n *StateNode, descriptor string, list TransitionList) {
	ts := c.transitions(n, descriptor, list)
	if len(ts) == 0 {
		return
	}
	if !slices.Contains(n.descriptors, descriptor) {
		n.descriptors = append(n.descriptors, descriptor)
	}
	if !domain.IsWildcard(descriptor) {
		n.exact[descriptor] = append(n.exact[descriptor], ts...)
		return
	}
	for i := range n.wildcards {
		if n.wildcards[i].descriptor == descriptor {
			n.wildcards[i].transitions = append(n.wildcards[i].transitions, ts...)
			return
		}
	}
	n.wildcards = append(n.wildcards, wildcardEntry{descriptor: descriptor, transitions: ts})
}

func (c *compiler) transitions(n *StateNode, descriptor string, list TransitionList) []*Transition {
	var out []*Transition
	for _, tc := range list {
		t := &Transition{
			Source:  n,
			Event:   descriptor,
			Reenter: tc.Reenter,
			order:   c.torder,
		}
		c.torder++
		for _, ref := range tc.Target {
			target := c.resolveTarget(n, ref)
			if target == nil {
				c.fail(n.ID, "event %q: unknown target %q", descriptor, ref)
				continue
			}
			t.Targets = append(t.Targets, target)
		}
		t.guard = c.guard(n.ID, tc.Guard)
		t.actions = c.actions(n.ID, tc.Actions)
		out = append(out, t)
	}
	return out
}

// resolveTarget accepts "#id" (optionally followed by ".child" keys),
// ".child" for descendants of the source, and sibling key paths.
func (c *compiler) resolveTarget(source *StateNode, ref string) *StateNode {
	if id, ok := strings.CutPrefix(ref, "#"); ok {
		if n, ok := c.m.nodes[id]; ok {
			return n
		}
		parts := strings.Split(id, ".")
		for i := len(parts) - 1; i > 0; i-- {
			if n, ok := c.m.nodes[strings.Join(parts[:i], ".")]; ok {
				return descend(n, parts[i:])
			}
		}
		return nil
	}
	if rel, ok := strings.CutPrefix(ref, "."); ok {
		return descend(source, strings.Split(rel, "."))
	}
	base := source.Parent
	if base == nil {
		base = source
	}
	return descend(base, strings.Split(ref, "."))
}

func descend(n *StateNode, keys []string) *StateNode {
	for _, key := range keys {
		next, ok := n.childByKey[key]
		if !ok {
			return nil
		}
		n = next
	}
	return n
}

func (c *compiler) logic(owner, src string, inline actor.Logic) actor.Logic {
	if src == "" {
		c.fail(owner, "child actor requires a src")
		return nil
	}
	if inline != nil {
		c.m.inline[src] = inline
		return inline
	}
	if l, ok := c.impl.Actors[src]; ok {
		return l
	}
	if l, ok := c.m.inline[src]; ok {
		return l
	}
	c.fail(owner, "unknown actor logic %q", src)
	return nil
}

func (c *compiler) delay(owner string, v any) *delayRef {
	d, name, ok := delayFromValue(v)
	if !ok {
		c.fail(owner, "invalid delay %v", v)
		return nil
	}
	if name == "" {
		return &delayRef{fixed: d}
	}
	fn, found := c.impl.Delays[name]
	if !found {
		c.fail(owner, "unknown delay %q", name)
		return nil
	}
	return &delayRef{fn: fn}
}

func (c *compiler) valueRef(owner string, literal any, mapper string) *valueRef {
	if mapper != "" {
		fn, ok := c.impl.Mappers[mapper]
		if !ok {
			c.fail(owner, "unknown mapper %q", mapper)
			return nil
		}
		return &valueRef{mapper: fn}
	}
	if literal == nil {
		return nil
	}
	return &valueRef{literal: literal}
}

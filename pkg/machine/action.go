package machine

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Builtin action types.
const (
	ActionAssign     = "assign"
	ActionRaise      = "raise"
	ActionSendTo     = "sendTo"
	ActionSendParent = "sendParent"
	ActionForwardTo  = "forwardTo"
	ActionEmit       = "emit"
	ActionLog        = "log"
	ActionSpawnChild = "spawnChild"
	ActionStopChild  = "stopChild"
	ActionCancel     = "cancel"
)

// ParentTarget addresses the parent actor in sendTo and forwardTo.
const ParentTarget = "#_parent"

type action interface {
	run(x *exec, w *working, ev domain.Event) error
}

type assignAction struct {
	values map[string]any
	fn     AssignFunc
	name   string
	params map[string]any
}

func (a assignAction) run(_ *exec, w *working, ev domain.Event) error {
	args := Args{Context: w.context, Event: ev, Params: a.params}
	var update map[string]any
	if a.fn != nil {
		var err error
		if update, err = a.fn(args); err != nil {
			return fmt.Errorf("assign %q: %w", a.name, err)
		}
	} else {
		update, _ = resolveRefs(a.values, args).(map[string]any)
	}
	next := copyContext(w.context)
	for k, v := range update {
		next[k] = v
	}
	w.context = next
	w.contextChanged = true
	return nil
}

type raiseAction struct {
	event domain.Event
	delay *delayRef
	id    string
}

func (a raiseAction) run(x *exec, w *working, ev domain.Event) error {
	args := Args{Context: w.context, Event: ev}
	out := domain.Event{Type: a.event.Type, Payload: resolveRefs(a.event.Payload, args)}
	if a.delay == nil {
		x.queue = append(x.queue, out)
		return nil
	}
	if x.scope == nil {
		return nil
	}
	x.scope.Schedule(x.scope.Self(), out, a.delay.resolve(args), a.id)
	return nil
}

type sendAction struct {
	to      string
	event   domain.Event
	forward bool
	delay   *delayRef
	id      string
}

func (a sendAction) run(x *exec, w *working, ev domain.Event) error {
	if x.scope == nil {
		return nil
	}
	args := Args{Context: w.context, Event: ev}
	out := ev
	if !a.forward {
		out = domain.Event{Type: a.event.Type, Payload: resolveRefs(a.event.Payload, args)}
	}
	var delay time.Duration
	if a.delay != nil {
		delay = a.delay.resolve(args)
	}

	scope := x.scope
	// Targets are resolved once the step commits, so that children spawned
	// in the same step are reachable.
	scope.Defer(func() error {
		target, err := resolveTarget(scope, a.to)
		if err != nil {
			return err
		}
		if a.delay != nil {
			scope.System().Schedule(scope.Self(), target, out, delay, a.id)
			return nil
		}
		scope.Deliver(target, out)
		return nil
	})
	return nil
}

func resolveTarget(scope *actor.Scope, to string) (*actor.Actor, error) {
	if to == ParentTarget {
		if p := scope.Parent(); p != nil {
			return p, nil
		}
		return nil, fmt.Errorf("%w: %s has no parent", domain.ErrActorNotFound, scope.Self().ID())
	}
	if systemID, ok := strings.CutPrefix(to, "#"); ok {
		if target, ok := scope.System().Get(systemID); ok {
			return target, nil
		}
		return nil, fmt.Errorf("%w: system id %q", domain.ErrActorNotFound, systemID)
	}
	if child, ok := scope.Child(to); ok {
		return child, nil
	}
	return nil, fmt.Errorf("%w: child %q", domain.ErrActorNotFound, to)
}

type emitAction struct{ event domain.Event }

func (a emitAction) run(x *exec, w *working, ev domain.Event) error {
	if x.scope == nil {
		return nil
	}
	args := Args{Context: w.context, Event: ev}
	x.scope.Emit(domain.Event{Type: a.event.Type, Payload: resolveRefs(a.event.Payload, args)})
	return nil
}

type logAction struct {
	message string
	level   slog.Level
	value   any
}

func (a logAction) run(x *exec, w *working, ev domain.Event) error {
	attrs := []any{"event", ev.Type}
	if a.value != nil {
		attrs = append(attrs, "value", resolveRefs(a.value, Args{Context: w.context, Event: ev}))
	}
	x.logger().Log(context.Background(), a.level, a.message, attrs...)
	return nil
}

type spawnAction struct {
	src      string
	id       string
	systemID string
	logic    actor.Logic
	input    *valueRef
}

func (a spawnAction) run(x *exec, w *working, ev domain.Event) error {
	if x.scope == nil {
		return nil
	}
	input := a.input.resolve(Args{Context: w.context, Event: ev})
	_, err := x.scope.Spawn(a.src, a.logic,
		actor.WithID(a.id),
		actor.WithSystemID(a.systemID),
		actor.WithInput(input),
	)
	if err != nil {
		return fmt.Errorf("spawn %q: %w", a.src, err)
	}
	return nil
}

type stopChildAction struct{ id string }

func (a stopChildAction) run(x *exec, _ *working, _ domain.Event) error {
	if x.scope != nil {
		x.scope.StopChild(a.id)
	}
	return nil
}

type cancelAction struct{ id string }

func (a cancelAction) run(x *exec, _ *working, _ domain.Event) error {
	if x.scope != nil {
		x.scope.Cancel(a.id)
	}
	return nil
}

type customAction struct {
	name   string
	fn     ActionFunc
	params map[string]any
}

func (a customAction) run(x *exec, w *working, ev domain.Event) error {
	if x.scope == nil {
		return nil
	}
	args := ActionArgs{
		Args:   Args{Context: w.context, Event: ev, Params: a.params},
		Self:   x.scope.Self(),
		Logger: x.scope.Logger(),
	}
	if x.scope.Running() {
		return a.call(args)
	}
	// Not started yet: run with the initialization effects.
	x.scope.Defer(func() error { return a.call(args) })
	return nil
}

func (a customAction) call(args ActionArgs) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %q panicked: %v", a.name, r)
		}
	}()
	if err := a.fn(args); err != nil {
		return fmt.Errorf("action %q: %w", a.name, err)
	}
	return nil
}

// --- Builders ---

// AssignValues merges literal values into the context.
// String values such as "$event.payload" are resolved when the action runs.
func AssignValues(values map[string]any) ActionConfig {
	return ActionConfig{Type: ActionAssign, Params: values}
}

// AssignWith merges the entries returned by fn into the context.
func AssignWith(name string, fn AssignFunc) ActionConfig {
	return ActionConfig{Type: name, Assign: fn}
}

// Raise queues an event on the machine's internal queue.
func Raise(ev domain.Event) ActionConfig {
	return ActionConfig{Type: ActionRaise, Params: map[string]any{"event": ev}}
}

// RaiseAfter sends an event to the machine itself after delay.
// A later raise or cancel with the same id replaces or cancels it.
func RaiseAfter(ev domain.Event, delay time.Duration, id string) ActionConfig {
	return ActionConfig{Type: ActionRaise, Params: map[string]any{"event": ev, "delay": delay, "id": id}}
}

// SendTo sends an event to a child id, "#<systemId>" or ParentTarget.
func SendTo(to string, ev domain.Event) ActionConfig {
	return ActionConfig{Type: ActionSendTo, Params: map[string]any{"to": to, "event": ev}}
}

// SendParent sends an event to the parent actor.
func SendParent(ev domain.Event) ActionConfig {
	return ActionConfig{Type: ActionSendParent, Params: map[string]any{"event": ev}}
}

// ForwardTo forwards the current event.
func ForwardTo(to string) ActionConfig {
	return ActionConfig{Type: ActionForwardTo, Params: map[string]any{"to": to}}
}

// Emit notifies listeners registered with Actor.On.
func Emit(ev domain.Event) ActionConfig {
	return ActionConfig{Type: ActionEmit, Params: map[string]any{"event": ev}}
}

// Log writes a message to the actor logger.
func Log(message string) ActionConfig {
	return ActionConfig{Type: ActionLog, Params: map[string]any{"message": message}}
}

// SpawnChild starts a child actor resolved from Implementations.Actors.
func SpawnChild(src, id string) ActionConfig {
	return ActionConfig{Type: ActionSpawnChild, Params: map[string]any{"src": src, "id": id}}
}

// StopChild stops a child actor.
func StopChild(id string) ActionConfig {
	return ActionConfig{Type: ActionStopChild, Params: map[string]any{"id": id}}
}

// Cancel cancels a delayed event.
func Cancel(id string) ActionConfig {
	return ActionConfig{Type: ActionCancel, Params: map[string]any{"id": id}}
}

// Do runs an inline custom action.
func Do(name string, fn ActionFunc) ActionConfig {
	return ActionConfig{Type: name, Func: fn}
}

// --- Compilation ---

type sendParams struct {
	To        string       `mapstructure:"to"`
	Event     domain.Event `mapstructure:"event"`
	Delay     any          `mapstructure:"delay"`
	ID        string       `mapstructure:"id"`
	Message   string       `mapstructure:"message"`
	Level     string       `mapstructure:"level"`
	Value     any          `mapstructure:"value"`
	Src       string       `mapstructure:"src"`
	SystemID  string       `mapstructure:"systemId"`
	Input     any          `mapstructure:"input"`
	InputFrom string       `mapstructure:"inputFrom"`
}

var eventType = reflect.TypeOf(domain.Event{})

// eventHook lets event parameters be written as a bare type name.
func eventHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != eventType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return domain.Event{Type: v}, nil
	case map[string]any:
		typ, _ := v["type"].(string)
		return domain.Event{Type: typ, Payload: v["payload"]}, nil
	}
	return data, nil
}

func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       eventHook,
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}

func (c *compiler) actions(owner string, list ActionList) []action {
	out := make([]action, 0, len(list))
	for _, ac := range list {
		if a := c.action(owner, ac); a != nil {
			out = append(out, a)
		}
	}
	return out
}

func (c *compiler) action(owner string, ac ActionConfig) action {
	if ac.Func != nil {
		return customAction{name: ac.Type, fn: ac.Func, params: ac.Params}
	}
	if ac.Assign != nil {
		return assignAction{name: ac.Type, fn: ac.Assign, params: ac.Params}
	}

	switch ac.Type {
	case ActionAssign:
		return assignAction{name: ac.Type, values: ac.Params}
	case ActionRaise, ActionSendTo, ActionSendParent, ActionForwardTo, ActionEmit,
		ActionLog, ActionSpawnChild, ActionStopChild, ActionCancel:
		return c.builtinAction(owner, ac)
	}

	if fn, ok := c.impl.Assigns[ac.Type]; ok {
		return assignAction{name: ac.Type, fn: fn, params: ac.Params}
	}
	if fn, ok := c.impl.Actions[ac.Type]; ok {
		return customAction{name: ac.Type, fn: fn, params: ac.Params}
	}
	c.fail(owner, "unknown action %q", ac.Type)
	return nil
}

func (c *compiler) builtinAction(owner string, ac ActionConfig) action {
	var p sendParams
	if err := decodeParams(ac.Params, &p); err != nil {
		c.fail(owner, "action %q: %v", ac.Type, err)
		return nil
	}
	delay := func() *delayRef {
		if p.Delay == nil {
			return nil
		}
		return c.delay(owner, p.Delay)
	}
	requireEvent := func() bool {
		if p.Event.Type == "" {
			c.fail(owner, "action %q requires an event", ac.Type)
			return false
		}
		return true
	}

	switch ac.Type {
	case ActionRaise:
		if !requireEvent() {
			return nil
		}
		a := raiseAction{event: p.Event, delay: delay(), id: p.ID}
		if a.id == "" {
			a.id = p.Event.Type
		}
		return a
	case ActionSendTo, ActionSendParent:
		if !requireEvent() {
			return nil
		}
		to := p.To
		if ac.Type == ActionSendParent {
			to = ParentTarget
		}
		if to == "" {
			c.fail(owner, "action %q requires a target", ac.Type)
			return nil
		}
		a := sendAction{to: to, event: p.Event, delay: delay(), id: p.ID}
		if a.id == "" {
			a.id = p.Event.Type
		}
		return a
	case ActionForwardTo:
		if p.To == "" {
			c.fail(owner, "action %q requires a target", ac.Type)
			return nil
		}
		return sendAction{to: p.To, forward: true}
	case ActionEmit:
		if !requireEvent() {
			return nil
		}
		return emitAction{event: p.Event}
	case ActionLog:
		level := slog.LevelInfo
		if p.Level != "" {
			if err := level.UnmarshalText([]byte(p.Level)); err != nil {
				c.fail(owner, "log: invalid level %q", p.Level)
			}
		}
		return logAction{message: p.Message, level: level, value: p.Value}
	case ActionSpawnChild:
		logic := c.logic(owner, p.Src, nil)
		if logic == nil {
			return nil
		}
		return spawnAction{
			src:      p.Src,
			id:       p.ID,
			systemID: p.SystemID,
			logic:    logic,
			input:    c.valueRef(owner, p.Input, p.InputFrom),
		}
	case ActionStopChild, ActionCancel:
		if p.ID == "" {
			c.fail(owner, "action %q requires an id", ac.Type)
			return nil
		}
		if ac.Type == ActionCancel {
			return cancelAction{id: p.ID}
		}
		return stopChildAction{id: p.ID}
	}
	return nil
}

package machine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateOf(t *testing.T, a *actor.Actor) *machine.State {
	t.Helper()
	s, ok := a.Snapshot().(*machine.State)
	require.True(t, ok, "unexpected snapshot type %T", a.Snapshot())
	return s
}

func waitDone(t *testing.T, a *actor.Actor) *machine.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := actor.WaitFor(ctx, a, func(s actor.Snapshot) bool { return s.Status() != domain.StatusActive })
	require.NoError(t, err)
	return snap.(*machine.State)
}

const timer = `
id: timer
initial: waiting
states:
  waiting:
    after:
      1000: timeout
      5s: late
    on:
      CANCEL: cancelled
  timeout:
    type: final
  late: {}
  cancelled: {}
`

func TestDelayedTransitions(t *testing.T) {
	m := compile(t, timer, machine.Implementations{})
	clock := actor.NewSimulatedClock(time.Unix(0, 0))

	a := actor.New(m, actor.WithClock(clock))
	require.NoError(t, a.Start())
	assert.Equal(t, 2, clock.Pending())

	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, "waiting", stateOf(t, a).Value())

	clock.Advance(time.Millisecond)
	assert.Equal(t, "timeout", stateOf(t, a).Value())
	assert.Equal(t, domain.StatusDone, stateOf(t, a).Status())
	assert.Equal(t, 0, clock.Pending(), "leaving the state cancels its other timers")
}

func TestDelayedTransitionsAreCancelledOnExit(t *testing.T) {
	m := compile(t, timer, machine.Implementations{})
	clock := actor.NewSimulatedClock(time.Unix(0, 0))

	a := actor.New(m, actor.WithClock(clock))
	require.NoError(t, a.Start())
	require.NoError(t, a.Send(ev("CANCEL")))
	assert.Equal(t, 0, clock.Pending())

	clock.Advance(10 * time.Second)
	assert.Equal(t, "cancelled", stateOf(t, a).Value())
}

func TestNamedDelay(t *testing.T) {
	const src = `
id: backoff
initial: retrying
context:
  attempt: 3
states:
  retrying:
    after:
      backoff: gaveUp
  gaveUp: {}
`
	impl := machine.Implementations{Delays: map[string]machine.DelayFunc{
		"backoff": func(args machine.Args) time.Duration {
			return time.Duration(args.Context["attempt"].(int)) * time.Second
		},
	}}
	m := compile(t, src, impl)
	clock := actor.NewSimulatedClock(time.Unix(0, 0))
	a := actor.New(m, actor.WithClock(clock))
	require.NoError(t, a.Start())

	clock.Advance(2 * time.Second)
	assert.Equal(t, "retrying", stateOf(t, a).Value())
	clock.Advance(time.Second)
	assert.Equal(t, "gaveUp", stateOf(t, a).Value())
}

const fetcher = `
id: fetcher
initial: loading
context:
  userId: 42
states:
  loading:
    invoke:
      id: fetch
      src: fetchUser
      input: $context.userId
      onDone:
        target: ready
        actions:
          - type: assign
            user: $event.payload
      onError:
        target: failed
        actions:
          - type: assign
            reason: $event.payload.message
  ready:
    type: final
    output: $context.user
  failed: {}
`

func TestInvokedPromise(t *testing.T) {
	impl := machine.Implementations{Actors: map[string]actor.Logic{
		"fetchUser": actor.FromPromise("fetchUser", func(_ context.Context, input any) (any, error) {
			return fmt.Sprintf("user-%v", input), nil
		}),
	}}
	a := actor.New(compile(t, fetcher, impl))
	require.NoError(t, a.Start())

	s := waitDone(t, a)
	assert.Equal(t, "ready", s.Value())
	assert.Equal(t, "user-42", s.Output())
	assert.Empty(t, a.Children())
}

func TestInvokedPromiseFailure(t *testing.T) {
	impl := machine.Implementations{Actors: map[string]actor.Logic{
		"fetchUser": actor.FromPromise("fetchUser", func(context.Context, any) (any, error) {
			return nil, errors.New("not found")
		}),
	}}
	a := actor.New(compile(t, fetcher, impl))
	require.NoError(t, a.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := actor.WaitFor(ctx, a, func(s actor.Snapshot) bool {
		return s.(*machine.State).Matches("failed")
	})
	require.NoError(t, err)
	assert.Contains(t, snap.(*machine.State).Context()["reason"], "not found")
	assert.Equal(t, actor.StatusRunning, a.Status())
}

func TestInvokedChildIsStoppedOnExit(t *testing.T) {
	var mu sync.Mutex
	var cleaned bool
	impl := machine.Implementations{Actors: map[string]actor.Logic{
		"ticker": actor.FromCallback("ticker", func(actor.CallbackArgs) func() {
			return func() {
				mu.Lock()
				cleaned = true
				mu.Unlock()
			}
		}),
	}}
	const src = `
id: watcher
initial: watching
states:
  watching:
    invoke:
      id: ticker
      src: ticker
    on:
      LEAVE: idle
  idle: {}
`
	a := actor.New(compile(t, src, impl))
	require.NoError(t, a.Start())
	_, ok := a.Child("ticker")
	require.True(t, ok)

	require.NoError(t, a.Send(ev("LEAVE")))
	_, ok = a.Child("ticker")
	assert.False(t, ok)
	mu.Lock()
	assert.True(t, cleaned)
	mu.Unlock()
}

func TestReenteringInvokingStateRestartsChild(t *testing.T) {
	var mu sync.Mutex
	var started, cleaned int
	impl := machine.Implementations{Actors: map[string]actor.Logic{
		"job": actor.FromCallback("job", func(actor.CallbackArgs) func() {
			mu.Lock()
			started++
			mu.Unlock()
			return func() {
				mu.Lock()
				cleaned++
				mu.Unlock()
			}
		}),
	}}
	const src = `
id: supervisor
initial: working
states:
  working:
    invoke:
      id: worker
      src: job
    on:
      RESTART:
        target: working
        reenter: true
      BOUNCE: bounced
  bounced:
    always:
      - target: working
`
	a := actor.New(compile(t, src, impl))
	require.NoError(t, a.Start())
	first, ok := a.Child("worker")
	require.True(t, ok)

	require.NoError(t, a.Send(ev("RESTART")))
	second, ok := a.Child("worker")
	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Equal(t, actor.StatusStopped, first.Status())
	assert.Equal(t, actor.StatusRunning, a.Status())

	// Leaving and coming back within one macrostep.
	require.NoError(t, a.Send(ev("BOUNCE")))
	third, ok := a.Child("worker")
	require.True(t, ok)
	assert.NotSame(t, second, third)
	assert.Equal(t, "working", stateOf(t, a).Value())
	assert.Equal(t, actor.StatusRunning, a.Status())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, started)
	assert.Equal(t, 2, cleaned)
}

func TestFailedStepDropsQueuedEvents(t *testing.T) {
	var handled []string
	impl := machine.Implementations{Actions: map[string]machine.ActionFunc{
		"mailSelf": func(args machine.ActionArgs) error { return args.Self.Send(ev("MAILED")) },
		"boom":     func(machine.ActionArgs) error { return errors.New("boom") },
		"note": func(args machine.ActionArgs) error {
			handled = append(handled, args.Event.Type)
			return nil
		},
	}}
	const src = `
id: fragile
initial: idle
states:
  idle:
    on:
      A:
        actions:
          - type: raise
            event: RAISED
          - mailSelf
          - boom
      RAISED:
        actions: [note]
      MAILED:
        actions: [note]
`
	a := actor.New(compile(t, src, impl))
	require.NoError(t, a.Start())

	err := a.Send(ev("A"))
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, actor.StatusErrored, a.Status())
	assert.Empty(t, handled)
}

func TestParentChildMessaging(t *testing.T) {
	child := `
id: pong
initial: waiting
states:
  waiting:
    on:
      PING:
        target: done
        actions:
          - type: sendParent
            event: PONG
  done:
    type: final
    output: bye
`
	parent := `
id: ping
initial: start
context:
  log: []
states:
  start:
    entry:
      - type: spawnChild
        src: pong
        id: responder
    on:
      GO:
        actions:
          - type: sendTo
            to: responder
            event: PING
      PONG:
        actions: [{type: record, tag: pong}]
      done.actor.responder:
        target: finished
        actions: [{type: record, tag: child-done}]
  finished:
    type: final
`
	impl := recordImpl.Merge(machine.Implementations{Actors: map[string]actor.Logic{
		"pong": compile(t, child, machine.Implementations{}),
	}})
	a := actor.New(compile(t, parent, impl))
	require.NoError(t, a.Start())
	require.Len(t, a.Children(), 1)

	require.NoError(t, a.Send(ev("GO")))
	s := waitDone(t, a)
	assert.Equal(t, "finished", s.Value())
	assert.Equal(t, []string{"pong", "child-done"}, logOf(s))
}

func TestSendToUnknownChildFailsTheActor(t *testing.T) {
	const src = `
id: lonely
initial: idle
states:
  idle:
    on:
      GO:
        actions:
          - type: sendTo
            to: nobody
            event: HELLO
`
	a := actor.New(compile(t, src, machine.Implementations{}))
	require.NoError(t, a.Start())

	err := a.Send(ev("GO"))
	assert.ErrorIs(t, err, domain.ErrActorNotFound)
	assert.Equal(t, actor.StatusErrored, a.Status())
}

func TestCustomActionsRunWithTheActor(t *testing.T) {
	var selves []string
	impl := machine.Implementations{Actions: map[string]machine.ActionFunc{
		"remember": func(args machine.ActionArgs) error {
			selves = append(selves, args.Self.ID()+":"+args.Event.Type)
			return nil
		},
		"explode": func(machine.ActionArgs) error { panic("kaboom") },
	}}
	const src = `
id: custom
initial: idle
entry: [remember]
states:
  idle:
    on:
      NOTE:
        actions: [remember]
      BOOM:
        actions: [explode]
`
	a := actor.New(compile(t, src, impl), actor.WithID("me"))
	require.NoError(t, a.Start())
	require.NoError(t, a.Send(ev("NOTE")))
	assert.Equal(t, []string{"me:" + domain.EventInit, "me:NOTE"}, selves)

	err := a.Send(ev("BOOM"))
	assert.ErrorContains(t, err, "kaboom")
	assert.Equal(t, actor.StatusErrored, a.Status())
	assert.Equal(t, "idle", stateOf(t, a).Value(), "the failed step is not committed")
}

func TestEmittedEvents(t *testing.T) {
	const src = `
id: notifier
initial: idle
states:
  idle:
    on:
      SAVE:
        actions:
          - type: emit
            event:
              type: saved
              payload: $event.payload
`
	a := actor.New(compile(t, src, machine.Implementations{}))
	var got []any
	a.On("saved", func(e domain.Event) { got = append(got, e.Payload) })
	require.NoError(t, a.Start())

	require.NoError(t, a.Send(domain.NewEvent("SAVE", "doc-1")))
	assert.Equal(t, []any{"doc-1"}, got)
}

func TestTransitionHooks(t *testing.T) {
	var transitions []string
	hooks := domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			transitions = append(transitions, fmt.Sprintf("%s:%s->%v", e.EventType, e.Source, e.Targets))
		},
	}
	a := actor.New(compile(t, trafficLight, machine.Implementations{}), actor.WithHooks(hooks))
	require.NoError(t, a.Start())
	require.NoError(t, a.Send(ev("TIMER")))

	assert.Equal(t, []string{"TIMER:light.green->[light.yellow]"}, transitions)
}

func TestSystemIDTargets(t *testing.T) {
	const src = `
id: hub
initial: idle
states:
  idle:
    invoke:
      id: counter
      src: counter
      systemId: tally
    on:
      BUMP:
        actions:
          - type: sendTo
            to: "#tally"
            event: inc
`
	counter := actor.FromTransition("counter", func(state any, e domain.Event, _ *actor.Scope) (any, error) {
		if e.Type == "inc" {
			return state.(int) + 1, nil
		}
		return state, nil
	}, func(any) any { return 0 })

	a := actor.New(compile(t, src, machine.Implementations{Actors: map[string]actor.Logic{"counter": counter}}))
	require.NoError(t, a.Start())
	require.NoError(t, a.Send(ev("BUMP")))
	require.NoError(t, a.Send(ev("BUMP")))

	tally, ok := a.System().Get("tally")
	require.True(t, ok)
	assert.Equal(t, 2, tally.Snapshot().(*actor.BasicSnapshot).Data())
}

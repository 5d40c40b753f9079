package machine_test

import (
	"fmt"
	"testing"

	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func compile(t *testing.T, src string, impl machine.Implementations, opts ...machine.Option) *machine.Machine {
	t.Helper()
	var cfg machine.MachineConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))
	m, err := machine.New(cfg, impl, opts...)
	require.NoError(t, err)
	return m
}

func ev(eventType string) domain.Event { return domain.Event{Type: eventType} }

func initial(t *testing.T, m *machine.Machine, input any) *machine.State {
	t.Helper()
	s, err := m.InitialState(input)
	require.NoError(t, err)
	return s
}

func send(t *testing.T, m *machine.Machine, s *machine.State, types ...string) *machine.State {
	t.Helper()
	for _, typ := range types {
		next, err := m.Step(s, ev(typ))
		require.NoError(t, err)
		s = next
	}
	return s
}

// recordImpl appends the "tag" param of a "record" assign to context.log.
var recordImpl = machine.Implementations{
	Assigns: map[string]machine.AssignFunc{
		"record": func(args machine.Args) (map[string]any, error) {
			log, _ := args.Context["log"].([]string)
			tag, _ := args.Params["tag"].(string)
			return map[string]any{"log": append(append([]string(nil), log...), tag)}, nil
		},
	},
}

func logOf(s *machine.State) []string {
	log, _ := s.Context()["log"].([]string)
	return log
}

const trafficLight = `
id: light
initial: green
states:
  green:
    on:
      TIMER: yellow
  yellow:
    on:
      TIMER: red
  red:
    on:
      TIMER: green
`

func TestTrafficLight(t *testing.T) {
	m := compile(t, trafficLight, machine.Implementations{})

	s := initial(t, m, nil)
	assert.Equal(t, "green", s.Value())
	assert.Equal(t, domain.StatusActive, s.Status())

	s = send(t, m, s, "TIMER")
	assert.Equal(t, "yellow", s.Value())
	assert.True(t, s.Matches("yellow"))
	assert.True(t, s.Matches("#light.yellow"))
	assert.False(t, s.Matches("green"))

	s = send(t, m, s, "TIMER", "TIMER")
	assert.Equal(t, "green", s.Value())
}

func TestStep_UnmatchedEventKeepsState(t *testing.T) {
	m := compile(t, trafficLight, machine.Implementations{})
	s := initial(t, m, nil)

	next, err := m.Step(s, ev("UNKNOWN"))
	require.NoError(t, err)
	assert.Same(t, s, next)
}

const player = `
id: player
initial: active
states:
  active:
    initial: playing
    tags: [running]
    on:
      STOP: stopped
    states:
      playing:
        tags: [audible]
        on:
          PAUSE: paused
      paused:
        on:
          PLAY: playing
  stopped:
    type: final
    output: finished
`

func TestHierarchy(t *testing.T) {
	m := compile(t, player, machine.Implementations{})

	s := initial(t, m, nil)
	assert.Equal(t, map[string]any{"active": "playing"}, s.Value())
	assert.Equal(t, []string{"audible", "running"}, s.Tags())
	assert.True(t, s.Matches("active"))
	assert.True(t, s.Matches("active.playing"))

	s = send(t, m, s, "PAUSE")
	assert.Equal(t, map[string]any{"active": "paused"}, s.Value())
	assert.False(t, s.HasTag("audible"))
	assert.True(t, s.HasTag("running"))

	// Handled by the ancestor.
	s = send(t, m, s, "STOP")
	assert.Equal(t, "stopped", s.Value())
	assert.Equal(t, domain.StatusDone, s.Status())
	assert.Equal(t, "finished", s.Output())

	// A done machine ignores further events.
	assert.Same(t, s, send(t, m, s, "PLAY"))
}

const resettable = `
id: r
initial: a
context:
  log: []
entry: [{type: record, tag: enter-r}]
exit: [{type: record, tag: exit-r}]
on:
  RESET:
    target: .a
    reenter: true
states:
  a:
    on:
      NEXT: b
  b: {}
`

func TestConfigurationIsConsistent(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		steps []string
	}{
		{name: "nested", src: player, steps: []string{"PAUSE", "PLAY", "PAUSE"}},
		{name: "root reenters", src: resettable, steps: []string{"NEXT", "RESET", "NEXT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := compile(t, tt.src, recordImpl)
			s := initial(t, m, nil)
			assertConsistent(t, s)
			for _, step := range tt.steps {
				s = send(t, m, s, step)
				assertConsistent(t, s)
			}
		})
	}
}

func assertConsistent(t *testing.T, s *machine.State) {
	t.Helper()
	nodes := s.Nodes()
	active := make(map[*machine.StateNode]bool)
	for _, n := range nodes {
		active[n] = true
	}
	for _, n := range nodes {
		if n.Parent != nil {
			assert.True(t, active[n.Parent], "parent of %s must be active", n.ID)
		}
		if n.Kind == machine.KindCompound {
			count := 0
			for _, c := range n.Children {
				if active[c] {
					count++
				}
			}
			assert.Equal(t, 1, count, "compound %s must have one active child", n.ID)
		}
	}
	for i := 1; i < len(nodes); i++ {
		assert.Less(t, nodes[i-1].Order, nodes[i].Order)
	}
}

func TestRootReentry(t *testing.T) {
	m := compile(t, resettable, recordImpl)
	s := send(t, m, initial(t, m, nil), "NEXT", "RESET")

	assert.Equal(t, "a", s.Value())
	assert.Len(t, s.Nodes(), 2)
	assert.Equal(t, []string{"enter-r", "exit-r", "enter-r"}, logOf(s))
}

func TestDeepestSourceWins(t *testing.T) {
	const src = `
id: deep
initial: a
states:
  a:
    initial: b
    on:
      GO: "#deep.x"
    states:
      b:
        initial: c
        on:
          GO: "#deep.y"
        states:
          c:
            on:
              GO:
                - target: "#deep.z"
                  guard: enabled
  x: {}
  y: {}
  z: {}
`
	for _, tt := range []struct {
		name    string
		enabled bool
		want    string
	}{
		{"innermost", true, "z"},
		{"falls back to the parent", false, "y"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			m := compile(t, src, machine.Implementations{Guards: map[string]machine.GuardFunc{
				"enabled": func(machine.Args) bool { return tt.enabled },
			}})
			s := send(t, m, initial(t, m, nil), "GO")
			assert.Equal(t, tt.want, s.Value())
		})
	}
}

func TestFirstEnabledCandidateInDocumentOrder(t *testing.T) {
	const src = `
id: pick
initial: idle
context:
  amount: 0
states:
  idle:
    on:
      PAY:
        - target: large
          guard:
            type: above
            params: {limit: 100}
        - target: small
          guard:
            type: above
            params: {limit: 0}
        - target: rejected
  large: {}
  small: {}
  rejected: {}
`
	impl := machine.Implementations{Guards: map[string]machine.GuardFunc{
		"above": func(args machine.Args) bool {
			amount, _ := args.Event.Payload.(int)
			limit, _ := args.Params["limit"].(int)
			return amount > limit
		},
	}}
	m := compile(t, src, impl)

	for amount, want := range map[int]string{500: "large", 10: "small", 0: "rejected"} {
		s, err := m.Step(initial(t, m, nil), domain.NewEvent("PAY", amount))
		require.NoError(t, err)
		assert.Equal(t, want, s.Value(), "amount %d", amount)
	}
}

func TestRaisedEventsRunAfterTheMicrostep(t *testing.T) {
	const src = `
id: order
initial: a
context:
  log: []
states:
  a:
    exit: [{type: record, tag: exit-a}]
    on:
      GO:
        target: b
        actions:
          - type: raise
            event: NEXT
          - type: record
            tag: go
  b:
    entry: [{type: record, tag: enter-b}]
    on:
      NEXT:
        target: c
        actions: [{type: record, tag: next}]
  c:
    entry: [{type: record, tag: enter-c}]
`
	m := compile(t, src, recordImpl)
	s := send(t, m, initial(t, m, nil), "GO")

	assert.Equal(t, "c", s.Value())
	assert.Equal(t, []string{"exit-a", "go", "enter-b", "next", "enter-c"}, logOf(s))
}

func TestEntryAndExitOrder(t *testing.T) {
	const src = `
id: nest
initial: a
context:
  log: []
states:
  a:
    initial: a1
    entry: [{type: record, tag: enter-a}]
    exit: [{type: record, tag: exit-a}]
    states:
      a1:
        entry: [{type: record, tag: enter-a1}]
        exit: [{type: record, tag: exit-a1}]
        on:
          GO: "#nest.b.b1"
  b:
    initial: b1
    entry: [{type: record, tag: enter-b}]
    states:
      b1:
        entry: [{type: record, tag: enter-b1}]
`
	m := compile(t, src, recordImpl)
	s := initial(t, m, nil)
	assert.Equal(t, []string{"enter-a", "enter-a1"}, logOf(s))

	s = send(t, m, s, "GO")
	assert.Equal(t, []string{"enter-a", "enter-a1", "exit-a1", "exit-a", "enter-b", "enter-b1"}, logOf(s))
}

func TestSelfTransitions(t *testing.T) {
	const src = `
id: self
initial: a
context:
  log: []
states:
  a:
    entry: [{type: record, tag: enter}]
    exit: [{type: record, tag: exit}]
    on:
      STAY:
        target: a
        actions: [{type: record, tag: stay}]
      REENTER:
        target: a
        reenter: true
      NOTE:
        actions: [{type: record, tag: note}]
`
	m := compile(t, src, recordImpl)
	s := initial(t, m, nil)

	s = send(t, m, s, "STAY")
	assert.Equal(t, []string{"enter", "stay"}, logOf(s))

	s = send(t, m, s, "REENTER")
	assert.Equal(t, []string{"enter", "stay", "exit", "enter"}, logOf(s))

	s = send(t, m, s, "NOTE")
	assert.Equal(t, []string{"enter", "stay", "exit", "enter", "note"}, logOf(s))
	assert.Equal(t, "a", s.Value())
}

func TestEventlessTransitions(t *testing.T) {
	const src = `
id: gauge
initial: filling
context:
  count: 0
states:
  filling:
    always:
      - target: full
        guard: isFull
    on:
      ADD:
        actions: [inc]
  full:
    type: final
`
	impl := machine.Implementations{
		Guards: map[string]machine.GuardFunc{
			"isFull": func(args machine.Args) bool { return args.Context["count"].(int) >= 2 },
		},
		Assigns: map[string]machine.AssignFunc{
			"inc": func(args machine.Args) (map[string]any, error) {
				return map[string]any{"count": args.Context["count"].(int) + 1}, nil
			},
		},
	}
	m := compile(t, src, impl)

	s := send(t, m, initial(t, m, nil), "ADD")
	assert.Equal(t, "filling", s.Value())
	s = send(t, m, s, "ADD")
	assert.Equal(t, "full", s.Value())
	assert.Equal(t, domain.StatusDone, s.Status())
}

func TestIgnoredEventDoesNotRunEventlessTransitions(t *testing.T) {
	const src = `
id: latch
initial: armed
states:
  armed:
    always:
      - target: tripped
        guard: isPoke
  tripped: {}
`
	impl := machine.Implementations{Guards: map[string]machine.GuardFunc{
		"isPoke": func(args machine.Args) bool { return args.Event.Type == "POKE" },
	}}
	m := compile(t, src, impl)
	s := initial(t, m, nil)

	next, err := m.Step(s, ev("POKE"))
	require.NoError(t, err)
	assert.Same(t, s, next)
	assert.Equal(t, "armed", next.Value())
}

func TestInfiniteLoopIsDetected(t *testing.T) {
	const src = `
id: loop
initial: a
states:
  a:
    always: b
  b:
    always: a
`
	var cfg machine.MachineConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))
	m, err := machine.New(cfg, machine.Implementations{}, machine.WithMaxMicrosteps(50))
	require.NoError(t, err)

	_, err = m.InitialState(nil)
	assert.ErrorIs(t, err, domain.ErrInfiniteLoop)
}

func TestHistory(t *testing.T) {
	const tmpl = `
id: editor
initial: app
states:
  app:
    initial: menu
    on:
      SLEEP: asleep
    states:
      menu:
        initial: main
        states:
          main:
            on:
              OPEN: settings
          settings: {}
      hist:
        history: %s
  asleep:
    on:
      WAKE: app.hist
`
	tests := []struct {
		kind string
		want any
	}{
		{"deep", map[string]any{"app": map[string]any{"menu": "settings"}}},
		{"shallow", map[string]any{"app": map[string]any{"menu": "main"}}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			m := compile(t, fmt.Sprintf(tmpl, tt.kind), machine.Implementations{})

			s := send(t, m, initial(t, m, nil), "OPEN", "SLEEP")
			assert.Equal(t, "asleep", s.Value())
			assert.NotEmpty(t, s.HistoryValue())

			s = send(t, m, s, "WAKE")
			assert.Equal(t, tt.want, s.Value())
		})
	}
}

func TestHistoryDefault(t *testing.T) {
	const src = `
id: h
initial: off
states:
  on:
    initial: one
    states:
      one: {}
      two: {}
      hist:
        type: history
        target: two
  off:
    on:
      ON: on.hist
`
	m := compile(t, src, machine.Implementations{})
	s := send(t, m, initial(t, m, nil), "ON")
	assert.Equal(t, map[string]any{"on": "two"}, s.Value())
}

const upload = `
id: upload
initial: working
states:
  working:
    type: parallel
    onDone: finished
    states:
      files:
        initial: uploading
        states:
          uploading:
            on:
              FILES_DONE: done
          done:
            type: final
      meta:
        initial: saving
        states:
          saving:
            on:
              META_DONE: done
          done:
            type: final
  finished:
    type: final
    output:
      ok: true
`

func TestParallelCompletion(t *testing.T) {
	m := compile(t, upload, machine.Implementations{})

	s := initial(t, m, nil)
	assert.Equal(t, map[string]any{"working": map[string]any{"files": "uploading", "meta": "saving"}}, s.Value())
	assert.Equal(t, []string{"FILES_DONE", "META_DONE"}, s.AcceptedEvents())

	s = send(t, m, s, "FILES_DONE")
	assert.Equal(t, map[string]any{"working": map[string]any{"files": "done", "meta": "saving"}}, s.Value())
	assert.Equal(t, domain.StatusActive, s.Status())

	s = send(t, m, s, "META_DONE")
	assert.Equal(t, "finished", s.Value())
	assert.Equal(t, domain.StatusDone, s.Status())
	assert.Equal(t, map[string]any{"ok": true}, s.Output())
}

func TestCompoundDoneEvent(t *testing.T) {
	const src = `
id: form
initial: editing
context:
  log: []
states:
  editing:
    initial: draft
    onDone:
      target: submitted
      actions: [{type: record, tag: done}]
    states:
      draft:
        on:
          SAVE: saved
      saved:
        type: final
  submitted: {}
`
	m := compile(t, src, recordImpl)
	s := send(t, m, initial(t, m, nil), "SAVE")
	assert.Equal(t, "submitted", s.Value())
	assert.Equal(t, []string{"done"}, logOf(s))
	assert.Equal(t, domain.StatusActive, s.Status())
}

func TestWildcardDescriptors(t *testing.T) {
	const src = `
id: mouse
initial: idle
states:
  idle:
    on:
      mouse.click: clicked
      mouse.*: moved
      "*": other
  clicked: {}
  moved: {}
  other: {}
`
	m := compile(t, src, machine.Implementations{})
	s0 := initial(t, m, nil)

	assert.Equal(t, "clicked", send(t, m, s0, "mouse.click").Value())
	assert.Equal(t, "moved", send(t, m, s0, "mouse.move").Value())
	assert.Equal(t, "other", send(t, m, s0, "key.down").Value())
	assert.Equal(t, []string{"*", "mouse.*", "mouse.click"}, m.Events())
}

func TestGuards(t *testing.T) {
	const src = `
id: door
initial: closed
context:
  locked: false
states:
  closed:
    on:
      OPEN:
        - target: opened
          guard:
            type: and
            guards:
              - type: not
                guard: isLocked
              - type: stateIn
                state: "#door.closed"
      LOCK:
        actions:
          - type: assign
            locked: true
  opened: {}
`
	impl := machine.Implementations{Guards: map[string]machine.GuardFunc{
		"isLocked": func(args machine.Args) bool { return args.Context["locked"] == true },
	}}
	m := compile(t, src, impl)

	s := initial(t, m, nil)
	assert.True(t, s.Can(ev("OPEN")))
	assert.False(t, s.Can(ev("PUSH")))

	locked := send(t, m, s, "LOCK")
	assert.False(t, locked.Can(ev("OPEN")))
	assert.Equal(t, "closed", send(t, m, locked, "OPEN").Value())
	assert.Equal(t, "opened", send(t, m, s, "OPEN").Value())
}

func TestContextFromInputAndEventRefs(t *testing.T) {
	const src = `
id: greeter
initial: idle
context:
  name: nobody
  greeting: ""
states:
  idle:
    on:
      RENAME:
        actions:
          - type: assign
            name: $event.payload.name
            previous: $context.name
`
	m := compile(t, src, machine.Implementations{})

	s := initial(t, m, map[string]any{"name": "ada"})
	assert.Equal(t, "ada", s.Context()["name"])

	next, err := m.Step(s, domain.NewEvent("RENAME", map[string]any{"name": "grace"}))
	require.NoError(t, err)
	assert.Equal(t, "grace", next.Context()["name"])
	assert.Equal(t, "ada", next.Context()["previous"])
	assert.Equal(t, "ada", s.Context()["name"], "previous states are not modified")
}

func TestContextFromMapper(t *testing.T) {
	const src = `
id: mapped
contextFrom: fromInput
`
	impl := machine.Implementations{Mappers: map[string]machine.MapperFunc{
		"fromInput": func(args machine.Args) any {
			return map[string]any{"size": len(args.Event.Payload.(string))}
		},
	}}
	m := compile(t, src, impl)
	s := initial(t, m, "hello")
	assert.Equal(t, map[string]any{"size": 5}, s.Context())
	assert.Equal(t, map[string]any{}, s.Value())
}

func TestSchemaValidation(t *testing.T) {
	const src = `
id: typed
initial: idle
context:
  count: 0
schema:
  count: int
states:
  idle:
    on:
      BREAK:
        actions:
          - type: assign
            count: not-a-number
`
	m := compile(t, src, machine.Implementations{})
	s := initial(t, m, nil)

	_, err := m.Step(s, ev("BREAK"))
	assert.ErrorContains(t, err, `"count"`)
}

func TestErrorEventWithoutHandlerFailsTheMachine(t *testing.T) {
	m := compile(t, trafficLight, machine.Implementations{})
	s := initial(t, m, nil)

	next, err := m.Step(s, domain.ErrorActorEvent("child", fmt.Errorf("boom")))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, next.Status())
	assert.ErrorContains(t, next.Err(), "boom")
}

func TestProvide(t *testing.T) {
	const src = `
id: provided
initial: a
states:
  a:
    on:
      GO:
        target: b
        guard: allowed
  b: {}
`
	deny := machine.Implementations{Guards: map[string]machine.GuardFunc{"allowed": func(machine.Args) bool { return false }}}
	m := compile(t, src, deny)
	assert.Equal(t, "a", send(t, m, initial(t, m, nil), "GO").Value())

	allowed, err := m.Provide(machine.Implementations{Guards: map[string]machine.GuardFunc{
		"allowed": func(machine.Args) bool { return true },
	}})
	require.NoError(t, err)
	assert.Equal(t, "b", send(t, allowed, initial(t, allowed, nil), "GO").Value())
}

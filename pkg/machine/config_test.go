package machine_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDecode_ShorthandsYAML(t *testing.T) {
	const src = `
id: shapes
initial: a
states:
  a:
    entry: log
    on:
      ONE: b
      MANY:
        - target: [b]
          guard: ok
        - c
      OBJ:
        target: c
        actions:
          - type: raise
            event: {type: PING, payload: 1}
  b: {}
  c:
`
	var cfg machine.MachineConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))

	a, ok := cfg.States.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"ONE", "MANY", "OBJ"}, a.On.Keys())
	assert.Equal(t, machine.ActionList{{Type: "log"}}, a.Entry)

	many, _ := a.On.Get("MANY")
	require.Len(t, many, 2)
	assert.Equal(t, machine.Targets{"b"}, many[0].Target)
	assert.Equal(t, "ok", many[0].Guard.Type)
	assert.Equal(t, machine.Targets{"c"}, many[1].Target)

	obj, _ := a.On.Get("OBJ")
	require.Len(t, obj[0].Actions, 1)
	assert.Equal(t, "raise", obj[0].Actions[0].Type)
	assert.Equal(t, map[string]any{"type": "PING", "payload": 1}, obj[0].Actions[0].Params["event"])

	c, ok := cfg.States.Get("c")
	require.True(t, ok)
	assert.Nil(t, c)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.States.Keys())
}

func TestDecode_JSONKeepsDeclarationOrder(t *testing.T) {
	const src = `{
  "id": "json",
  "initial": "z",
  "context": {"n": 1},
  "schema": {"n": "int"},
  "states": {
    "z": {"on": {"GO": "y", "ANY": {"target": "x", "reenter": true}}},
    "y": {"entry": [{"type": "assign", "params": {"n": 2}}]},
    "x": {"type": "final"}
  }
}`
	var cfg machine.MachineConfig
	require.NoError(t, json.Unmarshal([]byte(src), &cfg))
	assert.Equal(t, []string{"z", "y", "x"}, cfg.States.Keys())
	assert.Equal(t, "int", cfg.Schema["n"].Name())

	z, _ := cfg.States.Get("z")
	anyT, _ := z.On.Get("ANY")
	assert.True(t, anyT[0].Reenter)

	m, err := machine.New(cfg, machine.Implementations{})
	require.NoError(t, err)
	s := send(t, m, initial(t, m, nil), "GO")
	assert.EqualValues(t, 2, s.Context()["n"])

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	var again machine.MachineConfig
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, cfg.States.Keys(), again.States.Keys())
}

func TestNew_ReportsStructuralProblems(t *testing.T) {
	const src = `
id: broken
initial: a
states:
  a: {}
  p:
    type: parallel
  f:
    type: final
    states:
      x: {}
`
	var cfg machine.MachineConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))

	_, err := machine.New(cfg, machine.Implementations{})
	require.Error(t, err)
	errs := schema.ValidationErrors(err)

	var reasons []string
	for _, e := range errs {
		var ve *schema.ValidationError
		require.True(t, errors.As(e, &ve))
		reasons = append(reasons, ve.Key+": "+ve.Reason)
	}
	assert.Contains(t, reasons, `broken.p: parallel state requires child states`)
	assert.Contains(t, reasons, `broken.f: final state cannot have child states`)
}

func TestNew_ReportsReferenceProblems(t *testing.T) {
	const src = `
id: broken
initial: missing
states:
  a:
    on:
      GO: nowhere
      RUN:
        target: a
        guard: unknownGuard
        actions: [unknownAction]
    after:
      soon: a
    invoke:
      src: unknownLogic
`
	var cfg machine.MachineConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))

	_, err := machine.New(cfg, machine.Implementations{})
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`initial state "missing" is not a child`,
		`unknown target "nowhere"`,
		`unknown guard "unknownGuard"`,
		`unknown action "unknownAction"`,
		`unknown delay "soon"`,
		`unknown actor logic "unknownLogic"`,
	} {
		assert.Contains(t, msg, want)
	}
}

func TestNew_DuplicateIDs(t *testing.T) {
	const src = `
id: dup
initial: a
states:
  a:
    id: same
  b:
    id: same
`
	var cfg machine.MachineConfig
	require.NoError(t, yaml.Unmarshal([]byte(src), &cfg))
	_, err := machine.New(cfg, machine.Implementations{})
	assert.ErrorContains(t, err, "duplicate state id")
}

func TestNew_InvalidVersion(t *testing.T) {
	_, err := machine.New(machine.MachineConfig{Version: "one"}, machine.Implementations{})
	assert.ErrorContains(t, err, "invalid version")
}

func TestMachineIntrospection(t *testing.T) {
	m := compile(t, player, machine.Implementations{})

	assert.Equal(t, "player", m.ID())
	assert.Equal(t, "player", m.Root().ID)
	n, ok := m.StateNode("player.active.paused")
	require.True(t, ok)
	assert.Equal(t, "paused", n.Key)
	assert.Equal(t, machine.KindAtomic, n.Kind)
	assert.Equal(t, []string{"PLAY"}, n.Events())

	play := n.Transitions("PLAY")
	require.Len(t, play, 1)
	assert.Equal(t, []string{"player.active.playing"}, play[0].TargetIDs())

	ids := make([]string, 0)
	for _, node := range m.StateNodes() {
		ids = append(ids, node.ID)
	}
	assert.Equal(t, []string{"player", "player.active", "player.active.playing", "player.active.paused", "player.stopped"}, ids)
}

func TestGoBuilders(t *testing.T) {
	var saw []string
	cfg := machine.MachineConfig{
		StateConfig: machine.StateConfig{
			ID:      "builders",
			Initial: "idle",
			States: machine.Ordered[*machine.StateConfig]{
				{Key: "idle", Value: &machine.StateConfig{
					On: machine.Ordered[machine.TransitionList]{
						{Key: "GO", Value: machine.TransitionList{{
							Target: machine.Targets{"busy"},
							Guard:  machine.When("always", func(machine.Args) bool { return true }),
							Actions: machine.ActionList{
								machine.AssignWith("stamp", func(args machine.Args) (map[string]any, error) {
									return map[string]any{"by": args.Event.Payload}, nil
								}),
								machine.Do("note", func(args machine.ActionArgs) error {
									saw = append(saw, args.Context["by"].(string))
									return nil
								}),
								machine.RaiseAfter(domain.Event{Type: "TICK"}, time.Second, "tick"),
							},
						}}},
					},
				}},
				{Key: "busy", Value: &machine.StateConfig{
					On: machine.Ordered[machine.TransitionList]{
						{Key: "TICK", Value: machine.TransitionList{{Target: machine.Targets{"idle"}}}},
					},
				}},
			},
		},
	}
	m, err := machine.New(cfg, machine.Implementations{})
	require.NoError(t, err)

	clock := actor.NewSimulatedClock(time.Unix(0, 0))
	a := actor.New(m, actor.WithClock(clock))
	require.NoError(t, a.Start())
	require.NoError(t, a.Send(domain.NewEvent("GO", "ada")))
	assert.Equal(t, "busy", stateOf(t, a).Value())
	assert.Equal(t, []string{"ada"}, saw)

	clock.Advance(time.Second)
	assert.Equal(t, "idle", stateOf(t, a).Value())
}

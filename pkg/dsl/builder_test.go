package dsl_test

import (
	"testing"
	"time"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/dsl"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(t string) domain.Event { return domain.NewEvent(t, nil) }

func TestBuilder_SimpleFlow(t *testing.T) {
	b := dsl.Machine("door").Version("1.2.0").Context("opened", 0)

	b.State("closed").
		On("OPEN", "opened", machine.AssignWith("count", func(a machine.Args) (map[string]any, error) {
			return map[string]any{"opened": a.Context["opened"].(int) + 1}, nil
		})).
		OnWhen("LOCK", machine.When("hasKey", func(a machine.Args) bool { return a.Event.Payload == "key" }), "locked")
	b.State("opened").On("CLOSE", "closed")
	b.State("locked").Final("secured")

	m, err := b.Compile(machine.Implementations{})
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", m.Version())

	s, err := m.InitialState(nil)
	require.NoError(t, err)
	assert.Equal(t, "closed", s.Value(), "first child is the default initial state")

	s, err = m.Step(s, ev("OPEN"))
	require.NoError(t, err)
	s, err = m.Step(s, ev("CLOSE"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Context()["opened"])

	s, err = m.Step(s, ev("LOCK"))
	require.NoError(t, err)
	assert.Equal(t, "closed", s.Value(), "guard rejects a LOCK without key")

	s, err = m.Step(s, domain.NewEvent("LOCK", "key"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, s.Status())
	assert.Equal(t, "secured", s.Output())
}

func TestBuilder_NestedStatesAndHistory(t *testing.T) {
	b := dsl.Machine("player")
	b.Initial("on")

	on := b.State("on").Initial("paused").On("OFF", "off")
	on.State("paused").On("PLAY", "playing")
	on.State("playing").On("PAUSE", "paused").Tags("busy")
	on.State("hist").History(false)

	b.State("off").On("ON", "on.hist")

	m, err := b.Compile(machine.Implementations{})
	require.NoError(t, err)

	s, err := m.InitialState(nil)
	require.NoError(t, err)
	for _, e := range []string{"PLAY", "OFF", "ON"} {
		s, err = m.Step(s, ev(e))
		require.NoError(t, err)
	}
	assert.Equal(t, map[string]any{"on": "playing"}, s.Value())
	assert.True(t, s.HasTag("busy"))
}

func TestBuilder_StateReturnsExistingChild(t *testing.T) {
	b := dsl.Machine("m")
	b.State("a").On("X", "b")
	b.State("b")
	b.State("a").On("Y", "b")

	cfg := b.Build()
	assert.Equal(t, []string{"a", "b"}, cfg.States.Keys())

	a, ok := cfg.States.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"X", "Y"}, a.On.Keys())
}

func TestBuilder_ParentNavigation(t *testing.T) {
	b := dsl.Machine("m")
	b.State("outer").
		State("inner").On("GO", "#done").
		Parent().
		On("RESET", "outer")
	b.State("finish").ID("done").Final()

	outer, ok := b.Build().States.Get("outer")
	require.True(t, ok)
	assert.Equal(t, []string{"RESET"}, outer.On.Keys())
	assert.Same(t, b.NodeBuilder, b.Parent(), "the root has no parent")

	m, err := b.Compile(machine.Implementations{})
	require.NoError(t, err)
	s, err := m.InitialState(nil)
	require.NoError(t, err)
	s, err = m.Step(s, ev("GO"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, s.Status())
}

func TestBuilder_ParallelAndDone(t *testing.T) {
	b := dsl.Machine("upload")
	work := b.State("work").Parallel().OnDone("complete")
	work.State("file").Initial("sending").
		State("sending").On("SENT", "ok").Parent().
		State("ok").Final()
	work.State("meta").Initial("saving").
		State("saving").On("SAVED", "ok").Parent().
		State("ok").Final()
	b.State("complete").Final()

	m, err := b.Compile(machine.Implementations{})
	require.NoError(t, err)
	s, err := m.InitialState(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"work": map[string]any{"file": "sending", "meta": "saving"}}, s.Value())

	s, err = m.Step(s, ev("SENT"))
	require.NoError(t, err)
	s, err = m.Step(s, ev("SAVED"))
	require.NoError(t, err)
	assert.Equal(t, "complete", s.Value())
	assert.Equal(t, domain.StatusDone, s.Status())
}

func TestBuilder_AfterRunsOnTheActorClock(t *testing.T) {
	b := dsl.Machine("light")
	b.State("green").After(2*time.Second, "yellow")
	b.State("yellow").Entry(machine.Log("caution"))

	m, err := b.Compile(machine.Implementations{})
	require.NoError(t, err)

	clock := actor.NewSimulatedClock(time.Unix(0, 0))
	a := actor.New(m, actor.WithClock(clock))
	require.NoError(t, a.Start())
	defer a.Stop()

	clock.Advance(time.Second)
	assert.Equal(t, "green", a.Snapshot().(*machine.State).Value())
	clock.Advance(time.Second)
	assert.Equal(t, "yellow", a.Snapshot().(*machine.State).Value())
}

func TestBuilder_CompileReportsMachineID(t *testing.T) {
	b := dsl.Machine("broken")
	b.State("a").On("GO", "nowhere")

	_, err := b.Compile(machine.Implementations{})
	assert.ErrorContains(t, err, `machine "broken"`)
	assert.ErrorContains(t, err, "unknown target")
}

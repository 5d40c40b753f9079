package troupe_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/troupe"
	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var doorImpl = machine.Implementations{
	Assigns: map[string]machine.AssignFunc{
		"countOpen": func(a machine.Args) (map[string]any, error) {
			n, _ := a.Context["opens"].(int)
			return map[string]any{"opens": n + 1}, nil
		},
	},
}

func TestLoadMachine(t *testing.T) {
	m, err := troupe.LoadMachine(filepath.Join("testdata", "door.yaml"), doorImpl)
	require.NoError(t, err)
	assert.Equal(t, "door", m.ID(), "id defaults to the file name")

	a := troupe.CreateActor(m)
	require.NoError(t, a.Start())
	require.NoError(t, a.Send(domain.NewEvent("OPEN", nil)))
	require.NoError(t, a.Send(domain.NewEvent("LOCK", nil)))

	snap, err := troupe.WaitFor(context.Background(), a, func(s actor.Snapshot) bool {
		return s.Status() == domain.StatusDone
	})
	require.NoError(t, err)
	assert.Equal(t, "secured", snap.Output())
	assert.Equal(t, 1, snap.(*machine.State).Context()["opens"])
}

func TestLoadMachine_Errors(t *testing.T) {
	_, err := troupe.LoadMachine(filepath.Join("testdata", "missing.yaml"), doorImpl)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = troupe.LoadMachine(filepath.Join("testdata", "door.yaml"), machine.Implementations{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "countOpen")
}

func TestRestoreActor_RejectsOtherLogic(t *testing.T) {
	door, err := troupe.LoadMachine(filepath.Join("testdata", "door.yaml"), doorImpl)
	require.NoError(t, err)
	light, err := troupe.ParseMachine([]byte(trafficLight), "yaml", machine.Implementations{})
	require.NoError(t, err)

	a := troupe.CreateActor(door)
	require.NoError(t, a.Start())
	snap, err := a.PersistedSnapshot()
	require.NoError(t, err)
	a.Stop()

	_, err = troupe.RestoreActor(light, snap)
	assert.ErrorIs(t, err, domain.ErrLogicMismatch)
}

func TestWaitFor_TimesOut(t *testing.T) {
	light, err := troupe.ParseMachine([]byte(trafficLight), "yaml", machine.Implementations{})
	require.NoError(t, err)
	a := troupe.CreateActor(light, actor.WithClock(actor.NewSimulatedClock(time.Unix(0, 0))))
	require.NoError(t, a.Start())
	defer a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = troupe.WaitFor(ctx, a, troupe.InState("red"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVersion(t *testing.T) {
	assert.Regexp(t, `^\d+\.\d+\.\d+\s*$`, troupe.Version)
}

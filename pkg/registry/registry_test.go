package registry_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/troupe/internal/logging"
	"github.com/aretw0/troupe/pkg/adapters/memory"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lightYAML = `
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

const doorJSON = `{
  "id": "door",
  "initial": "closed",
  "states": {
    "closed": {"on": {"OPEN": "opened"}},
    "opened": {"on": {"CLOSE": "closed"}}
  }
}`

func TestRegistry_RegisterGetRemove(t *testing.T) {
	r := registry.New()

	_, err := r.Get("light")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	loader := memory.NewLoader("yaml", map[string]string{"light": lightYAML})
	names, err := r.Load(loader, machine.Implementations{})
	require.NoError(t, err)
	assert.Equal(t, []string{"light"}, names)

	logic, err := r.Get("light")
	require.NoError(t, err)
	assert.Equal(t, "light", logic.LogicID())

	r.Remove("light")
	r.Remove("light")
	_, err = r.Get("light")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestRegistry_List_IsSorted(t *testing.T) {
	r := registry.New()
	yamlDefs := memory.NewLoader("yaml", map[string]string{"light": lightYAML})
	jsonDefs := memory.NewLoader("json", map[string]string{"door": doorJSON})

	_, err := r.Load(yamlDefs, machine.Implementations{})
	require.NoError(t, err)
	_, err = r.Load(jsonDefs, machine.Implementations{})
	require.NoError(t, err)

	assert.Equal(t, []string{"door", "light"}, r.List())

	m, err := r.Machine("door")
	require.NoError(t, err)
	assert.Equal(t, "door", m.ID())
}

func TestRegistry_Load_IsAllOrNothing(t *testing.T) {
	r := registry.New()
	loader := memory.NewLoader("yaml", map[string]string{
		"light":  lightYAML,
		"broken": "initial: nowhere\nstates:\n  a: {}\n",
	})

	_, err := r.Load(loader, machine.Implementations{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Empty(t, r.List(), "no machine should be registered when one fails")
}

func TestRegistry_Load_ReplacesPreviousVersion(t *testing.T) {
	r := registry.New()
	_, err := r.Load(memory.NewLoader("yaml", map[string]string{"light": lightYAML}), machine.Implementations{})
	require.NoError(t, err)
	first, _ := r.Get("light")

	_, err = r.Load(memory.NewLoader("yaml", map[string]string{"light": lightYAML}), machine.Implementations{})
	require.NoError(t, err)
	second, _ := r.Get("light")

	assert.NotSame(t, first, second)
}

type watchedDefs struct {
	mu      sync.Mutex
	defs    map[string]string
	changes chan struct{}
}

func (w *watchedDefs) set(name, def string) {
	w.mu.Lock()
	w.defs[name] = def
	w.mu.Unlock()
	w.changes <- struct{}{}
}

func (w *watchedDefs) GetDefinition(name string) ([]byte, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return []byte(w.defs[name]), "yaml", nil
}

func (w *watchedDefs) ListDefinitions() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.defs))
	for name := range w.defs {
		names = append(names, name)
	}
	return names, nil
}

func (w *watchedDefs) Watch(context.Context) (<-chan struct{}, error) {
	return w.changes, nil
}

func TestRegistry_Watch_Reloads(t *testing.T) {
	r := registry.New()
	defs := &watchedDefs{defs: map[string]string{"light": lightYAML}, changes: make(chan struct{})}
	_, err := r.Load(defs, machine.Implementations{})
	require.NoError(t, err)
	first, _ := r.Get("light")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, defs, machine.Implementations{}, logging.NewNop()) }()

	defs.set("broken", "initial: nowhere\nstates:\n  a: {}\n")
	defs.set("broken", "initial: a\nstates:\n  a: {}\n")

	assert.Eventually(t, func() bool {
		return slices.Contains(r.List(), "broken")
	}, time.Second, 10*time.Millisecond)
	second, _ := r.Get("light")
	assert.NotSame(t, first, second)

	cancel()
	require.NoError(t, <-done)
}

package machine

import (
	"log/slog"
	"maps"
	"time"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
)

// Args is what guards, delays, assigns and mappers see.
type Args struct {
	Context map[string]any
	Event   domain.Event
	Params  map[string]any
}

// ActionArgs is passed to custom actions.
// Self is nil when the machine is stepped without an actor (Machine.Step).
type ActionArgs struct {
	Args
	Self   *actor.Actor
	Logger *slog.Logger
}

// ActionFunc is a custom side effect.
type ActionFunc func(args ActionArgs) error

// GuardFunc decides whether a transition is enabled. It must be pure.
type GuardFunc func(args Args) bool

// DelayFunc computes a delay for delayed transitions and events.
type DelayFunc func(args Args) time.Duration

// AssignFunc returns context entries to merge into the current context.
type AssignFunc func(args Args) (map[string]any, error)

// MapperFunc derives a value (invoke input, output, initial context).
type MapperFunc func(args Args) any

// Implementations resolves the names used by a MachineConfig.
// Every name is looked up once when the machine is compiled; a name that
// cannot be resolved is a compile error.
type Implementations struct {
	Actions map[string]ActionFunc
	Guards  map[string]GuardFunc
	Delays  map[string]DelayFunc
	Actors  map[string]actor.Logic
	Assigns map[string]AssignFunc
	Mappers map[string]MapperFunc
}

// Merge returns a copy of i overridden by the entries of other.
func (i Implementations) Merge(other Implementations) Implementations {
	return Implementations{
		Actions: mergeMap(i.Actions, other.Actions),
		Guards:  mergeMap(i.Guards, other.Guards),
		Delays:  mergeMap(i.Delays, other.Delays),
		Actors:  mergeMap(i.Actors, other.Actors),
		Assigns: mergeMap(i.Assigns, other.Assigns),
		Mappers: mergeMap(i.Mappers, other.Mappers),
	}
}

func mergeMap[V any](base, override map[string]V) map[string]V {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]V, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}

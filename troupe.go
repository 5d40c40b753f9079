package troupe

import (
	"context"
	"fmt"

	"github.com/aretw0/troupe/internal/compiler"
	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/machine"
)

// LoadMachine reads a YAML or JSON machine file and compiles it.
// A machine without an id takes the file name.
func LoadMachine(path string, impl machine.Implementations, opts ...machine.Option) (*machine.Machine, error) {
	cfg, err := compiler.ParseFile(path)
	if err != nil {
		return nil, err
	}
	m, err := machine.New(*cfg, impl, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", path, err)
	}
	return m, nil
}

// ParseMachine decodes a machine description ("yaml" or "json") and compiles it.
func ParseMachine(data []byte, format string, impl machine.Implementations, opts ...machine.Option) (*machine.Machine, error) {
	cfg, err := compiler.Parse(data, compiler.Format(format))
	if err != nil {
		return nil, err
	}
	return machine.New(*cfg, impl, opts...)
}

// CreateActor creates an actor running logic. The actor is not started.
func CreateActor(logic actor.Logic, opts ...actor.Option) *actor.Actor {
	return actor.New(logic, opts...)
}

// RestoreActor recreates an actor from a persisted snapshot, children
// included. The actor is not started; starting it does not rerun entry actions.
func RestoreActor(logic actor.Logic, ps *domain.PersistedSnapshot, opts ...actor.Option) (*actor.Actor, error) {
	return actor.Restore(logic, ps, opts...)
}

// WaitFor blocks until the snapshot of a satisfies predicate.
// It fails when the actor terminates first or ctx is done.
func WaitFor(ctx context.Context, a *actor.Actor, predicate func(actor.Snapshot) bool) (actor.Snapshot, error) {
	return actor.WaitFor(ctx, a, predicate)
}

// InState returns a WaitFor predicate matching machine snapshots in the state ref.
func InState(ref string) func(actor.Snapshot) bool {
	return func(s actor.Snapshot) bool {
		st, ok := s.(*machine.State)
		return ok && st.Matches(ref)
	}
}

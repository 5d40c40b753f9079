package actor

import "github.com/aretw0/troupe/pkg/domain"

// Snapshot is the observable state of an actor at a point in time.
type Snapshot interface {
	Status() domain.Status
	Output() any
	Err() error
	// WithStatus returns a copy of the snapshot carrying the given status.
	WithStatus(status domain.Status, err error) Snapshot
}

// Logic is the behavior wrapped by an Actor.
// Implementations must not retain the Scope beyond the call that received it,
// except for goroutines that stop when Scope.Context is cancelled.
type Logic interface {
	// LogicID identifies the logic in persisted snapshots.
	LogicID() string

	// InitialSnapshot computes the snapshot of a new actor.
	InitialSnapshot(scope *Scope, input any) (Snapshot, error)

	// Start is called once when the actor starts.
	Start(scope *Scope, snapshot Snapshot) (Snapshot, error)

	// Transition processes one event and returns the next snapshot.
	// Returning an error fails the actor; the previous snapshot is kept.
	Transition(scope *Scope, snapshot Snapshot, ev domain.Event) (Snapshot, error)

	// Stop releases resources held by the logic for this actor.
	Stop(scope *Scope, snapshot Snapshot)

	// Persist converts the snapshot into plain data.
	Persist(snapshot Snapshot) (*domain.PersistedSnapshot, error)

	// Restore rebuilds a snapshot from plain data.
	Restore(scope *Scope, ps *domain.PersistedSnapshot) (Snapshot, error)
}

// ChildResolver is implemented by logics that spawn children from a registry.
// It is used at restore time to find the logic of every persisted child.
type ChildResolver interface {
	ResolveChild(src string) (Logic, bool)
}

// Versioned is implemented by logics that carry a semantic version.
type Versioned interface {
	Version() string
}

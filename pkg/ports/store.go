package ports

import (
	"context"

	"github.com/aretw0/troupe/pkg/domain"
)

// SnapshotStore defines the interface for persisting actor snapshots.
// This allows for durable execution: an actor persisted by one process can be
// restored by another, with its children, pending events and timers.
type SnapshotStore interface {
	// Save persists the snapshot for a given session ID, replacing any previous one.
	Save(ctx context.Context, sessionID string, snap *domain.PersistedSnapshot) error

	// Load retrieves the snapshot for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.PersistedSnapshot, error)

	// Delete removes the snapshot for a given session ID.
	// Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of all stored sessions.
	List(ctx context.Context) ([]string, error)
}

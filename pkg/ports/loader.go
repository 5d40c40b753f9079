package ports

import "context"

// DefinitionLoader defines how hosts retrieve machine descriptions.
// This allows the storage layer (directory, memory) to be decoupled.
type DefinitionLoader interface {
	// GetDefinition retrieves the raw description of a machine by name.
	// The format tells the compiler how to decode it ("yaml" or "json").
	GetDefinition(name string) (data []byte, format string, err error)

	// ListDefinitions returns the names of all available machines, sorted.
	ListDefinitions() ([]string, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload or dev-mode functionality.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying definitions change.
	// It abstracts away the specific event details, signaling only that a reload is required.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

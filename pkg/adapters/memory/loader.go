package memory

import (
	"fmt"
	"sort"
)

// Loader implements ports.DefinitionLoader using an in-memory map.
type Loader struct {
	defs   map[string][]byte
	format string
}

// NewLoader creates a new Loader with the provided raw descriptions.
// Every description uses the same format ("yaml" or "json").
func NewLoader(format string, data map[string]string) *Loader {
	defs := make(map[string][]byte, len(data))
	for k, v := range data {
		defs[k] = []byte(v)
	}
	return &Loader{defs: defs, format: format}
}

// GetDefinition retrieves the raw description of a machine.
func (l *Loader) GetDefinition(name string) ([]byte, string, error) {
	content, ok := l.defs[name]
	if !ok {
		return nil, "", fmt.Errorf("machine not found: %s", name)
	}
	return content, l.format, nil
}

// ListDefinitions returns all available machine names.
func (l *Loader) ListDefinitions() ([]string, error) {
	keys := make([]string, 0, len(l.defs))
	for k := range l.defs {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys, nil
}

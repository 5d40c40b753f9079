package dsl

import (
	"fmt"
	"maps"

	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/schema"
)

// Builder manages the machine construction.
// It embeds the builder of the root state, so top level states, transitions
// and actions are declared on the Builder itself.
type Builder struct {
	*NodeBuilder
	cfg *machine.MachineConfig
}

// Machine creates a new machine builder.
func Machine(id string) *Builder {
	cfg := &machine.MachineConfig{}
	cfg.ID = id
	return &Builder{
		NodeBuilder: &NodeBuilder{node: &cfg.StateConfig},
		cfg:         cfg,
	}
}

// Version sets the semantic version checked when restoring snapshots.
func (b *Builder) Version(v string) *Builder {
	b.cfg.Version = v
	return b
}

// Context adds a value to the initial context.
func (b *Builder) Context(key string, value any) *Builder {
	if b.cfg.Context == nil {
		b.cfg.Context = make(map[string]any)
	}
	b.cfg.Context[key] = value
	return b
}

// ContextFrom names a mapper computing the initial context from the input.
func (b *Builder) ContextFrom(mapper string) *Builder {
	b.cfg.ContextFrom = mapper
	return b
}

// Schema sets the context schema.
func (b *Builder) Schema(s schema.Schema) *Builder {
	b.cfg.Schema = s
	return b
}

// Build returns the description built so far.
// State descriptions are shared with the builder.
func (b *Builder) Build() machine.MachineConfig {
	out := *b.cfg
	out.Context = maps.Clone(b.cfg.Context)
	return out
}

// Compile builds the description and compiles it.
func (b *Builder) Compile(impl machine.Implementations, opts ...machine.Option) (*machine.Machine, error) {
	m, err := machine.New(b.Build(), impl, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile machine %q: %w", b.cfg.ID, err)
	}
	return m, nil
}

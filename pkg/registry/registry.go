package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/troupe/internal/compiler"
	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/ports"
)

// ErrNotFound is returned when no logic is registered under a name.
var ErrNotFound = errors.New("logic not found")

// Registry manages the logics hosted by a process.
type Registry struct {
	mu     sync.RWMutex
	logics map[string]actor.Logic
}

// New creates a new empty registry.
func New() *Registry {
	return &Registry{
		logics: make(map[string]actor.Logic),
	}
}

// Register adds a logic to the registry.
// If a logic with the same name exists, it is overwritten.
func (r *Registry) Register(name string, logic actor.Logic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logics[name] = logic
}

// Get looks up a logic by name.
func (r *Registry) Get(name string) (actor.Logic, error) {
	r.mu.RLock()
	logic, ok := r.logics[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return logic, nil
}

// Machine looks up a logic by name and asserts it is a compiled machine.
func (r *Registry) Machine(name string) (*machine.Machine, error) {
	logic, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	m, ok := logic.(*machine.Machine)
	if !ok {
		return nil, fmt.Errorf("logic %s is not a state machine", name)
	}
	return m, nil
}

// Remove deletes a logic. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.logics, name)
}

// List returns the registered names in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.logics))
	for name := range r.logics {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Load compiles every definition served by loader and replaces the machines
// it previously registered under the same names.
// Nothing is registered unless every definition compiles; the returned error
// joins the failure of each definition.
func (r *Registry) Load(loader ports.DefinitionLoader, impl machine.Implementations, opts ...machine.Option) ([]string, error) {
	names, err := loader.ListDefinitions()
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	compiled := make(map[string]*machine.Machine, len(names))
	var errs []error
	for _, name := range names {
		m, err := compileDefinition(loader, name, impl, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		compiled[name] = m
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	r.mu.Lock()
	for name, m := range compiled {
		r.logics[name] = m
	}
	r.mu.Unlock()

	slices.Sort(names)
	return names, nil
}

func compileDefinition(loader ports.DefinitionLoader, name string, impl machine.Implementations, opts []machine.Option) (*machine.Machine, error) {
	data, format, err := loader.GetDefinition(name)
	if err != nil {
		return nil, err
	}
	cfg, err := compiler.Parse(data, compiler.Format(format))
	if err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = name
	}
	return machine.New(*cfg, impl, opts...)
}

// WatchableLoader is a definition loader that signals when its definitions change.
type WatchableLoader interface {
	ports.DefinitionLoader
	ports.Watchable
}

// Watch reloads the definitions of loader on every change it signals, until
// ctx is done. A reload that fails keeps the previously registered machines.
// Running sessions pick up a new definition on their next event.
func (r *Registry) Watch(ctx context.Context, loader WatchableLoader, impl machine.Implementations, logger *slog.Logger, opts ...machine.Option) error {
	changes, err := loader.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			names, err := r.Load(loader, impl, opts...)
			if err != nil {
				logger.Warn("reload failed, keeping previous machines", "err", err)
				continue
			}
			logger.Info("machines reloaded", "machines", names)
		}
	}
}

package actor

import (
	"context"
	"log/slog"

	"github.com/aretw0/troupe/pkg/domain"
)

// Option configures an Actor.
type Option func(*options)

type options struct {
	id        string
	sessionID string
	systemID  string
	src       string
	input     any
	system    *System
	logger    *slog.Logger
	clock     Clock
	hooks     *domain.LifecycleHooks
	ctx       context.Context
}

// WithSessionID sets the session id reported in logs and lifecycle events.
// By default every actor gets a new UUIDv7.
func WithSessionID(sessionID string) Option {
	return func(o *options) {
		o.sessionID = sessionID
	}
}

// WithID sets the actor id. Root actors default to their session id.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithSystemID registers the actor in the system registry under a stable alias.
func WithSystemID(systemID string) Option {
	return func(o *options) {
		o.systemID = systemID
	}
}

// WithInput passes input to the logic's initial snapshot.
func WithInput(input any) Option {
	return func(o *options) {
		o.input = input
	}
}

// WithSystem attaches a root actor to an existing system.
func WithSystem(system *System) Option {
	return func(o *options) {
		o.system = system
	}
}

// WithLogger sets the logger of the implicit system.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the clock of the implicit system.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithHooks sets the lifecycle hooks of the implicit system.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = &hooks
	}
}

// WithContext sets the parent context of the implicit system.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// withSrc records the registry key a child was resolved from.
func withSrc(src string) Option {
	return func(o *options) {
		o.src = src
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o options) newSystem() *System {
	var sysOpts []SystemOption
	if o.clock != nil {
		sysOpts = append(sysOpts, WithSystemClock(o.clock))
	}
	if o.logger != nil {
		sysOpts = append(sysOpts, WithSystemLogger(o.logger))
	}
	if o.hooks != nil {
		sysOpts = append(sysOpts, WithSystemHooks(*o.hooks))
	}
	if o.ctx != nil {
		sysOpts = append(sysOpts, WithSystemContext(o.ctx))
	}
	return NewSystem(sysOpts...)
}

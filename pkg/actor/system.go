package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/troupe/internal/logging"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/google/uuid"
)

// System groups the actors of one tree.
// It owns the system id registry, the clock and the delayed event scheduler.
// A System is created implicitly for every root actor unless one is supplied
// with WithSystem.
type System struct {
	mu     sync.RWMutex
	actors map[string]*Actor

	clock     Clock
	logger    *slog.Logger
	hooks     domain.LifecycleHooks
	ctx       context.Context
	scheduler *scheduler
}

// SystemOption configures a System.
type SystemOption func(*System)

// WithSystemClock sets the clock used for delayed events.
func WithSystemClock(clock Clock) SystemOption {
	return func(s *System) {
		s.clock = clock
	}
}

// WithSystemLogger sets the logger inherited by every actor of the system.
func WithSystemLogger(logger *slog.Logger) SystemOption {
	return func(s *System) {
		s.logger = logger
	}
}

// WithSystemHooks registers lifecycle hooks for every actor of the system.
func WithSystemHooks(hooks domain.LifecycleHooks) SystemOption {
	return func(s *System) {
		s.hooks = hooks
	}
}

// WithSystemContext sets the parent context of every actor of the system.
func WithSystemContext(ctx context.Context) SystemOption {
	return func(s *System) {
		s.ctx = ctx
	}
}

// NewSystem creates an empty actor system.
func NewSystem(opts ...SystemOption) *System {
	s := &System{
		actors: make(map[string]*Actor),
		clock:  RealClock{},
		logger: logging.NewNop(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scheduler = newScheduler(s.clock)
	return s
}

// Get looks up an actor by its system id.
func (s *System) Get(systemID string) (*Actor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[systemID]
	return a, ok
}

// Clock returns the clock of the system.
func (s *System) Clock() Clock {
	return s.clock
}

// Logger returns the base logger of the system.
func (s *System) Logger() *slog.Logger {
	return s.logger
}

// Hooks returns the lifecycle hooks of the system.
func (s *System) Hooks() domain.LifecycleHooks {
	return s.hooks
}

// Schedule delivers an event to target after delay.
// A pending event with the same source and id is replaced.
func (s *System) Schedule(source, target *Actor, ev domain.Event, delay time.Duration, id string) {
	s.scheduler.schedule(source, target, ev, s.clock.Now().Add(delay), id)
}

// Cancel cancels a pending delayed event scheduled by source.
func (s *System) Cancel(source *Actor, id string) {
	s.scheduler.cancel(source, id)
}

func (s *System) register(systemID string, a *Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.actors[systemID]; ok && existing != a {
		return fmt.Errorf("%w: %q", domain.ErrSystemIDTaken, systemID)
	}
	s.actors[systemID] = a
	return nil
}

func (s *System) unregister(systemID string, a *Actor) {
	if systemID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actors[systemID] == a {
		delete(s.actors, systemID)
	}
}

func (s *System) newSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *System) base(a *Actor, t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: s.clock.Now(),
		Type:      t,
		ActorID:   a.id,
		SessionID: a.sessionID,
	}
}

func (s *System) actorEvent(a *Actor, t domain.EventType, status domain.Status, err error) *domain.ActorEvent {
	ev := &domain.ActorEvent{
		EventBase: s.base(a, t),
		Logic:     a.logic.LogicID(),
		SystemID:  a.systemID,
		Status:    status,
		Err:       err,
	}
	if p := a.Parent(); p != nil {
		ev.ParentID = p.id
	}
	return ev
}

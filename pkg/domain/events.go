package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventActorStart EventType = "actor_start"
	EventActorStop  EventType = "actor_stop"
	EventActorError EventType = "actor_error"
	EventProcessed  EventType = "event_processed"
	EventTransition EventType = "transition"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ActorID   string    `json:"actor_id"`
	SessionID string    `json:"session_id"`
}

// ActorEvent reports an actor starting, stopping or failing.
type ActorEvent struct {
	EventBase
	Logic    string `json:"logic"`
	ParentID string `json:"parent_id,omitempty"`
	SystemID string `json:"system_id,omitempty"`
	Status   Status `json:"status"`
	Err      error  `json:"-"`
}

// MessageEvent reports an event processed by an actor.
type MessageEvent struct {
	EventBase
	Event    Event         `json:"event"`
	Duration time.Duration `json:"duration"`
	Status   Status        `json:"status"`
}

// TransitionEvent reports a transition taken during a microstep.
type TransitionEvent struct {
	EventBase
	EventType string   `json:"event_type"`
	Source    string   `json:"source"`
	Targets   []string `json:"targets,omitempty"`
}

// LifecycleHooks defines callbacks for runtime observability.
// All fields are optional.
type LifecycleHooks struct {
	OnActorStart func(context.Context, *ActorEvent)
	OnActorStop  func(context.Context, *ActorEvent)
	OnActorError func(context.Context, *ActorEvent)
	OnEvent      func(context.Context, *MessageEvent)
	OnTransition func(context.Context, *TransitionEvent)
}

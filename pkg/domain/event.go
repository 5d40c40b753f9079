package domain

import "strings"

// Reserved event types produced by the runtime.
const (
	// EventInit is the event used for the initial macrostep of a machine.
	EventInit = "@init"
	// EventStop is delivered through the mailbox when an actor is stopped.
	EventStop = "@stop"

	prefixDoneState  = "done.state."
	prefixDoneActor  = "done.actor."
	prefixErrorActor = "error.actor."
	prefixAfter      = "after."

	// WildcardDescriptor matches every event type.
	WildcardDescriptor = "*"
)

// Event is a message processed by an actor.
type Event struct {
	Type    string `json:"type" yaml:"type" mapstructure:"type"`
	Payload any    `json:"payload,omitempty" yaml:"payload,omitempty" mapstructure:"payload"`
}

// NewEvent creates an event with an optional payload.
func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload}
}

// ActorError is the payload of error.actor.* events.
// It is a plain struct so that pending error events survive persistence.
type ActorError struct {
	ActorID string `json:"actor_id"`
	Message string `json:"message"`
}

func (e *ActorError) Error() string {
	return e.ActorID + ": " + e.Message
}

// DoneStateEvent is raised when a compound or parallel state completes.
func DoneStateEvent(stateID string, output any) Event {
	return Event{Type: prefixDoneState + stateID, Payload: output}
}

// DoneActorEvent is delivered to a parent when a child reaches its final status.
func DoneActorEvent(actorID string, output any) Event {
	return Event{Type: prefixDoneActor + actorID, Payload: output}
}

// ErrorActorEvent is delivered to a parent when a child fails.
func ErrorActorEvent(actorID string, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Type: prefixErrorActor + actorID, Payload: &ActorError{ActorID: actorID, Message: msg}}
}

// DoneActorType returns the event type of the completion event for an actor id.
func DoneActorType(actorID string) string { return prefixDoneActor + actorID }

// ErrorActorType returns the event type of the failure event for an actor id.
func ErrorActorType(actorID string) string { return prefixErrorActor + actorID }

// DoneStateType returns the event type raised when the given state completes.
func DoneStateType(stateID string) string { return prefixDoneState + stateID }

// AfterType returns the event type of a delayed transition of a state.
func AfterType(delay, stateID string) string {
	return prefixAfter + delay + "." + stateID
}

// IsErrorEvent reports whether the event type denotes a failure notification.
func IsErrorEvent(eventType string) bool {
	return strings.HasPrefix(eventType, "error.")
}

// EventError extracts the error carried by an error event, if any.
func EventError(ev Event) error {
	switch p := ev.Payload.(type) {
	case error:
		return p
	case ActorError:
		return &p
	case map[string]any:
		// Restored from JSON.
		if msg, ok := p["message"].(string); ok {
			id, _ := p["actor_id"].(string)
			return &ActorError{ActorID: id, Message: msg}
		}
	}
	return nil
}

// MatchesDescriptor reports whether an event type is matched by a descriptor.
// A descriptor is an exact type, "*", or a partial descriptor ending in ".*"
// such as "done.actor.*", which also matches "done.actor" itself.
func MatchesDescriptor(descriptor, eventType string) bool {
	if descriptor == eventType || descriptor == WildcardDescriptor {
		return true
	}
	if !strings.HasSuffix(descriptor, ".*") {
		return false
	}
	partial := strings.Split(descriptor, ".")
	tokens := strings.Split(eventType, ".")
	for i, tok := range partial {
		if tok == "*" {
			return i == len(partial)-1
		}
		if i >= len(tokens) || tok != tokens[i] {
			return false
		}
	}
	return true
}

// IsWildcard reports whether the descriptor is a partial or full wildcard.
func IsWildcard(descriptor string) bool {
	return descriptor == WildcardDescriptor || strings.HasSuffix(descriptor, ".*")
}

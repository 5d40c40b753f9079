package domain

import "errors"

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrActorStopped is returned when sending to an actor that is no longer running.
var ErrActorStopped = errors.New("actor is not running")

// ErrActorNotFound is returned when a send target cannot be resolved.
var ErrActorNotFound = errors.New("actor not found")

// ErrDuplicateChild is returned when spawning a child with an id already in use by a sibling.
var ErrDuplicateChild = errors.New("duplicate child id")

// ErrSystemIDTaken is returned when registering a system id that is already registered.
var ErrSystemIDTaken = errors.New("system id already registered")

// ErrUnknownLogic is returned at restore time when a persisted child logic key no longer resolves.
var ErrUnknownLogic = errors.New("unknown actor logic")

// ErrLogicMismatch is returned at restore time when a key resolves to a different logic than persisted.
var ErrLogicMismatch = errors.New("actor logic mismatch")

// ErrInfiniteLoop is returned when a macrostep exceeds the microstep ceiling.
var ErrInfiniteLoop = errors.New("infinite loop detected in eventless transitions")

// ErrInvalidSnapshot is returned when a persisted snapshot cannot be applied.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

/*
Package domain contains the plain data shared by every layer of the runtime.

It defines events, snapshot statuses, the persisted snapshot format, sentinel
errors and lifecycle hooks. The package is kept free of behavior and I/O so
that stores, transports and the interpreter can all depend on it.

# Key Entities

  - Event: a typed message delivered to an actor, with an optional payload.
  - Status: the lifecycle status reported by a snapshot (active, done, error, stopped).
  - PersistedSnapshot: the serializable form of an actor and its children.
  - LifecycleHooks: callbacks fired by the runtime for observability.
*/
package domain

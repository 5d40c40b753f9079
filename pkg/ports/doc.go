/*
Package ports defines the driven ports (interfaces) of the runtime.

These interfaces decouple actors and sessions from external implementations,
allowing snapshots to live in memory, files, Redis or SQLite, and machine
descriptions to come from any source.

# Key Interfaces

  - SnapshotStore: persists and loads the PersistedSnapshot of a session.
  - DistributedLocker: provides distributed locking for concurrent session access.
  - DefinitionLoader: retrieves raw machine descriptions by name.
  - Watchable: signals that definitions changed on disk.

Package tests provides contract suites every adapter runs.
*/
package ports

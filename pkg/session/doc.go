/*
Package session implements session management and persistence orchestration.

A session is a persisted actor. The Manager serializes access to each session
with reference counted in-process locks plus an optional distributed lock, so
several replicas can share one SnapshotStore. Dispatch runs the whole cycle of
one request: load, restore, start, send, persist and stop.
*/
package session

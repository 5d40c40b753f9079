/*
Package actor implements the actor runtime that hosts machines and primitive
behaviors.

Every Actor wraps a Logic and owns exactly one mailbox. Events sent to an
actor are processed one at a time, in send order; sends issued while an
event is being processed (including sends from the actor's own actions) are
queued and drained by the caller that is already flushing the mailbox, so
processing is never reentrant.

Actors form a tree. A parent owns its children; a child only keeps a weak
handle to its parent, used to route completion and error notifications.
A System groups the actors of one tree and provides the system id registry,
the clock and the delayed event scheduler.

Primitive logics are available for common behaviors:

  - FromPromise: runs a function once and completes with its result.
  - FromCallback: runs a long-lived function that can send events back to the parent.
  - FromTransition: folds received events into a state with a reducer.
  - FromStream: publishes every value produced by a function until it returns.
*/
package actor

package actor

import (
	"context"
	"fmt"

	"github.com/aretw0/troupe/pkg/domain"
)

// WaitFor blocks until the actor snapshot satisfies predicate, the actor
// terminates, or ctx is done.
func WaitFor(ctx context.Context, a *Actor, predicate func(Snapshot) bool) (Snapshot, error) {
	if snap := a.Snapshot(); predicate(snap) {
		return snap, nil
	}

	matched := make(chan Snapshot, 1)
	ended := make(chan error, 1)
	unsubscribe := a.Subscribe(Observer{
		Next: func(s Snapshot) {
			if predicate(s) {
				select {
				case matched <- s:
				default:
				}
			}
		},
		Error: func(err error) {
			select {
			case ended <- err:
			default:
			}
		},
		Complete: func() {
			select {
			case ended <- nil:
			default:
			}
		},
	})
	defer unsubscribe()

	// The snapshot may have changed before the subscription was registered.
	if snap := a.Snapshot(); predicate(snap) {
		return snap, nil
	}

	select {
	case s := <-matched:
		return s, nil
	case err := <-ended:
		snap := a.Snapshot()
		if predicate(snap) {
			return snap, nil
		}
		if err != nil {
			return snap, err
		}
		return snap, fmt.Errorf("actor %s ended before the condition was met: %w", a.id, domain.ErrActorStopped)
	case <-ctx.Done():
		return a.Snapshot(), ctx.Err()
	}
}

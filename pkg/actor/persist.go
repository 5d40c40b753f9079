package actor

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/aretw0/troupe/pkg/domain"
)

// Restore creates a root actor from a persisted snapshot.
// Children are rebuilt through the logic's ChildResolver; pending mailbox
// events and self-scheduled delayed events are resumed when the actor starts.
func Restore(logic Logic, ps *domain.PersistedSnapshot, opts ...Option) (*Actor, error) {
	if ps == nil {
		return nil, fmt.Errorf("%w: nil snapshot", domain.ErrInvalidSnapshot)
	}
	a := newActor(logic, nil, applyOptions(opts))
	if err := a.restore(ps); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Actor) restore(ps *domain.PersistedSnapshot) error {
	if err := checkCompatible(a.logic, ps); err != nil {
		return err
	}

	snap, err := a.guard(func() (Snapshot, error) {
		return a.logic.Restore(a.scope, ps)
	})
	if err != nil {
		return fmt.Errorf("restore %s: %w", a.id, err)
	}
	a.snapshot = snap

	if len(ps.Children) > 0 {
		resolver, _ := a.logic.(ChildResolver)
		ids := make([]string, 0, len(ps.Children))
		for id := range ps.Children {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		for _, id := range ids {
			pc := ps.Children[id]
			if pc.Snapshot == nil {
				return fmt.Errorf("%w: child %q has no snapshot", domain.ErrInvalidSnapshot, id)
			}
			if resolver == nil {
				return fmt.Errorf("%w: %q (logic %s cannot resolve children)", domain.ErrUnknownLogic, pc.Src, a.logic.LogicID())
			}
			childLogic, ok := resolver.ResolveChild(pc.Src)
			if !ok {
				return fmt.Errorf("%w: %q", domain.ErrUnknownLogic, pc.Src)
			}

			child := newActor(childLogic, a, applyOptions([]Option{
				WithID(id),
				WithSystemID(pc.SystemID),
				withSrc(pc.Src),
			}))
			if err := child.restore(pc.Snapshot); err != nil {
				return err
			}
			if pc.Snapshot.Status != domain.StatusActive {
				continue
			}
			if err := a.attachChild(child); err != nil {
				return err
			}
			a.deferred = append(a.deferred, func() error {
				if child.Status() == StatusNotStarted {
					_ = child.Start()
				}
				return nil
			})
		}
	}

	a.mailbox.prepend(ps.Pending)
	a.restoredScheduled = slices.Clone(ps.Scheduled)
	return nil
}

// checkCompatible rejects snapshots written by another logic or by an
// incompatible (different major) version of the same logic.
func checkCompatible(logic Logic, ps *domain.PersistedSnapshot) error {
	if ps.LogicID != "" && ps.LogicID != logic.LogicID() {
		return fmt.Errorf("%w: snapshot of %q restored into %q", domain.ErrLogicMismatch, ps.LogicID, logic.LogicID())
	}

	v, ok := logic.(Versioned)
	if !ok || v.Version() == "" || ps.Version == "" {
		return nil
	}
	current, err := semver.NewVersion(v.Version())
	if err != nil {
		return fmt.Errorf("logic %s: invalid version %q: %w", logic.LogicID(), v.Version(), err)
	}
	stored, err := semver.NewVersion(ps.Version)
	if err != nil {
		return fmt.Errorf("%w: invalid version %q", domain.ErrInvalidSnapshot, ps.Version)
	}
	c, err := semver.NewConstraint(fmt.Sprintf("%d.x", current.Major()))
	if err != nil {
		return err
	}
	if !c.Check(stored) {
		return fmt.Errorf("%w: snapshot version %s is not compatible with %s", domain.ErrLogicMismatch, stored, current)
	}
	return nil
}

// PersistedSnapshot returns the actor state, children included, as plain data.
// Children spawned without a registry key cannot be restored and are skipped.
func (a *Actor) PersistedSnapshot() (*domain.PersistedSnapshot, error) {
	snap := a.Snapshot()

	var ps *domain.PersistedSnapshot
	if f, ok := snap.(failedSnapshot); ok {
		ps = &domain.PersistedSnapshot{Status: domain.StatusError}
		if f.err != nil {
			ps.Error = f.err.Error()
		}
	} else {
		var err error
		ps, err = a.logic.Persist(snap)
		if err != nil {
			return nil, fmt.Errorf("persist %s: %w", a.id, err)
		}
	}
	if ps.LogicID == "" {
		ps.LogicID = a.logic.LogicID()
	}
	if v, ok := a.logic.(Versioned); ok && ps.Version == "" {
		ps.Version = v.Version()
	}

	for _, child := range a.Children() {
		if child.src == "" {
			a.logger.Debug("child not persisted: spawned without src", "child", child.id)
			continue
		}
		cps, err := child.PersistedSnapshot()
		if err != nil {
			return nil, err
		}
		if ps.Children == nil {
			ps.Children = make(map[string]domain.PersistedChild)
		}
		ps.Children[child.id] = domain.PersistedChild{
			Src:      child.src,
			SystemID: child.systemID,
			Snapshot: cps,
		}
	}

	ps.Pending = a.mailbox.pending()
	ps.Scheduled = a.system.scheduler.pending(a)
	if len(ps.Scheduled) == 0 && len(a.restoredScheduled) > 0 {
		ps.Scheduled = slices.Clone(a.restoredScheduled)
	}
	return ps, nil
}

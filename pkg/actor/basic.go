package actor

import (
	"errors"
	"fmt"

	"github.com/aretw0/troupe/pkg/domain"
)

// BasicSnapshot is the snapshot of the primitive logics.
type BasicSnapshot struct {
	status domain.Status
	output any
	err    error
	input  any
	data   any
	// runtime holds values that only live while the actor runs.
	runtime any
}

func newBasicSnapshot(input, data any) *BasicSnapshot {
	return &BasicSnapshot{status: domain.StatusActive, input: input, data: data}
}

func (s *BasicSnapshot) Status() domain.Status { return s.status }
func (s *BasicSnapshot) Output() any           { return s.output }
func (s *BasicSnapshot) Err() error            { return s.err }

// Input returns the input the actor was created with.
func (s *BasicSnapshot) Input() any { return s.input }

// Data returns the logic state (the reducer state, the last streamed value).
func (s *BasicSnapshot) Data() any { return s.data }

func (s *BasicSnapshot) WithStatus(status domain.Status, err error) Snapshot {
	next := *s
	next.status = status
	if err != nil {
		next.err = err
	}
	return &next
}

func (s *BasicSnapshot) with(fn func(*BasicSnapshot)) *BasicSnapshot {
	next := *s
	fn(&next)
	return &next
}

func basicFrom(snap Snapshot) (*BasicSnapshot, error) {
	s, ok := snap.(*BasicSnapshot)
	if !ok {
		return nil, fmt.Errorf("unexpected snapshot type %T", snap)
	}
	return s, nil
}

func persistBasic(logicID string, snap Snapshot) (*domain.PersistedSnapshot, error) {
	s, err := basicFrom(snap)
	if err != nil {
		return nil, err
	}
	ps := &domain.PersistedSnapshot{
		LogicID: logicID,
		Status:  s.status,
		Output:  s.output,
	}
	if s.err != nil {
		ps.Error = s.err.Error()
	}
	if s.input != nil || s.data != nil {
		ps.Data = map[string]any{"input": s.input, "state": s.data}
	}
	return ps, nil
}

func restoreBasic(ps *domain.PersistedSnapshot) *BasicSnapshot {
	s := &BasicSnapshot{status: ps.Status, output: ps.Output}
	if s.status == "" {
		s.status = domain.StatusActive
	}
	if ps.Error != "" {
		s.err = errors.New(ps.Error)
	}
	if m, ok := ps.Data.(map[string]any); ok {
		s.input = m["input"]
		s.data = m["state"]
	}
	return s
}

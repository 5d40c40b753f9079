package domain

import (
	"reflect"
)

// SnapshotDiff represents the changes between two persisted snapshots.
// It is designed to be serialized to JSON for partial updates on the client.
type SnapshotDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	// Value is set when the state value changed.
	Value any `json:"value,omitempty"`

	Status *Status `json:"status,omitempty"`

	// Context contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Context map[string]any `json:"context,omitempty"`

	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, it returns a diff representing the entire newSnap.
// It returns nil when nothing changed.
func Diff(sessionID string, oldSnap, newSnap *PersistedSnapshot) *SnapshotDiff {
	if newSnap == nil {
		return nil
	}

	diff := &SnapshotDiff{SessionID: sessionID}

	if oldSnap == nil || !reflect.DeepEqual(oldSnap.Value, newSnap.Value) {
		diff.Value = newSnap.Value
	}
	if oldSnap == nil || oldSnap.Status != newSnap.Status {
		diff.Status = &newSnap.Status
	}
	if oldSnap == nil || !reflect.DeepEqual(oldSnap.Output, newSnap.Output) {
		diff.Output = newSnap.Output
	}
	if oldSnap == nil || oldSnap.Error != newSnap.Error {
		diff.Error = newSnap.Error
	}

	var oldCtx map[string]any
	if oldSnap != nil {
		oldCtx = oldSnap.Context
	}
	diff.Context = diffContext(oldCtx, newSnap.Context, oldSnap == nil)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffContext(old, new map[string]any, initial bool) map[string]any {
	delta := make(map[string]any)

	if initial {
		for k, v := range new {
			delta[k] = v
		}
		return nilIfEmpty(delta)
	}

	// Added or modified
	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	// Deleted
	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	return nilIfEmpty(delta)
}

func nilIfEmpty(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Value == nil &&
		d.Status == nil &&
		len(d.Context) == 0 &&
		d.Output == nil &&
		d.Error == ""
}

package domain

import "time"

// PersistedSnapshot is the serializable form of an actor.
// It carries no function references and no live actor handles, so it can be
// stored as JSON or YAML in any medium and restored later.
type PersistedSnapshot struct {
	// LogicID identifies the logic that produced the snapshot (the machine id for machines).
	LogicID string `json:"logic_id,omitempty" yaml:"logic_id,omitempty"`

	// Version is the version of the logic, when it declares one.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	Status Status `json:"status" yaml:"status"`

	// Value is the nested state value of a machine: a state key or a map of key to value.
	Value any `json:"value,omitempty" yaml:"value,omitempty"`

	Context map[string]any `json:"context,omitempty" yaml:"context,omitempty"`

	Output any    `json:"output,omitempty" yaml:"output,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`

	// HistoryValue maps history state ids to the ids of the states they recorded.
	HistoryValue map[string][]string `json:"history_value,omitempty" yaml:"history_value,omitempty"`

	// Children holds the persisted children keyed by actor id.
	Children map[string]PersistedChild `json:"children,omitempty" yaml:"children,omitempty"`

	// Pending holds mailbox events that were sent but not yet processed.
	Pending []Event `json:"pending,omitempty" yaml:"pending,omitempty"`

	// Scheduled holds delayed events the actor scheduled to itself.
	Scheduled []ScheduledEvent `json:"scheduled,omitempty" yaml:"scheduled,omitempty"`

	// Data is the opaque state of non-machine logics (reducers, streams).
	Data any `json:"data,omitempty" yaml:"data,omitempty"`
}

// PersistedChild is a child entry of a persisted snapshot.
type PersistedChild struct {
	// Src is the registry key the child logic was resolved from.
	Src      string             `json:"src" yaml:"src"`
	SystemID string             `json:"system_id,omitempty" yaml:"system_id,omitempty"`
	Snapshot *PersistedSnapshot `json:"snapshot" yaml:"snapshot"`
}

// ScheduledEvent is a delayed event waiting to be delivered.
type ScheduledEvent struct {
	ID    string    `json:"id" yaml:"id"`
	Event Event     `json:"event" yaml:"event"`
	DueAt time.Time `json:"due_at" yaml:"due_at"`
}

// Clone returns a deep copy of the snapshot.
// Maps and slices decoded from JSON or YAML are copied; other values are shared.
func (p *PersistedSnapshot) Clone() *PersistedSnapshot {
	if p == nil {
		return nil
	}
	out := *p
	out.Value = cloneValue(p.Value)
	out.Context = cloneMap(p.Context)
	out.Output = cloneValue(p.Output)
	out.Data = cloneValue(p.Data)
	if p.HistoryValue != nil {
		out.HistoryValue = make(map[string][]string, len(p.HistoryValue))
		for k, v := range p.HistoryValue {
			out.HistoryValue[k] = append([]string(nil), v...)
		}
	}
	if p.Children != nil {
		out.Children = make(map[string]PersistedChild, len(p.Children))
		for k, c := range p.Children {
			c.Snapshot = c.Snapshot.Clone()
			out.Children[k] = c
		}
	}
	if p.Pending != nil {
		out.Pending = make([]Event, len(p.Pending))
		for i, ev := range p.Pending {
			ev.Payload = cloneValue(ev.Payload)
			out.Pending[i] = ev
		}
	}
	if p.Scheduled != nil {
		out.Scheduled = make([]ScheduledEvent, len(p.Scheduled))
		for i, s := range p.Scheduled {
			s.Event.Payload = cloneValue(s.Event.Payload)
			out.Scheduled[i] = s
		}
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	}
	return v
}

package machine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/schema"
	"gopkg.in/yaml.v3"
)

// MachineConfig is the declarative description of a machine.
// The root state is embedded, so a description reads like any other state
// with a few machine-level keys added.
type MachineConfig struct {
	StateConfig `yaml:",inline" mapstructure:",squash"`

	// Version is a semantic version checked when restoring snapshots.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Context is the initial context.
	Context map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	// ContextFrom names a mapper computing the initial context from the input.
	ContextFrom string `json:"contextFrom,omitempty" yaml:"contextFrom,omitempty"`
	// Schema validates the context after every step.
	Schema schema.Schema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// StateConfig describes one state node.
type StateConfig struct {
	ID          string                  `json:"id,omitempty" yaml:"id,omitempty"`
	Type        string                  `json:"type,omitempty" yaml:"type,omitempty"`
	History     string                  `json:"history,omitempty" yaml:"history,omitempty"`
	Initial     string                  `json:"initial,omitempty" yaml:"initial,omitempty"`
	Target      Targets                 `json:"target,omitempty" yaml:"target,omitempty"`
	States      Ordered[*StateConfig]   `json:"states,omitempty" yaml:"states,omitempty"`
	On          Ordered[TransitionList] `json:"on,omitempty" yaml:"on,omitempty"`
	Always      TransitionList          `json:"always,omitempty" yaml:"always,omitempty"`
	After       Ordered[TransitionList] `json:"after,omitempty" yaml:"after,omitempty"`
	Entry       ActionList              `json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit        ActionList              `json:"exit,omitempty" yaml:"exit,omitempty"`
	Invoke      InvokeList              `json:"invoke,omitempty" yaml:"invoke,omitempty"`
	OnDone      TransitionList          `json:"onDone,omitempty" yaml:"onDone,omitempty"`
	Tags        []string                `json:"tags,omitempty" yaml:"tags,omitempty"`
	Output      any                     `json:"output,omitempty" yaml:"output,omitempty"`
	OutputFrom  string                  `json:"outputFrom,omitempty" yaml:"outputFrom,omitempty"`
	Description string                  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Node kinds accepted in StateConfig.Type.
const (
	TypeAtomic   = "atomic"
	TypeCompound = "compound"
	TypeParallel = "parallel"
	TypeFinal    = "final"
	TypeHistory  = "history"
)

// Targets is a list of transition targets. It decodes from a string or a list.
type Targets []string

func (t *Targets) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			*t = nil
			return nil
		}
		*t = Targets{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	return fmt.Errorf("line %d: target must be a string or a list", node.Line)
}

func (t *Targets) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*t = nil
		} else {
			*t = Targets{one}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("target must be a string or a list: %w", err)
	}
	*t = list
	return nil
}

// TransitionConfig describes one transition candidate.
type TransitionConfig struct {
	Target      Targets      `json:"target,omitempty" yaml:"target,omitempty"`
	Guard       *GuardConfig `json:"guard,omitempty" yaml:"guard,omitempty"`
	Actions     ActionList   `json:"actions,omitempty" yaml:"actions,omitempty"`
	Reenter     bool         `json:"reenter,omitempty" yaml:"reenter,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
}

// TransitionList is an ordered list of candidates for one event.
// It decodes from a target string, a single object, or a list of either.
type TransitionList []TransitionConfig

func (l *TransitionList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		out := make(TransitionList, 0, len(node.Content))
		for _, item := range node.Content {
			t, err := decodeTransitionYAML(item)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		*l = out
		return nil
	}
	t, err := decodeTransitionYAML(node)
	if err != nil {
		return err
	}
	*l = TransitionList{t}
	return nil
}

func decodeTransitionYAML(node *yaml.Node) (TransitionConfig, error) {
	var t TransitionConfig
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != "" {
			t.Target = Targets{node.Value}
		}
		return t, nil
	case yaml.MappingNode:
		err := node.Decode(&t)
		return t, err
	}
	return t, fmt.Errorf("line %d: transition must be a target or an object", node.Line)
}

func (l *TransitionList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make(TransitionList, 0, len(items))
		for _, item := range items {
			t, err := decodeTransitionJSON(item)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		*l = out
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	t, err := decodeTransitionJSON(data)
	if err != nil {
		return err
	}
	*l = TransitionList{t}
	return nil
}

func decodeTransitionJSON(data []byte) (TransitionConfig, error) {
	var t TransitionConfig
	var target string
	if err := json.Unmarshal(data, &target); err == nil {
		if target != "" {
			t.Target = Targets{target}
		}
		return t, nil
	}
	err := json.Unmarshal(data, &t)
	return t, err
}

// ActionConfig references an action by type.
// Builtin types (assign, raise, sendTo, sendParent, forwardTo, emit, log,
// spawnChild, stopChild, cancel) take their arguments from Params; any other
// type names an entry of Implementations.Assigns or Implementations.Actions.
type ActionConfig struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// Inline implementations, set by the Go builders.
	Func   ActionFunc `json:"-" yaml:"-"`
	Assign AssignFunc `json:"-" yaml:"-"`
}

// ActionList decodes from a name, an object, or a list of either.
// In the object form every key but "type" is a parameter, unless an explicit
// "params" key is present.
type ActionList []ActionConfig

func actionFromMap(m map[string]any) (ActionConfig, error) {
	a := ActionConfig{}
	typ, ok := m["type"].(string)
	if !ok || typ == "" {
		return a, fmt.Errorf("action object requires a string type")
	}
	a.Type = typ
	if params, ok := m["params"].(map[string]any); ok {
		a.Params = params
		return a, nil
	}
	for k, v := range m {
		if k == "type" {
			continue
		}
		if a.Params == nil {
			a.Params = make(map[string]any)
		}
		a.Params[k] = v
	}
	return a, nil
}

func (l *ActionList) UnmarshalYAML(node *yaml.Node) error {
	var items []*yaml.Node
	if node.Kind == yaml.SequenceNode {
		items = node.Content
	} else {
		items = []*yaml.Node{node}
	}
	out := make(ActionList, 0, len(items))
	for _, item := range items {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, ActionConfig{Type: item.Value})
		case yaml.MappingNode:
			var m map[string]any
			if err := item.Decode(&m); err != nil {
				return err
			}
			a, err := actionFromMap(m)
			if err != nil {
				return fmt.Errorf("line %d: %w", item.Line, err)
			}
			out = append(out, a)
		default:
			return fmt.Errorf("line %d: action must be a name or an object", item.Line)
		}
	}
	*l = out
	return nil
}

func (l *ActionList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	out := make(ActionList, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, ActionConfig{Type: v})
		case map[string]any:
			a, err := actionFromMap(v)
			if err != nil {
				return err
			}
			out = append(out, a)
		default:
			return fmt.Errorf("action must be a name or an object, got %T", item)
		}
	}
	*l = out
	return nil
}

// GuardConfig references a guard.
// It decodes from a name or an object; the builtin types "and" and "or" use
// Guards, "not" uses Guard and "stateIn" uses State.
type GuardConfig struct {
	Type   string         `json:"type" yaml:"type"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Guards []*GuardConfig `json:"guards,omitempty" yaml:"guards,omitempty"`
	Guard  *GuardConfig   `json:"guard,omitempty" yaml:"guard,omitempty"`
	State  string         `json:"state,omitempty" yaml:"state,omitempty"`

	Func GuardFunc `json:"-" yaml:"-"`
}

func (g *GuardConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*g = GuardConfig{Type: node.Value}
		return nil
	}
	type plain GuardConfig
	return node.Decode((*plain)(g))
}

func (g *GuardConfig) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*g = GuardConfig{Type: name}
		return nil
	}
	type plain GuardConfig
	return json.Unmarshal(data, (*plain)(g))
}

// InvokeConfig describes a child actor owned by a state.
type InvokeConfig struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Src       string         `json:"src" yaml:"src"`
	Input     any            `json:"input,omitempty" yaml:"input,omitempty"`
	InputFrom string         `json:"inputFrom,omitempty" yaml:"inputFrom,omitempty"`
	SystemID  string         `json:"systemId,omitempty" yaml:"systemId,omitempty"`
	OnDone    TransitionList `json:"onDone,omitempty" yaml:"onDone,omitempty"`
	OnError   TransitionList `json:"onError,omitempty" yaml:"onError,omitempty"`

	// Logic is an inline implementation registered under Src.
	Logic actor.Logic `json:"-" yaml:"-"`
}

// InvokeList decodes from a single object or a list.
type InvokeList []InvokeConfig

func (l *InvokeList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var list []InvokeConfig
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	var one InvokeConfig
	if err := node.Decode(&one); err != nil {
		return err
	}
	*l = InvokeList{one}
	return nil
}

func (l *InvokeList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []InvokeConfig
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	var one InvokeConfig
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = InvokeList{one}
	return nil
}

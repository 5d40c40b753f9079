package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/troupe/pkg/machine"
)

// Describe produces a markdown summary of a compiled machine: one section
// per state with its kind, tags and outgoing transitions.
func Describe(m *machine.Machine) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s", m.ID())
	if v := m.Version(); v != "" {
		fmt.Fprintf(&sb, " `v%s`", v)
	}
	sb.WriteString("\n\n")

	if events := m.Events(); len(events) > 0 {
		sb.WriteString("**Events:** ")
		for i, ev := range events {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "`%s`", ev)
		}
		sb.WriteString("\n\n")
	}

	for _, n := range m.StateNodes() {
		if n.Parent == nil {
			continue
		}
		fmt.Fprintf(&sb, "%s `%s` _%s_", strings.Repeat("#", min(depth(n)+1, 6)), n.ID, n.Kind)
		if n.Initial != nil {
			fmt.Fprintf(&sb, " (initial: `%s`)", n.Initial.Key)
		}
		sb.WriteString("\n\n")
		if n.Description != "" {
			sb.WriteString(n.Description + "\n\n")
		}
		if len(n.Tags) > 0 {
			fmt.Fprintf(&sb, "Tags: %s\n\n", strings.Join(n.Tags, ", "))
		}

		var rows []string
		for _, ev := range n.Events() {
			for _, t := range n.Transitions(ev) {
				target := "_(stay)_"
				if ids := t.TargetIDs(); len(ids) > 0 {
					target = "`" + strings.Join(ids, "`, `") + "`"
				}
				rows = append(rows, fmt.Sprintf("| `%s` | %s |", displayEvent(ev), target))
			}
		}
		if len(rows) > 0 {
			sb.WriteString("| Event | Target |\n|---|---|\n")
			sb.WriteString(strings.Join(rows, "\n"))
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

func depth(n *machine.StateNode) int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

func displayEvent(ev string) string {
	if ev == "" {
		return "(always)"
	}
	return ev
}

/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically constructing machines.

It builds the same machine.MachineConfig a YAML or JSON description decodes to, using a fluent
builder instead of external files. This is particularly useful for tests, for machines generated
at runtime, and for attaching inline Go implementations to guards and actions.

Example usage:

	b := dsl.Machine("door").Context("opened", 0)

	b.State("closed").
		On("OPEN", "opened", machine.AssignWith("count", func(a machine.Args) (map[string]any, error) {
			return map[string]any{"opened": a.Context["opened"].(int) + 1}, nil
		})).
		OnWhen("LOCK", machine.Guard("hasKey", nil), "locked")

	b.State("opened").
		On("CLOSE", "closed").
		After(30*time.Second, "closed")

	b.State("locked").Final()

	m, err := b.Compile(machine.Implementations{
		Guards: map[string]machine.GuardFunc{"hasKey": hasKey},
	})
*/
package dsl

/*
Package troupe is a statechart interpreter with an embedded actor runtime.

A machine is described in YAML, JSON or Go (package dsl) as nested states,
event transitions, guards, actions, delayed and eventless transitions,
history and parallel regions. The compiled machine is an actor.Logic: every
running instance is an actor that processes one event at a time, spawns and
stops children, exchanges messages with its parent and siblings, and can be
persisted to plain data and restored later.

# Usage

	m, err := troupe.LoadMachine("door.yaml", machine.Implementations{})
	if err != nil {
		log.Fatal(err)
	}

	a := troupe.CreateActor(m)
	if err := a.Start(); err != nil {
		log.Fatal(err)
	}
	defer a.Stop()

	a.Send(domain.NewEvent("OPEN", nil))
	fmt.Println(a.Snapshot().(*machine.State).Value())

# Layout

  - pkg/machine: configuration model, compiler and interpreter.
  - pkg/actor: actor runtime, systems, clocks and primitive logics.
  - pkg/dsl: fluent Go builder for machine descriptions.
  - pkg/session: persisted sessions driven one dispatch at a time.
  - pkg/adapters: snapshot stores (memory, redis) and host adapters (http, mcp).
  - pkg/persistence/middleware: encryption and PII masking for stores.
  - pkg/observability: Prometheus metrics and log hooks.
*/
package troupe

/*
Package machine compiles statechart descriptions and interprets them.

A MachineConfig (decoded from YAML or JSON, or built in Go) is compiled by New
against a set of Implementations. Compilation resolves every name once:
targets, actions, guards, delays, child logics and mappers. The result is an
immutable Machine.

A Machine is an actor.Logic. Run it inside an actor to get timers, children
and effects:

	m, err := machine.New(cfg, impl)
	a := actor.New(m, actor.WithInput(map[string]any{"user": "ada"}))
	a.Start()
	a.Send(domain.NewEvent("SUBMIT", nil))

or step it without an actor with InitialState and Step, which apply
context assignments, raised events and eventless transitions but skip every
other effect.

Event processing follows run-to-completion semantics. An external event
triggers one macrostep: the enabled transitions are taken as a microstep,
then eventless transitions and internally raised events are processed until
the configuration is stable. Transitions are selected per active atomic
state, innermost source first, in document order; conflicting transitions
are resolved in favor of the deeper source.

# Descriptions

	id: light
	initial: green
	states:
	  green:
	    after:
	      5s: yellow
	    on:
	      EMERGENCY: red
	  yellow:
	    after:
	      1000: red
	  red:
	    on:
	      RESET:
	        target: green
	        actions:
	          - type: assign
	            resets: $context.resets
	          - type: emit
	            event: {type: reset}

Targets are sibling keys ("yellow"), child keys relative to the source
(".child"), or state ids ("#light.red"). Literal values may reference
"$context.key", "$event.payload.key" or "$params.key".
*/
package machine

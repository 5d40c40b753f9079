package troupe_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aretw0/troupe"
	"github.com/aretw0/troupe/pkg/actor"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/machine"
)

const trafficLight = `
id: light
initial: green
states:
  green:
    after:
      30s: yellow
    on:
      EMERGENCY: red
  yellow:
    after:
      5s: red
  red:
    on:
      CLEAR: green
`

// ExampleParseMachine drives a machine with delayed transitions on a
// simulated clock, so the example runs instantly.
func ExampleParseMachine() {
	m, err := troupe.ParseMachine([]byte(trafficLight), "yaml", machine.Implementations{})
	if err != nil {
		log.Fatal(err)
	}

	clock := actor.NewSimulatedClock(time.Unix(0, 0))
	a := troupe.CreateActor(m, actor.WithClock(clock))
	if err := a.Start(); err != nil {
		log.Fatal(err)
	}
	defer a.Stop()

	value := func() any { return a.Snapshot().(*machine.State).Value() }
	fmt.Println(value())

	clock.Advance(30 * time.Second)
	fmt.Println(value())

	clock.Advance(5 * time.Second)
	fmt.Println(value())

	_ = a.Send(domain.NewEvent("CLEAR", nil))
	fmt.Println(value())
	// Output:
	// green
	// yellow
	// red
	// green
}

// ExampleRestoreActor persists a running actor and resumes it elsewhere.
func ExampleRestoreActor() {
	m, err := troupe.ParseMachine([]byte(trafficLight), "yaml", machine.Implementations{})
	if err != nil {
		log.Fatal(err)
	}

	a := troupe.CreateActor(m)
	_ = a.Start()
	_ = a.Send(domain.NewEvent("EMERGENCY", nil))
	snap, err := a.PersistedSnapshot()
	if err != nil {
		log.Fatal(err)
	}
	a.Stop()

	restored, err := troupe.RestoreActor(m, snap)
	if err != nil {
		log.Fatal(err)
	}
	_ = restored.Start()
	defer restored.Stop()
	_ = restored.Send(domain.NewEvent("CLEAR", nil))

	s, err := troupe.WaitFor(context.Background(), restored, troupe.InState("green"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(snap.Value, "->", s.(*machine.State).Value())
	// Output: red -> green
}

package actor_test

import (
	"testing"
	"time"

	"github.com/aretw0/troupe/pkg/actor"
	"github.com/stretchr/testify/assert"
)

func TestSimulatedClock_FiresInDueOrder(t *testing.T) {
	start := time.Unix(0, 0)
	clock := actor.NewSimulatedClock(start)

	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := clock.AfterFunc(time.Second, func() { fired = append(fired, "stopped") })
	clock.AfterFunc(time.Second, func() {
		fired = append(fired, "a2")
		// Timers scheduled while advancing fire in the same window when due.
		clock.AfterFunc(500*time.Millisecond, func() { fired = append(fired, "nested") })
	})

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "a2", "nested", "b"}, fired)
	assert.Equal(t, start.Add(2*time.Second), clock.Now())
	assert.Equal(t, 0, clock.Pending())
}

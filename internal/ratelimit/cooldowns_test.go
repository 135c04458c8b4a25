package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_EnforcesInterval(t *testing.T) {
	c := NewCooldowns()

	assert.True(t, c.Allow("g", "u", ActionList, time.Hour))
	assert.False(t, c.Allow("g", "u", ActionList, time.Hour), "second attempt inside the interval")

	// Different action, user or guild each get their own bucket.
	assert.True(t, c.Allow("g", "u", ActionBuy, time.Hour))
	assert.True(t, c.Allow("g", "other", ActionList, time.Hour))
	assert.True(t, c.Allow("g2", "u", ActionList, time.Hour))
}

func TestAllow_ZeroIntervalDisablesCooldown(t *testing.T) {
	c := NewCooldowns()
	for i := 0; i < 10; i++ {
		assert.True(t, c.Allow("g", "u", ActionBuy, 0))
	}
}

func TestAllow_IntervalChangeKeepsPendingCooldown(t *testing.T) {
	c := NewCooldowns()

	assert.True(t, c.Allow("g", "u", ActionList, time.Hour))
	// A guild config change adjusts the refill rate but never grants a
	// fresh token to a user still inside their cooldown.
	assert.False(t, c.Allow("g", "u", ActionList, time.Minute))
	assert.False(t, c.Allow("g", "u", ActionList, time.Minute))

	// A user with no pending cooldown is unaffected by the change.
	assert.True(t, c.Allow("g", "other", ActionList, time.Minute))
}

func TestPrune_DropsIdleEntries(t *testing.T) {
	c := NewCooldowns()
	c.Allow("g", "u", ActionList, time.Hour)

	c.Prune(time.Hour)
	assert.Len(t, c.entries, 1, "recently used entries survive")

	c.Prune(0)
	assert.Empty(t, c.entries)
}

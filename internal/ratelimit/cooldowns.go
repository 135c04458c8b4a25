// Package ratelimit provides the per-user action cooldown component
// injected into the market service. State is in-process and resets on
// restart: cooldowns are abuse mitigation, not a correctness mechanism.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Marketplace actions with cooldowns.
const (
	ActionList = "list"
	ActionBuy  = "buy"
)

type entry struct {
	limiter  *rate.Limiter
	interval time.Duration
	lastSeen time.Time
}

// Cooldowns tracks one token-bucket limiter per (guild, user, action).
type Cooldowns struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewCooldowns creates an empty cooldown tracker.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{entries: make(map[string]*entry)}
}

// Allow reports whether the user may perform the action now, consuming the
// cooldown token when they may. A non-positive interval disables the
// cooldown for that action.
func (c *Cooldowns) Allow(guildID, userID, action string, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := fmt.Sprintf("%s:%s:%s", guildID, userID, action)
	e, ok := c.entries[key]
	if !ok {
		e = &entry{
			limiter:  rate.NewLimiter(rate.Every(interval), 1),
			interval: interval,
		}
		c.entries[key] = e
	} else if e.interval != interval {
		// Adjust the refill rate in place so a config change never hands a
		// fresh token to a user mid-cooldown.
		e.limiter.SetLimit(rate.Every(interval))
		e.interval = interval
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Prune drops entries idle longer than maxIdle. The server runs this
// periodically so the map does not grow with every user ever seen.
func (c *Cooldowns) Prune(maxIdle time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if time.Since(e.lastSeen) > maxIdle {
			delete(c.entries, key)
		}
	}
}

// Run prunes on a fixed cadence until stop is closed.
func (c *Cooldowns) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Prune(10 * time.Minute)
		case <-stop:
			return
		}
	}
}

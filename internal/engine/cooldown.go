package engine

import (
	"sync"
	"time"
)

// cooldown throttles repeated escalations per subject key.
type cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func newCooldown() *cooldown {
	return &cooldown{last: make(map[string]time.Time)}
}

// Allow reports whether the key may escalate now and, if so, records the
// attempt. Calls inside the window are absorbed silently.
func (c *cooldown) Allow(key string, window time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.last[key]; ok && now.Sub(prev) < window {
		return false
	}
	c.last[key] = now
	return true
}

func (c *cooldown) Reset() {
	c.mu.Lock()
	c.last = make(map[string]time.Time)
	c.mu.Unlock()
}

package rainsensor

import (
	"sync"
	"time"

	"github.com/urmzd/centrald/pkg/clock"
)

// Monitor turns sensor readings into a weather verdict. Weather is bad
// while the sensor is wet, for Hold after the last wet reading, and
// whenever no reading arrived within Stale.
type Monitor struct {
	Hold  time.Duration
	Stale time.Duration

	clock clock.Clock

	mu       sync.Mutex
	lastSeen time.Time
	wet      bool
	wetUntil time.Time
}

// NewMonitor creates a Monitor. A fresh monitor reports bad weather until
// the first dry reading.
func NewMonitor(c clock.Clock, hold, stale time.Duration) *Monitor {
	if c == nil {
		c = clock.Real()
	}
	return &Monitor{Hold: hold, Stale: stale, clock: c}
}

// Observe records a reading.
func (m *Monitor) Observe(r Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.lastSeen = now
	m.wet = r == Wet
	if m.wet {
		m.wetUntil = now.Add(m.Hold)
	}
}

// Good reports the current verdict.
func (m *Monitor) Good() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.lastSeen.IsZero() {
		return false
	}
	if m.Stale > 0 && now.Sub(m.lastSeen) > m.Stale {
		return false
	}
	if m.wet {
		return false
	}
	return !now.Before(m.wetUntil)
}

// Package behavior implements the per-OID dynamic-value generators that
// back a device's counters/gauges maps (spec.md §3 DeviceState, §4.5.1
// steps 1-2: "updated out-of-band by behaviors, not specified here").
// Grounded in the teacher's internal/variation package, generalized from
// "transform a varbind on the way out" to "advance one named counter or
// gauge whenever the owning device actor asks for its current value."
package behavior

import (
	"math/rand"
	"sync"
	"time"
)

// Behavior produces the current value for one counter or gauge OID.
// Value is called from the owning device actor only (spec.md §3: counters
// and gauges are part of DeviceState, mutated only by its actor), so
// implementations do not need to be goroutine-safe across devices, only
// safe to call repeatedly over time from that single caller.
type Behavior interface {
	// Value returns the value to report at now.
	Value(now time.Time) uint32
}

// CounterIncrement models a monotonically increasing Counter32/Counter64:
// each call advances the value by Delta per elapsed Period, starting from
// Start, grounded in the teacher's CounterMonotonic.
type CounterIncrement struct {
	Start  uint32
	Delta  uint32
	Period time.Duration

	mu       sync.Mutex
	base     uint32
	anchor   time.Time
	anchored bool
}

func NewCounterIncrement(start, delta uint32, period time.Duration) *CounterIncrement {
	if period <= 0 {
		period = time.Second
	}
	return &CounterIncrement{Start: start, Delta: delta, Period: period}
}

func (c *CounterIncrement) Value(now time.Time) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.anchored {
		c.base = c.Start
		c.anchor = now
		c.anchored = true
	}
	steps := uint32(now.Sub(c.anchor) / c.Period)
	return c.base + steps*c.Delta
}

// GaugeRandomWalk models a Gauge32 that drifts within [Min, Max] by up to
// Step per call, grounded in the teacher's RandomJitter but bounded rather
// than unbounded so gauges stay in a plausible range across many reads.
type GaugeRandomWalk struct {
	Min, Max, Step uint32

	mu      sync.Mutex
	current uint32
	rng     *rand.Rand
	started bool
}

func NewGaugeRandomWalk(min, max, step uint32, seed int64) *GaugeRandomWalk {
	if max < min {
		min, max = max, min
	}
	if seed == 0 {
		seed = 1
	}
	return &GaugeRandomWalk{Min: min, Max: max, Step: step, rng: rand.New(rand.NewSource(seed))}
}

func (g *GaugeRandomWalk) Value(_ time.Time) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		g.current = g.Min + (g.Max-g.Min)/2
		g.started = true
		return g.current
	}
	if g.Step == 0 {
		return g.current
	}
	delta := int64(g.rng.Int31n(int32(g.Step)*2+1)) - int64(g.Step)
	next := int64(g.current) + delta
	if next < int64(g.Min) {
		next = int64(g.Min)
	}
	if next > int64(g.Max) {
		next = int64(g.Max)
	}
	g.current = uint32(next)
	return g.current
}

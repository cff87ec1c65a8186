package testutil

import (
	"sync"
	"time"
)

// StepClock is a thread-safe deterministic time source for tests.
//
// Each call to Now advances by Step, starting from Start. The same
// sequence of calls always yields the same timestamps, which keeps run
// history rows byte-comparable across test runs.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewStepClock returns a clock whose first Now is start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start, step: step}
}

// Now returns the next timestamp.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Calls reports how many timestamps have been handed out.
func (c *StepClock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset rewinds the clock so the next Now returns start again.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

// Gauge tracks how many callers are inside a section at once and the
// highest value ever observed.
type Gauge struct {
	mu     sync.Mutex
	active int
	max    int
	total  int
}

// Enter marks one more active caller.
func (g *Gauge) Enter() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active++
	g.total++
	g.max = max(g.max, g.active)
}

// Leave marks one fewer active caller.
func (g *Gauge) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active--
}

// Max returns the peak number of simultaneous callers.
func (g *Gauge) Max() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}

// Total returns how many times Enter was called.
func (g *Gauge) Total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}

package harness

import "sync"

// Reporter receives live notifications from the Scheduler. Methods are
// called from worker goroutines and must be safe for concurrent use.
// Reporting is advisory; nothing the Reporter does affects outcomes.
type Reporter interface {
	// OnProgress reports done out of total units. Units are bytes of
	// decoder output when the expected output size is known, and
	// finished Jobs otherwise.
	OnProgress(done, total int64)

	// OnJobOutcome is called once for every Job that completed.
	OnJobOutcome(Result)
}

// NopReporter ignores everything.
type NopReporter struct{}

func (NopReporter) OnProgress(int64, int64) {}
func (NopReporter) OnJobOutcome(Result)     {}

// byteCounter forwards decoder output volume to a Reporter.
type byteCounter struct {
	mu    sync.Mutex
	done  int64
	total int64
	r     Reporter
}

func (c *byteCounter) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.done += int64(len(p))
	done := c.done
	c.mu.Unlock()
	c.r.OnProgress(done, c.total)
	return len(p), nil
}

// jobCounter counts finished Jobs for a Reporter.
type jobCounter struct {
	mu    sync.Mutex
	done  int64
	total int64
	r     Reporter
}

func (c *jobCounter) finish() {
	c.mu.Lock()
	c.done++
	done := c.done
	c.mu.Unlock()
	c.r.OnProgress(done, c.total)
}

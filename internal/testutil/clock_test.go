package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func TestStepClock_Advances(t *testing.T) {
	clock := NewStepClock(epoch, time.Second)

	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch.Add(time.Second), clock.Now())
	assert.Equal(t, epoch.Add(2*time.Second), clock.Now())
	assert.Equal(t, int64(3), clock.Calls())
}

func TestStepClock_Reset(t *testing.T) {
	clock := NewStepClock(epoch, time.Minute)
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, int64(0), clock.Calls())
	assert.Equal(t, epoch, clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(epoch, time.Millisecond)
	const goroutines = 50
	const calls = 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[time.Time]bool)
	)
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range calls {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*calls, "every timestamp must be unique")
	assert.Equal(t, int64(goroutines*calls), clock.Calls())
}

func TestGauge_TracksPeak(t *testing.T) {
	var g Gauge
	g.Enter()
	g.Enter()
	g.Leave()
	g.Enter()
	g.Enter()
	g.Leave()
	g.Leave()
	g.Leave()

	assert.Equal(t, 3, g.Max())
	assert.Equal(t, 4, g.Total())
}

func TestGauge_Concurrent(t *testing.T) {
	var (
		g    Gauge
		wg   sync.WaitGroup
		gate = make(chan struct{})
	)
	const n = 8
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			g.Enter()
			<-gate
			g.Leave()
		}()
	}
	require.Eventually(t, func() bool { return g.Total() == n }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, n, g.Max())
}

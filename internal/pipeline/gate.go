package pipeline

import (
	"sync"
	"time"

	"ubacktest/internal/domain"
)

// Gate is the process-wide admission permit: one backtest in flight at a
// time. A second request is rejected immediately, not queued, and the
// permit frees a fixed delay after the run completes to smooth bursts.
type Gate struct {
	mu    sync.Mutex
	busy  bool
	delay time.Duration

	// afterFunc is swapped out in tests to control the trailing release.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewGate creates a gate with the given trailing release delay.
func NewGate(delay time.Duration) *Gate {
	return &Gate{
		delay:     delay,
		afterFunc: time.AfterFunc,
	}
}

// TryAcquire claims the permit, or fails with a RateLimitedError while a
// run is in flight or cooling down.
func (g *Gate) TryAcquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return &domain.RateLimitedError{}
	}
	g.busy = true
	return nil
}

// Release schedules the permit to free after the trailing delay. Called
// whether the run succeeded or failed.
func (g *Gate) Release() {
	g.afterFunc(g.delay, func() {
		g.mu.Lock()
		g.busy = false
		g.mu.Unlock()
	})
}

package util

import (
	"context"
	"time"
)

// Backoff produces the wait schedule of a polling loop: the delay grows
// linearly with the attempt index, so early polls are quick and later
// ones back off. Attempts are numbered from zero.
type Backoff struct {
	Base time.Duration
}

// Delay returns how long to wait after the given attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return b.Base * time.Duration(attempt+1)
}

// Sleep waits out the delay for the given attempt, returning early with
// the context's error if it is cancelled first.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.Delay(attempt)):
		return nil
	}
}

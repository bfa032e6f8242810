// Package tarpit implements the bounded, cancellable artificial delay
// spec.md §4.1 requires before outbound banner lines, auth decisions, and
// shell prompts/responses. Shared by internal/session and internal/shell
// so both insert delays at the same granularity and with the same
// cancellation semantics.
package tarpit

import (
	"math/rand"
	"time"
)

const (
	minDelay = 500 * time.Millisecond
	maxDelay = 5 * time.Second
)

// Tarpit is a small policy object: Delay is a no-op when disabled, so
// callers never need to branch on whether tarpitting is on.
type Tarpit struct {
	enabled bool
}

// New builds a Tarpit. enabled mirrors the --tarpit CLI flag.
func New(enabled bool) *Tarpit {
	return &Tarpit{enabled: enabled}
}

// Delay sleeps a uniform random duration in [500ms, 5s), or returns
// immediately if tarpitting is disabled. done, if non-nil and closed
// before the delay elapses, cancels the wait early — this is what makes
// the delay safe to use on a connection that might drop mid-sleep.
func (t *Tarpit) Delay(done <-chan struct{}) {
	if t == nil || !t.enabled {
		return
	}
	d := minDelay + time.Duration(rand.Int63n(int64(maxDelay-minDelay)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-done:
	}
}

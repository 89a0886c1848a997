// Package clock abstracts wall-clock time so that failure detection and
// cooldown expiry can be tested against a simulated clock.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time in Unix milliseconds.
type Clock interface {
	NowMilli() int64
}

// Real reads the system clock.
type Real struct{}

// NowMilli returns the current Unix time in milliseconds.
func (Real) NowMilli() int64 {
	return time.Now().UnixMilli()
}

// Fake is a settable clock for tests.
type Fake struct {
	mu  sync.Mutex
	now int64
}

// NewFake creates a fake clock starting at the given Unix ms timestamp.
func NewFake(now int64) *Fake {
	return &Fake{now: now}
}

// NowMilli returns the fake current time.
func (f *Fake) NowMilli() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now += d.Milliseconds()
}

// Set moves the fake clock to an absolute Unix ms timestamp.
func (f *Fake) Set(now int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Package clockx provides a small clock seam so that time-dependent code
// (lockouts, session expiry, sweeps) can be tested deterministically.
package clockx

import (
	"sync"
	"time"
)

// Now is the clock function type injected into services.
type Now func() time.Time

// System returns the real wall clock.
func System() Now {
	return time.Now
}

// Fake is an adjustable clock for tests.
type Fake struct {
	mu  sync.Mutex
	cur time.Time
}

// NewFake returns a Fake clock frozen at start.
func NewFake(start time.Time) *Fake {
	return &Fake{cur: start}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = f.cur.Add(d)
}

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = t
}

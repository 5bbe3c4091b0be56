// Package clock abstracts the current time so expiry and TOTP windows can be
// tested deterministically.
package clock

import (
	"sync"
	"time"
)

// Clocker returns the current time
type Clocker interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// New returns the production clock
func New() System {
	return System{}
}

func (System) Now() time.Time {
	return time.Now()
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake clock pinned at t
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

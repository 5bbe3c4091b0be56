package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads failed authentication steps to a floor plus random jitter so
// an unknown identifier, a wrong password and a wrong code take similar time.
type FailureDelay struct {
	base   time.Duration
	jitter time.Duration
}

// NewFailureDelay creates a delay of base plus up to jitter
func NewFailureDelay(base, jitter time.Duration) *FailureDelay {
	return &FailureDelay{base: base, jitter: jitter}
}

// Wait sleeps until at least base+jitter has elapsed since start.
// A nil FailureDelay does nothing.
func (d *FailureDelay) Wait(ctx context.Context, start time.Time) {
	if d == nil {
		return
	}

	target := d.base + randomDuration(d.jitter)
	remaining := target - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// randomDuration returns a uniform duration in [0, max) from crypto/rand
func randomDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

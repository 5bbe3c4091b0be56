// Package pending holds short-lived authentication state: unverified enrollment
// secrets and login challenges. Every entry has an expiry that is checked when
// it is read, so correctness never depends on a sweep having run.
package pending

import (
	"context"
	"time"
)

// Entry is a stored value with its expiry and failed-attempt count
type Entry[T any] struct {
	Value     T
	ExpiresAt time.Time
	Attempts  int
}

// Store is an expiring key/value store.
//
// Get returns models.ErrNotFound for unknown keys and models.ErrExpired for keys
// read at or after their expiry. Put replaces any existing entry and resets its
// attempt count. PutIfAbsent only stores when no live entry exists and reports
// whether it did. IncrementAttempts is atomic and returns the new count, so a
// caller can reserve an attempt before doing the work the attempt pays for.
type Store[T any] interface {
	Put(ctx context.Context, key string, value T, expiresAt time.Time) error
	PutIfAbsent(ctx context.Context, key string, value T, expiresAt time.Time) (bool, error)
	Get(ctx context.Context, key string) (*Entry[T], error)
	Delete(ctx context.Context, key string) error
	IncrementAttempts(ctx context.Context, key string) (int, error)
}

// Sweeper is implemented by stores that need expired entries removed in bulk
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/pkg/clock"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entries as JSON envelopes. Redis expires keys a grace period
// after the logical expiry so that late reads still report ErrExpired.
type RedisStore[T any] struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
	clock  clock.Clocker
}

type envelope[T any] struct {
	Value     T         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisStore creates a store whose keys live under prefix
func NewRedisStore[T any](client redis.UniversalClient, prefix string, grace time.Duration, clk clock.Clocker) *RedisStore[T] {
	return &RedisStore[T]{
		client: client,
		prefix: prefix,
		grace:  grace,
		clock:  clk,
	}
}

func (s *RedisStore[T]) key(k string) string         { return s.prefix + k }
func (s *RedisStore[T]) attemptsKey(k string) string { return s.prefix + k + ":attempts" }

func (s *RedisStore[T]) Put(ctx context.Context, key string, value T, expiresAt time.Time) error {
	data, err := json.Marshal(envelope[T]{Value: value, ExpiresAt: expiresAt})
	if err != nil {
		return fmt.Errorf("failed to encode pending entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(key), data, s.ttl(expiresAt))
		pipe.Del(ctx, s.attemptsKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store pending entry: %w", err)
	}
	return nil
}

// PutIfAbsent uses SET NX. The attempts key never outlives its entry, so a new
// entry starts from zero without clearing it.
func (s *RedisStore[T]) PutIfAbsent(ctx context.Context, key string, value T, expiresAt time.Time) (bool, error) {
	data, err := json.Marshal(envelope[T]{Value: value, ExpiresAt: expiresAt})
	if err != nil {
		return false, fmt.Errorf("failed to encode pending entry: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(key), data, s.ttl(expiresAt)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store pending entry: %w", err)
	}
	return ok, nil
}

func (s *RedisStore[T]) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.clock.Now()) + s.grace
	if ttl <= 0 {
		return s.grace
	}
	return ttl
}

func (s *RedisStore[T]) Get(ctx context.Context, key string) (*Entry[T], error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending entry: %w", err)
	}

	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode pending entry: %w", err)
	}

	if !s.clock.Now().Before(env.ExpiresAt) {
		_ = s.Delete(ctx, key)
		return nil, models.ErrExpired
	}

	attempts, err := s.client.Get(ctx, s.attemptsKey(key)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read attempt count: %w", err)
	}

	return &Entry[T]{Value: env.Value, ExpiresAt: env.ExpiresAt, Attempts: attempts}, nil
}

func (s *RedisStore[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key), s.attemptsKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete pending entry: %w", err)
	}
	return nil
}

func (s *RedisStore[T]) IncrementAttempts(ctx context.Context, key string) (int, error) {
	ttl, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending ttl: %w", err)
	}
	if ttl <= 0 {
		return 0, models.ErrNotFound
	}

	var incr *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.attemptsKey(key))
		pipe.PExpire(ctx, s.attemptsKey(key), ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempts: %w", err)
	}

	return int(incr.Val()), nil
}

var _ Store[string] = (*RedisStore[string])(nil)

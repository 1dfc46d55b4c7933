// Package challenge is a short-TTL, single-use key-value store backed by
// Redis. Ceremony challenges (WebAuthn) and one-shot guards (magic-link
// jti) live here; Pull is an atomic read-and-delete, so concurrent
// requests racing for the same challenge produce at most one winner.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idch"

var (
	// ErrNotFound covers both "never existed" and "expired"; callers treat
	// either as "start over".
	ErrNotFound = errors.New("challenge not found")
	// ErrBackend signals Redis unavailability, not a negative lookup.
	ErrBackend = errors.New("challenge backend unavailable")
)

type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(scope, id string) string {
	return keyPrefix + ":" + scope + ":" + id
}

func (s *Store) Save(ctx context.Context, scope, id string, payload []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(scope, id), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// Pull returns the payload and deletes it in one round trip. A second
// Pull for the same key, or a Pull after the TTL elapsed, yields
// ErrNotFound.
func (s *Store) Pull(ctx context.Context, scope, id string) ([]byte, error) {
	data, err := s.redis.GetDel(ctx, s.key(scope, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return data, nil
}

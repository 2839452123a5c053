// Package idempotency guards handlers against processing the same delivery twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/groupbuy-backend/pkg/redis"
)

// Guard claims delivery keys per consumer using Redis SETNX with a TTL.
// Keys follow the `gb:idempotency:<consumer>:<key>` pattern.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a guard whose claims expire after ttl.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim marks key as in-flight for consumer. It returns false when a previous
// delivery already claimed it.
func (g *Guard) Claim(ctx context.Context, consumer, key string) (bool, error) {
	k, err := g.key(consumer, key)
	if err != nil {
		return false, err
	}
	claimed, err := g.store.SetNX(ctx, k, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", k, err)
	}
	return claimed, nil
}

// Release drops a claim so the delivery can be retried after a failure.
func (g *Guard) Release(ctx context.Context, consumer, key string) error {
	k, err := g.key(consumer, key)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, k)
}

func (g *Guard) key(consumer, key string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if key == "" {
		return "", errors.New("idempotency key is required")
	}
	return g.store.IdempotencyKey(consumer, key), nil
}

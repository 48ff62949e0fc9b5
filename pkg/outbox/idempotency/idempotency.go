package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Guard records which envelope event ids a named worker has already handled.
// Keys follow `sf:idempotency:evt:processed:<worker>:<event_id>`.
type Guard struct {
	store  redis.IdempotencyStore
	worker string
	ttl    time.Duration
}

func NewGuard(store redis.IdempotencyStore, worker string, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if worker == "" {
		return nil, errors.New("worker name is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, worker: worker, ttl: ttl}, nil
}

// Claim marks eventID as handled. It returns false when another attempt already claimed it.
func (g *Guard) Claim(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops a claim so the event can be handled again.
func (g *Guard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("evt:processed:%s", g.worker), eventID), nil
}

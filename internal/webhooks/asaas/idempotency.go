package asaaswebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/placaexpress/vehicle-report-backend/pkg/redis"
)

var errNoEventID = errors.New("webhook event id is empty")

// IdempotencyGuard remembers delivered webhook ids for a TTL. The stored
// value is the time the id was first seen.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, fmt.Errorf("negative idempotency ttl %s", ttl)
	case scope == "":
		return nil, errors.New("idempotency scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope, now: time.Now}, nil
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errNoEventID
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}

// CheckAndMark reports true when the id was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	fresh, err := g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook %s: %w", eventID, err)
	}
	return !fresh, nil
}

// Release forgets an id so the next delivery is processed.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

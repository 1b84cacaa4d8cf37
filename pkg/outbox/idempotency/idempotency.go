// Package idempotency lets Pub/Sub consumers process each event id at most
// once per consumer, across redeliveries and replicas.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/placaexpress/vehicle-report-backend/pkg/redis"
)

// Manager marks event ids as processed in Redis, one namespace per consumer:
// placa:idempotency:evt:processed:<consumer>:<event_id>. Ids are opaque, so
// envelope UUIDs and gateway ids share the guard.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, fmt.Errorf("negative idempotency ttl %s", ttl)
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports true when the id was already marked, and
// marks it otherwise.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s for %s: %w", eventID, consumer, err)
	}
	return !fresh, nil
}

// Release removes a mark so the next redelivery is handled again.
func (m *Manager) Release(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Once runs fn unless eventID was already handled by consumer. A failing fn
// releases the mark so a redelivery retries it. ran is false for duplicates.
func (m *Manager) Once(ctx context.Context, consumer, eventID string, fn func(context.Context) error) (ran bool, err error) {
	seen, err := m.CheckAndMarkProcessed(ctx, consumer, eventID)
	if err != nil || seen {
		return false, err
	}
	if err := fn(ctx); err != nil {
		if rerr := m.Release(context.WithoutCancel(ctx), consumer, eventID); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("release mark: %w", rerr))
		}
		return true, err
	}
	return true, nil
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == "":
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}

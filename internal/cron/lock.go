package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 15 * time.Minute

// Locker grants exclusive runs of a named job across cron instances.
type Locker interface {
	Acquire(ctx context.Context, job string) (owner string, ok bool, err error)
	Release(ctx context.Context, job, owner string) error
}

// redisStore defines the operations used by RedisLocker.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker implements Locker using Redis SETNX + TTL, one key per job.
type RedisLocker struct {
	client redisStore
	ttl    time.Duration
}

func NewRedisLocker(client redisStore, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, job string) (string, bool, error) {
	if job == "" {
		return "", false, errors.New("job name is required")
	}
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.client.LockKey("cron", job), owner, l.ttl)
	if err != nil {
		return "", false, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return owner, true, nil
}

// Release frees the lock only if owner still holds it.
func (l *RedisLocker) Release(ctx context.Context, job, owner string) error {
	if owner == "" {
		return nil
	}
	if _, err := l.client.DelIfValue(ctx, l.client.LockKey("cron", job), owner); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Package redistest provides an in-memory stand-in with the method set of
// redis.Client for service tests.
package redistest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type entry struct {
	value   string
	expires time.Time
}

// Store is safe for concurrent use. TTLs are honored against Now.
type Store struct {
	mu     sync.Mutex
	data   map[string]entry
	Now    func() time.Time
	GetErr error
	SetErr error
}

func New() *Store {
	return &Store{data: map[string]entry{}, Now: time.Now}
}

func (s *Store) alive(key string) (entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !s.Now().Before(e.expires) {
		delete(s.data, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.Now().Add(ttl)
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return "", s.GetErr
	}
	e, ok := s.alive(key)
	if !ok {
		return "", goredis.Nil
	}
	return e.value, nil
}

func (s *Store) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	s.data[key] = entry{value: fmt.Sprint(value), expires: s.expiry(ttl)}
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return false, s.SetErr
	}
	if _, ok := s.alive(key); ok {
		return false, nil
	}
	s.data[key] = entry{value: fmt.Sprint(value), expires: s.expiry(ttl)}
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

// DelIfValue deletes key only while it holds value.
func (s *Store) DelIfValue(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.alive(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(s.data, key)
	return true, nil
}

func (s *Store) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.RateLimitKey(scope)
	e, ok := s.alive(key)
	var count int64
	if ok {
		_, _ = fmt.Sscan(e.value, &count)
	} else {
		e.expires = s.expiry(window)
	}
	count++
	e.value = fmt.Sprint(count)
	s.data[key] = e
	return count <= limit, count, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Has reports whether key is present and unexpired.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.alive(key)
	return ok
}

func (s *Store) IdempotencyKey(scope, id string) string { return join("idempotency", scope, id) }
func (s *Store) RateLimitKey(scope string) string       { return join("rate_limit", scope) }
func (s *Store) LockKey(scope, id string) string        { return join("lock", scope, id) }
func (s *Store) PlateKey(plate string) string           { return join("plate", plate) }

func join(parts ...string) string {
	return "placa:" + strings.Join(parts, ":")
}

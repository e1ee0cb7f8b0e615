// Package facesession stores the short-lived, single-use assertion that a
// biometric check succeeded for a session. The admission engine consumes
// the assertion the moment it reads it.
package facesession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store issues and consumes assertions. Consume must remove the assertion
// as part of the read so it cannot be replayed, even by concurrent
// submissions from the same session.
type Store interface {
	Issue(ctx context.Context, sessionID string, issuedAt time.Time) error
	Consume(ctx context.Context, sessionID string) (time.Time, bool, error)
}

// RedisStore keeps assertions in Redis. GETDEL makes the consume atomic;
// the key TTL is only a backstop, the engine enforces the real deadline
// against the stored issuance time.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis builds a store whose keys expire after ttl.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(sessionID string) string {
	return "face:verified:" + sessionID
}

// Issue records a fresh assertion, replacing any previous one.
func (s *RedisStore) Issue(ctx context.Context, sessionID string, issuedAt time.Time) error {
	err := s.client.Set(ctx, redisKey(sessionID), issuedAt.Format(time.RFC3339Nano), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("issue face assertion: %w", err)
	}
	return nil
}

// Consume reads and deletes the session's assertion in one round trip.
func (s *RedisStore) Consume(ctx context.Context, sessionID string) (time.Time, bool, error) {
	val, err := s.client.GetDel(ctx, redisKey(sessionID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("consume face assertion: %w", err)
	}
	issuedAt, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		// Unreadable state counts as no assertion; it is already gone.
		return time.Time{}, false, nil
	}
	return issuedAt, true, nil
}

// MemoryStore is the in-process backend for dev and tests.
type MemoryStore struct {
	mu       sync.Mutex
	issuedAt map[string]time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{issuedAt: make(map[string]time.Time)}
}

// Issue records a fresh assertion, replacing any previous one.
func (s *MemoryStore) Issue(_ context.Context, sessionID string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuedAt[sessionID] = issuedAt
	return nil
}

// Consume reads and deletes under one lock.
func (s *MemoryStore) Consume(_ context.Context, sessionID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.issuedAt[sessionID]
	if ok {
		delete(s.issuedAt, sessionID)
	}
	return at, ok, nil
}

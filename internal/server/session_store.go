package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session"

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps active session ids in Redis. A session credential is
// only valid while its id is present here, so logout is a server-side delete
// rather than a client promise.
type SessionStore struct {
	redis redis.UniversalClient
}

// NewSessionStore creates a session store
func NewSessionStore(redisClient redis.UniversalClient) *SessionStore {
	return &SessionStore{redis: redisClient}
}

func (s *SessionStore) key(sessionID string) string {
	return sessionKeyPrefix + ":" + sessionID
}

// Put registers a session id for userID with the given lifetime.
func (s *SessionStore) Put(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(sessionID), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get returns the user behind an active session id.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (string, error) {
	userID, err := s.redis.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return userID, nil
}

// Delete invalidates a session id. Deleting an absent session is not an
// error; logout stays idempotent.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const resetKeyPrefix = "reset"

// ErrResetTokenInvalid covers both a token that never existed and one that
// was already consumed or expired. Callers cannot tell these apart, which is
// the point: a used token must never authorize a second reset.
var ErrResetTokenInvalid = errors.New("reset token invalid or expired")

// ResetStore keeps single-use password reset tokens in Redis with a TTL.
type ResetStore struct {
	redis redis.UniversalClient
}

// NewResetStore creates a reset token store
func NewResetStore(redisClient redis.UniversalClient) *ResetStore {
	return &ResetStore{redis: redisClient}
}

func (s *ResetStore) key(token string) string {
	return resetKeyPrefix + ":" + token
}

// Issue creates an unguessable token mapping to userID, valid for ttl.
func (s *ResetStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token := uuid.New().String() + uuid.New().String()
	if err := s.redis.Set(ctx, s.key(token), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}
	return token, nil
}

// Consume atomically fetches and deletes the token, returning the user it was
// issued for. GETDEL makes single use a Redis guarantee: a second consume of
// the same token sees nothing.
func (s *ResetStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.redis.GetDel(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetTokenInvalid
		}
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}
	return userID, nil
}

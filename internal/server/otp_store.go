package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp"

var (
	ErrOTPNotFound = errors.New("verification code not found or expired")
	ErrOTPMismatch = errors.New("verification code does not match")
)

// OTPStore keeps one-time verification codes in Redis with a TTL. Only a
// digest of the code is stored; expiry is Redis's, not ours.
type OTPStore struct {
	redis redis.UniversalClient
}

// NewOTPStore creates an OTP store
func NewOTPStore(redisClient redis.UniversalClient) *OTPStore {
	return &OTPStore{redis: redisClient}
}

func (s *OTPStore) key(email string) string {
	return otpKeyPrefix + ":" + normalizeEmail(email)
}

// Issue stores a digest of code for email. A re-issue overwrites the previous
// challenge and restarts the TTL.
func (s *OTPStore) Issue(ctx context.Context, email, code string, ttl time.Duration) error {
	digest := sha256.Sum256([]byte(code))
	if err := s.redis.Set(ctx, s.key(email), digest[:], ttl).Err(); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}
	return nil
}

// Consume deletes the challenge if code matches. A mismatch leaves the
// challenge in place so the user can retry until it expires.
func (s *OTPStore) Consume(ctx context.Context, email, code string) error {
	stored, err := s.redis.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrOTPNotFound
		}
		return fmt.Errorf("failed to load verification code: %w", err)
	}

	digest := sha256.Sum256([]byte(code))
	if subtle.ConstantTimeCompare(stored, digest[:]) != 1 {
		return ErrOTPMismatch
	}

	if err := s.redis.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("failed to consume verification code: %w", err)
	}
	return nil
}

// GenerateOTP returns a random 6-digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

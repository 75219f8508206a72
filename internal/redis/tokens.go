package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrTokenNotFound = errors.New("token not found or expired")

// TokenStore keeps single-use tokens (password reset and email verification links) that map to a user id.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewTokenStore(client redis.UniversalClient, prefix string, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, prefix: prefix, ttl: ttl}
}

// Issue stores a fresh token for userID and returns it.
func (s *TokenStore) Issue(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.prefix+token, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// Consume returns the user id behind token and deletes it.
func (s *TokenStore) Consume(ctx context.Context, token string) (int64, error) {
	val, err := s.client.GetDel(ctx, s.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("consume token: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt token payload %q: %w", val, err)
	}
	return userID, nil
}

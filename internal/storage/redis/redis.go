// Package redis implements the one-time token store: short-lived
// single-use keys of the form <purpose>:<token> mapping to a user id.
// Expiry is native TTL; consumption is a single atomic GETDEL, so a
// raw token authorizes at most one action even under concurrent
// redemption attempts.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type TokenStore struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*TokenStore, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &TokenStore{client: client}, nil
}

// NewWithClient wraps an existing client; used by tests.
func NewWithClient(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Set stores key -> userID with the given TTL.
func (s *TokenStore) Set(ctx context.Context, key, userID string, ttl time.Duration) error {
	const op = "storage.redis.Set"

	if err := s.client.Set(ctx, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Take consumes key in one atomic step and returns the stored user id.
// found is false when the key is absent or already expired.
func (s *TokenStore) Take(ctx context.Context, key string) (userID string, found bool, err error) {
	const op = "storage.redis.Take"

	val, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	return val, true, nil
}

// Get reads key without consuming it.
func (s *TokenStore) Get(ctx context.Context, key string) (userID string, found bool, err error) {
	const op = "storage.redis.Get"

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	return val, true, nil
}

func (s *TokenStore) Delete(ctx context.Context, key string) error {
	const op = "storage.redis.Delete"

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *TokenStore) Close() {
	s.client.Close()
}

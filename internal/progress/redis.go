package progress

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/n1dhiparate/admit-assist/internal/onboarding"
)

// RedisKeyPrefix namespaces status keys: admitassist:onboarding:<student>.
const RedisKeyPrefix = "admitassist:onboarding:"

// RedisStore persists one JSON string per student in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore parses a redis:// URL, connects and pings.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Load returns the stored status or [onboarding.ErrNotFound].
func (s *RedisStore) Load(ctx context.Context, studentID string) (onboarding.Status, error) {
	raw, err := s.client.Get(ctx, RedisKeyPrefix+studentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, onboarding.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", studentID, err)
	}
	return onboarding.UnmarshalStatus(raw)
}

// Save replaces the stored status. Keys do not expire.
func (s *RedisStore) Save(ctx context.Context, studentID string, status onboarding.Status) error {
	data, err := onboarding.MarshalStatus(status)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, RedisKeyPrefix+studentID, data, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", studentID, err)
	}
	return nil
}

// List scans the key prefix and returns every stored status.
func (s *RedisStore) List(ctx context.Context) (map[string]onboarding.Status, error) {
	result := make(map[string]onboarding.Status)

	iter := s.client.Scan(ctx, 0, RedisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", key, err)
		}
		status, err := onboarding.UnmarshalStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		result[strings.TrimPrefix(key, RedisKeyPrefix)] = status
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return result, nil
}

package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeyPrefix = "idem"
	pendingMarker   = "pending"
)

// RedisDeduper stores idempotency keys in Redis so all instances agree on
// which requests already ran. The first request stores a pending marker and
// replaces it with its response once done.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return userID + ":" + dedupeKeyPrefix + ":" + key
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), pendingMarker, r.ttl).Result()
}

// Remove deletes a previously recorded key. It is used when downstream
// processing fails so the caller may retry the request.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// Complete replaces the pending marker with the response, keeping the TTL.
func (r *RedisDeduper) Complete(ctx context.Context, userID, key string, response []byte) error {
	return r.client.Set(ctx, r.key(userID, key), response, redis.KeepTTL).Err()
}

// Response returns the stored response of a completed request. A missing key
// is reported as not ok so the caller can retry the request.
func (r *RedisDeduper) Response(ctx context.Context, userID, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(data) == pendingMarker {
		return nil, false, nil
	}
	return data, true, nil
}

/*
redis.go - Redis-backed entry storage

PURPOSE:
  Shares cache entries across instances. Keys carry the full external
  representation under a "revenue:" prefix, so every stored key names its
  tenant:

    revenue:tenant:{t}:property:{p}:period:{type}:{anchor}

  Redis expiry mirrors the entry TTL as the secondary safety net;
  Invalidate scans and deletes the tenant/property prefix.
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/revenue-engine/revenue"
)

const redisKeyPrefix = "revenue:"

// RedisStore implements Store on a redis client.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds connection settings for the cache backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects and verifies the backend with a ping so a dead
// redis fails at startup, not on the first request.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client (tests, shared clients).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key revenue.CacheKey) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key revenue.CacheKey, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key.String(), raw, e.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key revenue.CacheKey) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Invalidate scans the tenant/property prefix and deletes every period
// entry. The match pattern includes the tenant segment, so another
// tenant's entries for the same property ID are never touched.
func (r *RedisStore) Invalidate(ctx context.Context, tenant revenue.TenantID, property revenue.PropertyID) error {
	pattern := fmt.Sprintf("%stenant:%s:property:%s:period:*", redisKeyPrefix, tenant, property)
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// -----------------------------------------------------------------------------
// Redis Backing Store
// -----------------------------------------------------------------------------

// RedisConfig carries the connection settings for a Redis-backed history
// store. Supply either a pre-configured Client or an Addr; a config with
// neither is rejected at construction.
type RedisConfig struct {
	// Client, when set, is used directly and the remaining fields are
	// ignored.
	Client *redis.Client

	// Addr is the host:port of the Redis server.
	Addr string

	// Password is optional.
	Password string

	// DB selects the logical database. Zero is the Redis default.
	DB int

	// DialTimeout bounds connection establishment. Zero uses the client
	// library default.
	DialTimeout time.Duration
}

// Compile-time interface implementation check.
var _ ListStore = (*RedisListStore)(nil)

// RedisListStore implements ListStore on a Redis list per session key.
type RedisListStore struct {
	client *redis.Client
}

// NewRedisListStore builds the list store from config, preferring a
// pre-configured client when one is supplied.
func NewRedisListStore(cfg RedisConfig) (*RedisListStore, error) {
	if cfg.Client != nil {
		return &RedisListStore{client: cfg.Client}, nil
	}
	if cfg.Addr == "" {
		return nil, ErrMissingConfig
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	slog.Info("Connected history store to Redis", "addr", cfg.Addr, "db", cfg.DB)
	return &RedisListStore{client: client}, nil
}

// NewRedisHistory is the convenience constructor most callers want: a
// MessageHistory backed directly by Redis.
func NewRedisHistory(cfg RedisConfig) (*Store, error) {
	listStore, err := NewRedisListStore(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(listStore)
}

// PushFront prepends via LPUSH, so index 0 is always the newest entry.
func (r *RedisListStore) PushFront(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return r.client.LPush(ctx, key, args...).Err()
}

// ReadRange maps directly onto LRANGE, inheriting its inclusive-bounds and
// clamping semantics.
func (r *RedisListStore) ReadRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.client.LRange(ctx, key, start, stop).Result()
}

// Expire (re)sets the key TTL via EXPIRE.
func (r *RedisListStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// Delete removes the key via DEL.
func (r *RedisListStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the underlying connection pool.
func (r *RedisListStore) Close() error {
	return r.client.Close()
}

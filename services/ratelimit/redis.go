// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var limiterTracer = otel.Tracer("ragchat.ratelimit")

const keyPrefix = "ragchat:ratelimit:"

// RedisConfig configures the distributed fixed-window limiter.
type RedisConfig struct {
	// Client, when set, is used directly and the connection fields are
	// ignored.
	Client *redis.Client

	// Addr is the host:port of the Redis server.
	Addr     string
	Password string
	DB       int

	// Requests is the per-window budget.
	Requests int64

	// Window is the fixed window length.
	Window time.Duration
}

func (c *RedisConfig) applyDefaults() {
	if c.Requests <= 0 {
		c.Requests = 10
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
}

// Validate checks the config is usable before any network work.
func (c *RedisConfig) Validate() error {
	if c.Client == nil && c.Addr == "" {
		return fmt.Errorf("%w: no client and no addr", ErrLimiterUnavailable)
	}
	return nil
}

// Compile-time interface implementation check.
var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter is a fixed-window counter shared across processes. Counters
// live under a prefixed key per (limit key, window index) pair and expire on
// their own, so an idle key costs nothing.
//
// Fixed windows admit up to 2x the budget across a window boundary in the
// worst case. That is acceptable for chat admission; it is not a billing
// meter.
type RedisLimiter struct {
	client   *redis.Client
	requests int64
	window   time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewRedisLimiter builds the limiter, connecting if no client was supplied.
func NewRedisLimiter(cfg RedisConfig) (*RedisLimiter, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	return &RedisLimiter{
		client:   client,
		requests: cfg.Requests,
		window:   cfg.Window,
		now:      time.Now,
	}, nil
}

// Limit increments the counter for the current window and compares it to the
// budget. INCR and EXPIRE travel in one pipeline round trip; the expiry is
// refreshed on every hit, which only ever extends a window's counter to at
// most one full window past its last hit.
func (l *RedisLimiter) Limit(ctx context.Context, key string) (*Decision, error) {
	ctx, span := limiterTracer.Start(ctx, "ratelimit.Limit")
	defer span.End()
	span.SetAttributes(attribute.String("ratelimit.key", key))

	now := l.now()
	windowIndex := now.UnixNano() / int64(l.window)
	windowEnd := time.Unix(0, (windowIndex+1)*int64(l.window))
	counterKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, windowIndex)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		return nil, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	count := incr.Val()
	remaining := l.requests - count
	if remaining < 0 {
		remaining = 0
	}
	decision := &Decision{
		Allowed:   count <= l.requests,
		Limit:     l.requests,
		Remaining: remaining,
		Reset:     windowEnd,
	}
	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", decision.Allowed),
		attribute.Int64("ratelimit.remaining", decision.Remaining),
	)
	return decision, nil
}

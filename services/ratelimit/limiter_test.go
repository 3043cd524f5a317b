// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalLimiter_AllowsUpToBudget verifies a fresh key can spend its whole
// burst budget and is then denied.
func TestLocalLimiter_AllowsUpToBudget(t *testing.T) {
	ctx := context.Background()
	limiter := NewLocalLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		d, err := limiter.Limit(ctx, "session-a")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
	}

	d, err := limiter.Limit(ctx, "session-a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Equal(t, int64(3), d.Limit)
}

// TestLocalLimiter_KeysAreIndependent verifies exhausting one key leaves
// other keys untouched.
func TestLocalLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := NewLocalLimiter(1, time.Hour)

	d, err := limiter.Limit(ctx, "session-a")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = limiter.Limit(ctx, "session-a")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = limiter.Limit(ctx, "session-b")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

// TestLocalLimiter_DefaultsOnBadConfig verifies zero or negative settings
// fall back to usable defaults instead of a limiter that denies everything.
func TestLocalLimiter_DefaultsOnBadConfig(t *testing.T) {
	limiter := NewLocalLimiter(0, 0)
	d, err := limiter.Limit(context.Background(), "session-a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(10), d.Limit)
}

// TestRedisConfig verifies defaulting and the no-connection rejection.
func TestRedisConfig(t *testing.T) {
	t.Run("missing client and addr is rejected", func(t *testing.T) {
		_, err := NewRedisLimiter(RedisConfig{})
		require.ErrorIs(t, err, ErrLimiterUnavailable)
	})

	t.Run("defaults fill requests and window", func(t *testing.T) {
		cfg := RedisConfig{Addr: "localhost:6379"}
		cfg.applyDefaults()
		assert.Equal(t, int64(10), cfg.Requests)
		assert.Equal(t, time.Minute, cfg.Window)
	})
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Compile-time interface implementation check.
var _ Limiter = (*LocalLimiter)(nil)

// LocalLimiter is an in-process token bucket per key, for single-instance
// deployments and tests where a shared Redis counter is overkill. Budgets do
// not survive a restart and are not shared across replicas.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	requests int
	window   time.Duration
}

// NewLocalLimiter allows requests per window for each distinct key.
func NewLocalLimiter(requests int, window time.Duration) *LocalLimiter {
	if requests <= 0 {
		requests = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		requests: requests,
		window:   window,
	}
}

func (l *LocalLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.window/time.Duration(l.requests)), l.requests)
		l.limiters[key] = lim
	}
	return lim
}

// Limit consumes one token without blocking. Remaining is the floor of the
// bucket's current token count after the take.
func (l *LocalLimiter) Limit(_ context.Context, key string) (*Decision, error) {
	lim := l.limiterFor(key)
	allowed := lim.Allow()

	remaining := int64(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return &Decision{
		Allowed:   allowed,
		Limit:     int64(l.requests),
		Remaining: remaining,
		Reset:     time.Now().Add(l.window),
	}, nil
}

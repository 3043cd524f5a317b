// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit gates chat sessions before any model or store work is
// spent on them. A denial is cheap and terminal: the caller never retries
// internally, it reports the denial upward with enough detail to set a
// Retry-After.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrLimiterUnavailable wraps backing-store failures of the distributed
// limiter. Callers decide whether to fail open or closed.
var ErrLimiterUnavailable = errors.New("rate limiter backend is not available")

// Decision is the outcome of one limit check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Limit is the configured ceiling for the window.
	Limit int64

	// Remaining is the number of requests left in the current window.
	// Zero when denied.
	Remaining int64

	// Reset is when the current window ends and the budget refills.
	Reset time.Time
}

// Limiter is the admission contract the orchestrator checks before doing any
// work for a session.
//
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Limit consumes one unit of budget for key and reports the decision.
	// A denied decision is not an error; errors mean the limiter itself
	// failed.
	Limit(ctx context.Context, key string) (*Decision, error)
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Pipeline Errors
// =============================================================================

// ConfigurationError marks a pipeline assembled without a required
// collaborator. It always indicates a wiring bug, never a runtime condition.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("chat pipeline configuration is incomplete: missing %s", e.Missing)
}

// IsConfigurationError reports whether err is a pipeline wiring failure.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// RateLimitError is the terminal outcome of a denied admission check. The
// fields carry what an HTTP surface needs for a 429 with Retry-After.
type RateLimitError struct {
	Limit     int64
	Remaining int64
	Reset     time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d remaining of %d, resets at %s",
		e.Remaining, e.Limit, e.Reset.Format(time.RFC3339))
}

// IsRateLimitError reports whether err is a rate-limit denial.
func IsRateLimitError(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// GenerationError wraps a model backend failure. The Partial field holds
// whatever was streamed before the failure; buffered calls leave it empty.
type GenerationError struct {
	Err     error
	Partial string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsGenerationError reports whether err is a model backend failure.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm holds the model-backend clients. Every backend exposes the same
// two capabilities: buffered generation and token streaming via callback. The
// orchestrator picks one at request time based on the streaming flag; the
// backends never see chat semantics, only a fully rendered prompt.
package llm

import (
	"context"
	"errors"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrMissingConfig is returned when a client is constructed without the
	// settings it needs to reach its backend.
	ErrMissingConfig = errors.New("llm client requires a connection config")

	// ErrEmptyCompletion is returned when the backend answered successfully
	// but produced no choices.
	ErrEmptyCompletion = errors.New("llm backend returned no completion")
)

// -----------------------------------------------------------------------------
// Generation
// -----------------------------------------------------------------------------

// GenerationParams are the per-call sampling knobs. Nil fields fall back to
// the backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEventType discriminates streaming callback events.
type StreamEventType string

const (
	// StreamEventToken carries one incremental content fragment.
	StreamEventToken StreamEventType = "token"

	// StreamEventDone marks a completed stream. No further events follow.
	StreamEventDone StreamEventType = "done"

	// StreamEventError marks a failed stream. No further events follow.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one unit of streamed output.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StreamCallback receives stream events in order, on a single goroutine.
// Returning an error aborts the stream.
type StreamCallback func(event StreamEvent) error

// LLMClient is the backend contract.
//
// Implementations must be safe for concurrent use.
type LLMClient interface {
	// Generate produces the full completion for the prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// GenerateStream produces the completion incrementally, invoking cb for
	// every token and a terminal done or error event. The returned string is
	// the full accumulated completion; on error it holds whatever was
	// streamed before the failure.
	GenerateStream(ctx context.Context, prompt string, params GenerationParams, cb StreamCallback) (string, error)
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"time"
)

// =============================================================================
// Defaults
// =============================================================================

// Default values applied by ChatOptions.EnsureDefaults. The session and
// ratelimit identifiers are kept byte-identical to the original SDK so that
// deployments migrating existing Redis keys observe the same history.
const (
	// DefaultSessionID is used when the caller does not supply a session.
	DefaultSessionID = "upstash-rag-chat-session"

	// DefaultRatelimitSessionID buckets request throttling separately from
	// the chat session itself.
	DefaultRatelimitSessionID = "upstash-rag-chat-ratelimit-session"

	// DefaultHistoryLength is the number of prior messages included in the
	// prompt. Raising it enlarges the model's conversational memory at the
	// cost of context-window budget.
	DefaultHistoryLength = 5

	// DefaultHistoryTTL is one day. The backing store expires the whole
	// session this long after the last write.
	DefaultHistoryTTL = 86_400 * time.Second

	// DefaultSimilarityThreshold drops vector matches scored below it.
	DefaultSimilarityThreshold = 0.5

	// DefaultTopK is the number of vector matches requested per query.
	DefaultTopK = 5

	// DefaultMetadataKey is the metadata field that carries a record's text.
	DefaultMetadataKey = "text"
)

// =============================================================================
// ChatOptions
// =============================================================================

// ChatOptions is the per-call configuration for a chat pipeline run.
//
// All fields except Streaming are optional; EnsureDefaults fills the zero
// values with the documented defaults. Streaming must be chosen explicitly by
// the caller: interactive surfaces want tokens as they arrive, batch callers
// want the complete answer.
type ChatOptions struct {
	// Streaming selects incremental token delivery over a buffered answer.
	Streaming bool `json:"streaming"`

	// SessionID identifies the conversation whose history frames this call.
	SessionID string `json:"sessionId,omitempty"`

	// HistoryLength is the number of most-recent messages pulled into the
	// prompt.
	HistoryLength int `json:"historyLength,omitempty"`

	// HistoryTTL is applied to the session after the exchange is persisted.
	// Zero means "use the default"; the TTL set by the last write governs
	// the session's expiry.
	HistoryTTL time.Duration `json:"historyTTL,omitempty"`

	// SimilarityThreshold excludes weakly related vector matches from the
	// context window. Range [0, 1].
	SimilarityThreshold float64 `json:"similarityThreshold,omitempty"`

	// RatelimitSessionID keys the rate limiter. Distinct from SessionID so
	// that one caller can own many conversations under a single quota.
	RatelimitSessionID string `json:"ratelimitSessionId,omitempty"`

	// TopK is the number of vector matches requested before threshold
	// filtering.
	TopK int `json:"topK,omitempty"`

	// MetadataKey names the record metadata field holding chunk text.
	MetadataKey string `json:"metadataKey,omitempty"`

	// Namespace restricts retrieval to one logical partition of the vector
	// store. Empty string is the default partition.
	Namespace string `json:"namespace,omitempty"`

	// Metadata is attached to the persisted assistant message.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EnsureDefaults fills unset fields in place and returns the options for
// chaining.
func (o *ChatOptions) EnsureDefaults() *ChatOptions {
	if o.SessionID == "" {
		o.SessionID = DefaultSessionID
	}
	if o.HistoryLength <= 0 {
		o.HistoryLength = DefaultHistoryLength
	}
	if o.HistoryTTL <= 0 {
		o.HistoryTTL = DefaultHistoryTTL
	}
	if o.SimilarityThreshold == 0 {
		o.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if o.RatelimitSessionID == "" {
		o.RatelimitSessionID = DefaultRatelimitSessionID
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.MetadataKey == "" {
		o.MetadataKey = DefaultMetadataKey
	}
	return o
}

// Validate checks option ranges after defaults are applied.
func (o *ChatOptions) Validate() error {
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 1 {
		return errors.New("similarityThreshold must be in [0, 1]")
	}
	if o.TopK < 1 {
		return errors.New("topK must be at least 1")
	}
	if o.HistoryLength < 1 {
		return errors.New("historyLength must be at least 1")
	}
	return nil
}

// =============================================================================
// AddContextOptions
// =============================================================================

// AddContextOptions configures context ingestion.
type AddContextOptions struct {
	// MetadataKey names the metadata field that stores chunk text.
	MetadataKey string `json:"metadataKey,omitempty"`

	// Metadata is merged into every record produced by the payload.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Namespace selects the target partition. Empty string is the default
	// partition.
	Namespace string `json:"namespace,omitempty"`
}

// EnsureDefaults fills unset fields in place and returns the options.
func (o *AddContextOptions) EnsureDefaults() *AddContextOptions {
	if o.MetadataKey == "" {
		o.MetadataKey = DefaultMetadataKey
	}
	return o
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the request and response types for the chat endpoints.
// For message and option types shared with the pipeline, see message.go and
// options.go.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxQuestionBytes bounds a single question. Checked in bytes, not
	// runes, so oversized payloads are rejected before allocation grows.
	MaxQuestionBytes = 32 * 1024 // 32KB

	// MaxHistoryLength bounds the requested history window.
	MaxHistoryLength = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat request types.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxQuestionBytes on string fields.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// =============================================================================
// Chat Request / Response
// =============================================================================

// ChatRequest is the body of POST /v1/chat.
//
// # Fields
//
//   - Question: Required. The user's input, at most 32KB.
//   - Streaming: Required semantics, optional wire field; false means the
//     handler responds with a single JSON document, true switches the
//     response to an SSE token stream.
//   - SessionID, HistoryLength, HistoryTTLSeconds, SimilarityThreshold,
//     RatelimitSessionID, TopK, MetadataKey, Namespace, Metadata: optional
//     pipeline overrides, defaulted exactly like ChatOptions.
type ChatRequest struct {
	Question            string         `json:"question" validate:"required,maxbytes"`
	Streaming           bool           `json:"streaming"`
	SessionID           string         `json:"sessionId,omitempty"`
	HistoryLength       int            `json:"historyLength,omitempty" validate:"omitempty,min=1,max=100"`
	HistoryTTLSeconds   int64          `json:"historyTTL,omitempty" validate:"omitempty,min=1"`
	SimilarityThreshold float64        `json:"similarityThreshold,omitempty" validate:"omitempty,min=0,max=1"`
	RatelimitSessionID  string         `json:"ratelimitSessionId,omitempty"`
	TopK                int            `json:"topK,omitempty" validate:"omitempty,min=1,max=1000"`
	MetadataKey         string         `json:"metadataKey,omitempty"`
	Namespace           string         `json:"namespace,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// Validate runs struct-level validation and returns the first failure.
func (r *ChatRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question is required")
	}
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	return nil
}

// Options converts the wire request into pipeline options. Defaults are not
// applied here; the orchestrator owns that step.
func (r *ChatRequest) Options() ChatOptions {
	return ChatOptions{
		Streaming:           r.Streaming,
		SessionID:           r.SessionID,
		HistoryLength:       r.HistoryLength,
		HistoryTTL:          time.Duration(r.HistoryTTLSeconds) * time.Second,
		SimilarityThreshold: r.SimilarityThreshold,
		RatelimitSessionID:  r.RatelimitSessionID,
		TopK:                r.TopK,
		MetadataKey:         r.MetadataKey,
		Namespace:           r.Namespace,
		Metadata:            r.Metadata,
	}
}

// ChatResponse is the buffered (non-streaming) response body.
type ChatResponse struct {
	Answer    string `json:"answer"`
	SessionID string `json:"session_id"`
	Context   string `json:"context,omitempty"`
}

// =============================================================================
// Prepared Chat
// =============================================================================

// PreparedChat is the joined output of the retrieval phase: the caller's
// question plus the threshold-filtered context window, ready for prompt
// assembly.
type PreparedChat struct {
	Question string
	Context  string
	History  []Message
}

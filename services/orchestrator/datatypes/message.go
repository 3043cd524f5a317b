// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the shared data structures for the chat
// pipeline: messages, per-call chat options, and the HTTP request/response
// types used by the orchestrator handlers.
package datatypes

import (
	"fmt"
)

// =============================================================================
// Roles
// =============================================================================

// Role identifies the author of a chat message. Exactly two variants exist;
// anything else fails validation before it can reach a store.
type Role string

const (
	// RoleUser marks a message written by the caller.
	RoleUser Role = "user"

	// RoleAssistant marks a message produced by the language model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the two permitted variants.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// Message
// =============================================================================

// Message is a single entry in a session's conversation history.
//
// Messages are immutable once written. Within a session they are stored
// most-recent-first; read oldest-to-newest they form the logical FIFO
// conversation.
//
// # Fields
//
//   - Role: "user" or "assistant". No other values are permitted.
//   - Content: the message text.
//   - Metadata: optional free-form annotations. The orchestrator uses this to
//     record the model name on assistant messages.
//   - ID: optional caller-assigned identifier.
type Message struct {
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	ID       string         `json:"id,omitempty"`
}

// Validate checks the message invariants.
//
// A message must carry a recognized role and non-empty content. Metadata and
// ID are optional.
func (m *Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid message role %q: must be %q or %q", m.Role, RoleUser, RoleAssistant)
	}
	if m.Content == "" {
		return fmt.Errorf("message content is required")
	}
	return nil
}

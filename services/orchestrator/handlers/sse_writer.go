// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Stream Events
// =============================================================================

// StreamEvent is the wire shape of one SSE event. Every event carries a
// unique id and a millisecond timestamp so clients can deduplicate and order
// replayed streams.
type StreamEvent struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// =============================================================================
// SSE Writer
// =============================================================================

// SSEWriter writes Server-Sent Events in the wire format
// "event: type\ndata: json\n\n", flushing after every event.
//
// Implementations must be safe for concurrent use: token events and
// keepalives may come from different goroutines.
type SSEWriter interface {
	// WriteToken streams one content fragment.
	WriteToken(content string) error

	// WriteError reports a failure to the client. The message must already
	// be sanitized; no internal details cross this boundary.
	WriteError(errMsg string) error

	// WriteDone marks successful completion, carrying the session id for
	// conversation continuity. Nothing may be written after it.
	WriteDone(sessionID string) error

	// WriteKeepAlive sends an SSE comment to hold idle connections open
	// through load-balancer timeouts.
	WriteKeepAlive() error
}

type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// Compile-time interface check.
var _ SSEWriter = (*sseWriter)(nil)

// NewSSEWriter wraps w for SSE output. The caller must set the SSE headers
// via SetSSEHeaders before the first write.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) writeEvent(event StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.ID = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteToken(content string) error {
	return w.writeEvent(StreamEvent{Type: "token", Content: content})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.writeEvent(StreamEvent{Type: "error", Error: errMsg})
}

func (w *sseWriter) WriteDone(sessionID string) error {
	return w.writeEvent(StreamEvent{Type: "done", SessionID: sessionID})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response for SSE streaming. Must run before
// any body write; X-Accel-Buffering disables nginx buffering.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history implements the session-keyed chat history buffer.
//
// Messages are stored most-recent-first in a list-like backing store, so a
// windowed read is a cheap prefix read instead of a scan. The TTL is attached
// at write time: the last write governs the session's effective expiry, and a
// session with no TTL persists until explicitly cleared.
//
// Failures here are loud by design. A silently dropped write or an empty
// window returned from an unreachable store would corrupt conversational
// continuity, which is worse than failing the call.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var historyTracer = otel.Tracer("ragchat.history")

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrMissingConfig is returned when a history store is constructed
	// without a client or connection config.
	ErrMissingConfig = errors.New("history store requires either a config object or a pre-configured client")

	// ErrHistoryUnavailable wraps backing-store failures.
	ErrHistoryUnavailable = errors.New("history store is not available")
)

// -----------------------------------------------------------------------------
// Backing Store Contract
// -----------------------------------------------------------------------------

// ListStore is the narrow list contract the history buffer needs from its
// backing store: push-to-front, ranged read, expiry, and full delete. Redis
// satisfies it directly; tests use an in-memory fake.
type ListStore interface {
	// PushFront prepends values to the list at key, creating it if absent.
	PushFront(ctx context.Context, key string, values ...string) error

	// ReadRange returns the inclusive [start, stop] slice of the list in
	// storage (most-recent-first) order. Out-of-bounds indexes are clamped;
	// a missing key yields an empty slice.
	ReadRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Expire (re)sets the key's time-to-live.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes the key and all its entries.
	Delete(ctx context.Context, key string) error
}

// -----------------------------------------------------------------------------
// Inputs
// -----------------------------------------------------------------------------

// Amount selects a read window: either the most recent N messages or an
// explicit inclusive [Start, End] index range into the most-recent-first
// list. The zero Amount means "the default window".
type Amount struct {
	n       int
	start   int64
	end     int64
	isRange bool
}

// LastN selects the most recent n messages.
func LastN(n int) Amount {
	return Amount{n: n}
}

// IndexRange selects the inclusive [start, end] slice of the
// most-recent-first list. IndexRange(0, len-1) returns the whole history.
func IndexRange(start, end int64) Amount {
	return Amount{start: start, end: end, isRange: true}
}

// bounds resolves the amount to LRANGE-style inclusive indexes.
func (a Amount) bounds() (int64, int64) {
	if a.isRange {
		return a.start, a.end
	}
	n := a.n
	if n <= 0 {
		n = datatypes.DefaultHistoryLength
	}
	return 0, int64(n) - 1
}

// AddMessageInput carries one append.
type AddMessageInput struct {
	Message datatypes.Message

	// SessionID defaults to the shared default session.
	SessionID string

	// SessionTTL, when positive, (re)sets the session expiry after the
	// append. Zero leaves the current expiry untouched.
	SessionTTL time.Duration
}

// GetMessagesInput carries one windowed read.
type GetMessagesInput struct {
	SessionID string
	Amount    Amount
}

// -----------------------------------------------------------------------------
// MessageHistory
// -----------------------------------------------------------------------------

// MessageHistory is the session history contract used by the orchestrator.
type MessageHistory interface {
	AddMessage(ctx context.Context, input AddMessageInput) error
	GetMessages(ctx context.Context, input GetMessagesInput) ([]datatypes.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// Compile-time interface implementation check.
var _ MessageHistory = (*Store)(nil)

// Store implements MessageHistory over a ListStore.
//
// Thread Safety: safe for concurrent use; all state lives in the backing
// store.
type Store struct {
	store ListStore
}

// NewStore wraps a backing list store.
func NewStore(store ListStore) (*Store, error) {
	if store == nil {
		return nil, ErrMissingConfig
	}
	return &Store{store: store}, nil
}

// AddMessage appends a message to the front of the session's list and then
// applies the TTL, if any. The ordering matters: applying the TTL after the
// append means a crash between the two steps can only leave a longer-lived
// session, never a lost message.
func (s *Store) AddMessage(ctx context.Context, input AddMessageInput) error {
	ctx, span := historyTracer.Start(ctx, "history.AddMessage")
	defer span.End()

	if err := input.Message.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid message")
		return err
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = datatypes.DefaultSessionID
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	raw, err := json.Marshal(input.Message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := s.store.PushFront(ctx, sessionID, string(raw)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "push failed")
		slog.Error("History append failed", "session_id", sessionID, "error", err)
		return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}

	if input.SessionTTL > 0 {
		if err := s.store.Expire(ctx, sessionID, input.SessionTTL); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "expire failed")
			return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
		}
	}
	return nil
}

// GetMessages returns the selected window in most-recent-first order. A
// session with no stored messages yields an empty slice, not an error; an
// unreachable store fails the call.
func (s *Store) GetMessages(ctx context.Context, input GetMessagesInput) ([]datatypes.Message, error) {
	ctx, span := historyTracer.Start(ctx, "history.GetMessages")
	defer span.End()

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = datatypes.DefaultSessionID
	}
	start, stop := input.Amount.bounds()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int64("window.start", start),
		attribute.Int64("window.stop", stop),
	)

	entries, err := s.store.ReadRange(ctx, sessionID, start, stop)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "range read failed")
		slog.Error("History read failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}

	messages := make([]datatypes.Message, 0, len(entries))
	for _, entry := range entries {
		var m datatypes.Message
		if err := json.Unmarshal([]byte(entry), &m); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("corrupt history entry for session %s: %w", sessionID, err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Clear removes every message for the session immediately, independent of
// any TTL.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	ctx, span := historyTracer.Start(ctx, "history.Clear")
	defer span.End()

	if sessionID == "" {
		sessionID = datatypes.DefaultSessionID
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	if err := s.store.Delete(ctx, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	slog.Debug("Cleared session history", "session_id", sessionID)
	return nil
}

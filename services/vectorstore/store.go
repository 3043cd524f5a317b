// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vectorstore defines the save/query/delete/reset contract the chat
// pipeline depends on, plus the Weaviate-backed implementation.
//
// The store is treated as a remote collaborator: indexing, embedding
// computation, and ranking are the store's business. This package only
// normalizes records in, matches out.
package vectorstore

import (
	"context"
	"errors"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrStoreUnavailable is returned when the vector store cannot be
	// reached.
	ErrStoreUnavailable = errors.New("vector store is not available")

	// ErrMissingConfig is returned when a store is constructed without a
	// client or connection configuration.
	ErrMissingConfig = errors.New("vector store requires either a pre-configured client or a connection config")
)

// -----------------------------------------------------------------------------
// Records and Matches
// -----------------------------------------------------------------------------

// Record is one chunk of ingested content. A single source document may
// produce many records via chunking.
//
// Either Vector or Content must be set: Content-only records rely on the
// store's own vectorizer, Vector-carrying records are stored as-is.
type Record struct {
	// ID identifies the record. Saving a record under an existing ID
	// overwrites it; ingestion is idempotent per ID.
	ID string

	// Vector is the optional pre-computed embedding.
	Vector []float32

	// Content is the chunk text, stored under the metadata key.
	Content string

	// Metadata holds additional fields stored alongside the content.
	Metadata map[string]any

	// Namespace assigns the record to a logical partition. Empty string is
	// the default partition.
	Namespace string
}

// Match is one ranked query result.
type Match struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Query describes a similarity search. Exactly one of Text or Vector should
// be set; when both are present the vector wins.
type Query struct {
	Text      string
	Vector    []float32
	TopK      int
	Namespace string

	// MetadataKey names the stored field returned as Match.Content.
	MetadataKey string
}

// SaveStatus is the black-box outcome of a save call. Partial failures are
// not surfaced; anything short of full success is a failure.
type SaveStatus string

const (
	SaveSuccess SaveStatus = "Success"
	SaveFail    SaveStatus = "Fail"
)

// -----------------------------------------------------------------------------
// Store Contract
// -----------------------------------------------------------------------------

// Store is the vector store client contract consumed by the context service
// and the chat orchestrator.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save upserts the given records. The status is Success only if every
	// record was accepted.
	Save(ctx context.Context, records []Record) (SaveStatus, error)

	// QueryMatches returns up to TopK matches ranked by the store. Threshold
	// filtering is the caller's concern; the store returns raw scores.
	QueryMatches(ctx context.Context, q Query) ([]Match, error)

	// Delete removes the records with the given IDs. Unknown IDs are
	// ignored.
	Delete(ctx context.Context, ids []string) error

	// Reset destroys all records in the given namespace; the empty string
	// clears the default partition only. Irreversible.
	Reset(ctx context.Context, namespace string) error
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package contextservice manages the retrieval corpus: ingesting content
// into the vector store, deleting records, and resetting namespaces.
//
// Ingestion deliberately reports store failures as a status instead of an
// error: callers batch-load documents and a transient store hiccup on one
// chunk set should not abort a load loop. Malformed payloads, by contrast,
// are caller bugs and fail loudly before the store is touched.
package contextservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var contextTracer = otel.Tracer("ragchat.contextservice")

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ValidationError marks a payload the service refused to ingest. The store
// is never contacted for these.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid context payload: %s", e.Reason)
}

// IsValidationError reports whether err is a payload validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

// AddStatus is the black-box ingestion outcome.
type AddStatus string

const (
	AddOK    AddStatus = "OK"
	AddNotOK AddStatus = "NOT-OK"
)

// AddResult reports one ingestion call: the outcome plus the ids of the
// records written, in chunk order. IDs is empty when Status is AddNotOK.
type AddResult struct {
	Status AddStatus `json:"status"`
	IDs    []string  `json:"ids,omitempty"`
}

// Service ingests, deletes, and resets retrieval context.
//
// Thread Safety: safe for concurrent use; all state lives in the store.
type Service struct {
	store vectorstore.Store
}

// NewService wires the service to its vector store.
func NewService(store vectorstore.Store) (*Service, error) {
	if store == nil {
		return nil, vectorstore.ErrMissingConfig
	}
	return &Service{store: store}, nil
}

// Add expands the payload into records and saves them. Invalid payloads
// return an error without touching the store; store failures are logged and
// reported as AddNotOK with a nil error.
func (s *Service) Add(ctx context.Context, payload Payload, opts datatypes.AddContextOptions) (*AddResult, error) {
	ctx, span := contextTracer.Start(ctx, "contextservice.Add")
	defer span.End()

	opts.EnsureDefaults()
	records, err := payload.toRecords(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payload rejected")
		return &AddResult{Status: AddNotOK}, err
	}
	span.SetAttributes(
		attribute.Int("context.records", len(records)),
		attribute.String("context.namespace", opts.Namespace),
	)

	status, err := s.store.Save(ctx, records)
	if err != nil || status != vectorstore.SaveSuccess {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		slog.Error("Context ingestion failed",
			"records", len(records),
			"namespace", opts.Namespace,
			"error", err,
		)
		return &AddResult{Status: AddNotOK}, nil
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	slog.Debug("Ingested context records", "records", len(records), "namespace", opts.Namespace)
	return &AddResult{Status: AddOK, IDs: ids}, nil
}

// Delete removes records by id. A single id and a batch go through the same
// path; unknown ids are ignored by the store.
func (s *Service) Delete(ctx context.Context, ids ...string) error {
	ctx, span := contextTracer.Start(ctx, "contextservice.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("context.ids", len(ids)))

	if len(ids) == 0 {
		return &ValidationError{Reason: "delete requires at least one record id"}
	}
	if err := s.store.Delete(ctx, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	return nil
}

// Reset destroys all records in the namespace. The empty string clears the
// default partition only. Irreversible.
func (s *Service) Reset(ctx context.Context, namespace string) error {
	ctx, span := contextTracer.Start(ctx, "contextservice.Reset")
	defer span.End()
	span.SetAttributes(attribute.String("context.namespace", namespace))

	if err := s.store.Reset(ctx, namespace); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reset failed")
		return err
	}
	slog.Info("Reset context namespace", "namespace", namespace)
	return nil
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var storeTracer = otel.Tracer("ragchat.vectorstore")

// Compile-time interface implementation check.
var _ Store = (*WeaviateStore)(nil)

// Weaviate property names used by the context class.
const (
	propContent   = "content"
	propNamespace = "namespace"
	propRecordID  = "record_id"
	propMetadata  = "metadata_json"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures the Weaviate-backed store.
type Config struct {
	// URL is the Weaviate server URL (e.g., "http://localhost:8080").
	URL string

	// ClassName is the Weaviate class holding context records.
	// Default: "ContextRecord"
	ClassName string

	// Vectorizer is the module used for content-only records.
	// Default: "text2vec-transformers"
	Vectorizer string
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	if c.ClassName == "" {
		c.ClassName = "ContextRecord"
	}
	if c.Vectorizer == "" {
		c.Vectorizer = "text2vec-transformers"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingConfig
	}
	parsed, err := url.Parse(c.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid weaviate url %q", c.URL)
	}
	return nil
}

// -----------------------------------------------------------------------------
// WeaviateStore
// -----------------------------------------------------------------------------

// WeaviateStore implements Store over a Weaviate class. Records live as
// objects with a deterministic UUID derived from the record id, so re-saving
// an id overwrites instead of duplicating. Namespaces are a filterable text
// property partitioning the class.
//
// Thread Safety: safe for concurrent use; the underlying client is stateless
// per call.
type WeaviateStore struct {
	client    *weaviate.Client
	className string
	cfg       Config
}

// NewWeaviateStore builds a store from a connection config.
//
// Returns ErrMissingConfig when no URL is supplied, so a misconfigured
// deployment fails at construction rather than on the first query.
func NewWeaviateStore(cfg Config) (*WeaviateStore, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	parsed, _ := url.Parse(cfg.URL)
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	slog.Info("Initialized weaviate store", "url", cfg.URL, "class", cfg.ClassName)
	return &WeaviateStore{client: client, className: cfg.ClassName, cfg: cfg}, nil
}

// NewWeaviateStoreFromClient wraps a pre-configured client. Useful for tests
// and for callers that share one client across services.
func NewWeaviateStoreFromClient(client *weaviate.Client, className string) (*WeaviateStore, error) {
	if client == nil {
		return nil, ErrMissingConfig
	}
	if className == "" {
		className = "ContextRecord"
	}
	return &WeaviateStore{client: client, className: className}, nil
}

// EnsureSchema creates the context class if it does not exist yet. Safe to
// call on every startup.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	ctx, span := storeTracer.Start(ctx, "WeaviateStore.EnsureSchema")
	defer span.End()

	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(s.className).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "class existence check failed")
		return fmt.Errorf("check class %s: %w", s.className, err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      s.className,
		Vectorizer: s.cfg.Vectorizer,
		Properties: []*models.Property{
			{Name: propContent, DataType: []string{"text"}},
			{Name: propRecordID, DataType: []string{"text"}},
			{Name: propNamespace, DataType: []string{"text"}},
			{Name: propMetadata, DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "class creation failed")
		return fmt.Errorf("create class %s: %w", s.className, err)
	}
	slog.Info("Created weaviate class", "class", s.className)
	return nil
}

// -----------------------------------------------------------------------------
// Store Implementation
// -----------------------------------------------------------------------------

// Save upserts records through the batch API. Object UUIDs are derived from
// record ids, which makes the operation idempotent per id.
func (s *WeaviateStore) Save(ctx context.Context, records []Record) (SaveStatus, error) {
	ctx, span := storeTracer.Start(ctx, "WeaviateStore.Save")
	defer span.End()
	span.SetAttributes(attribute.Int("records.count", len(records)))

	if len(records) == 0 {
		return SaveSuccess, nil
	}

	objects := make([]*models.Object, 0, len(records))
	for _, r := range records {
		metadataJSON := "{}"
		if len(r.Metadata) > 0 {
			raw, err := json.Marshal(r.Metadata)
			if err != nil {
				return SaveFail, fmt.Errorf("marshal record metadata: %w", err)
			}
			metadataJSON = string(raw)
		}

		obj := &models.Object{
			Class: s.className,
			ID:    strfmt.UUID(objectUUID(r.ID)),
			Properties: map[string]any{
				propContent:   r.Content,
				propRecordID:  r.ID,
				propNamespace: r.Namespace,
				propMetadata:  metadataJSON,
			},
		}
		if len(r.Vector) > 0 {
			obj.Vector = models.C11yVector(r.Vector)
		}
		objects = append(objects, obj)
	}

	resp, err := s.client.Batch().ObjectsBatcher().
		WithObjects(objects...).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch save failed")
		slog.Error("Weaviate batch save failed", "class", s.className, "error", err)
		return SaveFail, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// The batch call can succeed while individual objects are rejected.
	// Anything short of full success is a failure.
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			msg := item.Result.Errors.Error[0].Message
			span.SetStatus(codes.Error, "object rejected")
			slog.Error("Weaviate rejected object in batch", "class", s.className, "error", msg)
			return SaveFail, nil
		}
	}

	slog.Debug("Saved records to weaviate", "class", s.className, "count", len(records))
	return SaveSuccess, nil
}

// weaviateQueryResult mirrors one object returned by the GraphQL Get query.
type weaviateQueryResult struct {
	Content    string `json:"content"`
	RecordID   string `json:"record_id"`
	Namespace  string `json:"namespace"`
	Metadata   string `json:"metadata_json"`
	Additional struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// QueryMatches runs a nearText or nearVector search restricted to the query
// namespace and returns the store's ranking untouched.
func (s *WeaviateStore) QueryMatches(ctx context.Context, q Query) ([]Match, error) {
	ctx, span := storeTracer.Start(ctx, "WeaviateStore.QueryMatches")
	defer span.End()
	span.SetAttributes(
		attribute.Int("query.top_k", q.TopK),
		attribute.String("query.namespace", q.Namespace),
	)

	topK := q.TopK
	if topK <= 0 {
		topK = 1
	}

	where := filters.Where().
		WithPath([]string{propNamespace}).
		WithOperator(filters.Equal).
		WithValueString(q.Namespace)

	fields := []graphql.Field{
		{Name: propContent},
		{Name: propRecordID},
		{Name: propNamespace},
		{Name: propMetadata},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
	}

	builder := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithWhere(where).
		WithFields(fields...).
		WithLimit(topK)

	switch {
	case len(q.Vector) > 0:
		builder = builder.WithNearVector(
			s.client.GraphQL().NearVectorArgBuilder().WithVector(q.Vector))
	case q.Text != "":
		builder = builder.WithNearText(
			s.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{q.Text}))
	default:
		return nil, errors.New("query requires either text or a vector")
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(resp.Errors) > 0 {
		msg := resp.Errors[0].Message
		span.SetStatus(codes.Error, "graphql error")
		return nil, fmt.Errorf("weaviate query error: %s", msg)
	}

	parsed, err := parseGetResponse(resp.Data, s.className)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	matches := make([]Match, 0, len(parsed))
	for _, r := range parsed {
		m := Match{
			ID:      r.RecordID,
			Score:   r.Additional.Certainty,
			Content: r.Content,
		}
		if m.ID == "" {
			m.ID = r.Additional.ID
		}
		if r.Metadata != "" && r.Metadata != "{}" {
			meta := map[string]any{}
			if err := json.Unmarshal([]byte(r.Metadata), &meta); err == nil {
				m.Metadata = meta
			}
		}
		matches = append(matches, m)
	}

	span.SetAttributes(attribute.Int("query.matches", len(matches)))
	return matches, nil
}

// Delete removes records by id. Ids that never existed are silently skipped.
func (s *WeaviateStore) Delete(ctx context.Context, ids []string) error {
	ctx, span := storeTracer.Start(ctx, "WeaviateStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("delete.count", len(ids)))

	for _, id := range ids {
		err := s.client.Data().Deleter().
			WithClassName(s.className).
			WithID(objectUUID(id)).
			Do(ctx)
		if err != nil {
			var clientErr *fault.WeaviateClientError
			if errors.As(err, &clientErr) && clientErr.StatusCode == 404 {
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "delete failed")
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}
	return nil
}

// Reset destroys every record in the given namespace. The empty string clears
// the default partition only, leaving named namespaces intact.
func (s *WeaviateStore) Reset(ctx context.Context, namespace string) error {
	ctx, span := storeTracer.Start(ctx, "WeaviateStore.Reset")
	defer span.End()
	span.SetAttributes(attribute.String("reset.namespace", namespace))

	where := filters.Where().
		WithPath([]string{propNamespace}).
		WithOperator(filters.Equal).
		WithValueString(namespace)

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reset failed")
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if resp != nil && resp.Results != nil {
		slog.Info("Reset namespace", "class", s.className, "namespace", namespace,
			"matched", resp.Results.Matches)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// objectUUID derives a stable Weaviate object UUID from a record id. The
// mapping must stay fixed across releases: it is what makes re-ingestion
// overwrite instead of duplicate.
func objectUUID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

// parseGetResponse converts the dynamic GraphQL payload into typed results
// via the marshal/unmarshal round trip.
func parseGetResponse(data map[string]models.JSONObject, className string) ([]weaviateQueryResult, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql response: %w", err)
	}

	var envelope struct {
		Get map[string][]weaviateQueryResult `json:"Get"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal graphql response: %w", err)
	}
	return envelope.Get[className], nil
}

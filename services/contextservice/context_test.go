// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contextservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records calls and supports failure injection.
type fakeStore struct {
	saved      []vectorstore.Record
	deletedIDs []string
	resetNS    []string

	saveStatus vectorstore.SaveStatus
	saveErr    error
	deleteErr  error
	resetErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saveStatus: vectorstore.SaveSuccess}
}

func (f *fakeStore) Save(_ context.Context, records []vectorstore.Record) (vectorstore.SaveStatus, error) {
	if f.saveErr != nil {
		return vectorstore.SaveFail, f.saveErr
	}
	f.saved = append(f.saved, records...)
	return f.saveStatus, nil
}

func (f *fakeStore) QueryMatches(_ context.Context, _ vectorstore.Query) ([]vectorstore.Match, error) {
	return nil, nil
}

func (f *fakeStore) Delete(_ context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}

func (f *fakeStore) Reset(_ context.Context, namespace string) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resetNS = append(f.resetNS, namespace)
	return nil
}

// TestService_Add_Text verifies text ingestion: one record, generated id,
// options flowing through.
func TestService_Add_Text(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, err := NewService(store)
	require.NoError(t, err)

	result, err := svc.Add(ctx, TextPayload{Text: "Paris is the capital of France."}, datatypes.AddContextOptions{
		Namespace: "geo",
		Metadata:  map[string]any{"topic": "capitals"},
	})
	require.NoError(t, err)
	assert.Equal(t, AddOK, result.Status)
	require.Len(t, result.IDs, 1)

	require.Len(t, store.saved, 1)
	record := store.saved[0]
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "Paris is the capital of France.", record.Content)
	assert.Equal(t, "geo", record.Namespace)
	assert.Equal(t, "capitals", record.Metadata["topic"])
}

// TestService_Add_Embedding verifies vector ingestion keeps the supplied id
// and vector.
func TestService_Add_Embedding(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, err := NewService(store)
	require.NoError(t, err)

	result, err := svc.Add(ctx, EmbeddingPayload{
		ID:     "doc-7",
		Vector: []float32{0.1, 0.2, 0.3},
		Text:   "precomputed",
	}, datatypes.AddContextOptions{})
	require.NoError(t, err)
	assert.Equal(t, AddOK, result.Status)
	assert.Equal(t, []string{"doc-7"}, result.IDs)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "doc-7", store.saved[0].ID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, store.saved[0].Vector)
}

// TestService_Add_File verifies a text file fans out into chunked records
// with stable, index-derived ids.
func TestService_Add_File(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, err := NewService(store)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "notes.txt")
	content := strings.Repeat("Paris is the capital of France. ", 100)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	result, err := svc.Add(ctx, FilePayload{
		Path:      path,
		Type:      FileTypeText,
		ChunkSize: 200,
	}, datatypes.AddContextOptions{Namespace: "docs"})
	require.NoError(t, err)
	assert.Equal(t, AddOK, result.Status)
	assert.Equal(t, len(store.saved), len(result.IDs))

	require.Greater(t, len(store.saved), 1, "a long file should produce multiple chunks")
	assert.Equal(t, "notes.txt-0", store.saved[0].ID)
	assert.Equal(t, "docs", store.saved[0].Namespace)
	assert.Equal(t, "notes.txt", store.saved[0].Metadata["source"])
}

// TestService_Add_ValidationFailures verifies malformed payloads fail before
// the store is touched.
func TestService_Add_ValidationFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		payload Payload
	}{
		{name: "empty text", payload: TextPayload{}},
		{name: "whitespace text", payload: TextPayload{Text: "   "}},
		{name: "empty vector", payload: EmbeddingPayload{Text: "x"}},
		{name: "missing file path", payload: FilePayload{Type: FileTypeText}},
		{name: "nonexistent file", payload: FilePayload{Path: "/does/not/exist.txt", Type: FileTypeText}},
		{name: "unsupported file type", payload: FilePayload{Path: "/etc/hostname", Type: "docx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc, err := NewService(store)
			require.NoError(t, err)

			result, err := svc.Add(ctx, tt.payload, datatypes.AddContextOptions{})
			assert.Equal(t, AddNotOK, result.Status)
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected a validation error, got %v", err)
			assert.Empty(t, store.saved, "store must not be touched for invalid payloads")
		})
	}
}

// TestService_Add_StoreFailureIsDowngraded verifies store failures report
// NOT-OK without raising.
func TestService_Add_StoreFailureIsDowngraded(t *testing.T) {
	ctx := context.Background()

	t.Run("save error", func(t *testing.T) {
		store := newFakeStore()
		store.saveErr = errors.New("connection refused")
		svc, err := NewService(store)
		require.NoError(t, err)

		result, err := svc.Add(ctx, TextPayload{Text: "x"}, datatypes.AddContextOptions{})
		assert.NoError(t, err)
		assert.Equal(t, AddNotOK, result.Status)
		assert.Empty(t, result.IDs)
	})

	t.Run("partial save", func(t *testing.T) {
		store := newFakeStore()
		store.saveStatus = vectorstore.SaveFail
		svc, err := NewService(store)
		require.NoError(t, err)

		result, err := svc.Add(ctx, TextPayload{Text: "x"}, datatypes.AddContextOptions{})
		assert.NoError(t, err)
		assert.Equal(t, AddNotOK, result.Status)
	})
}

// TestService_Delete verifies single and batch deletes share one path and an
// empty id list is rejected.
func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, err := NewService(store)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "doc-1"))
	require.NoError(t, svc.Delete(ctx, "doc-2", "doc-3"))
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, store.deletedIDs)

	err = svc.Delete(ctx)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

// TestService_Reset verifies reset targets exactly the named namespace.
func TestService_Reset(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, err := NewService(store)
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx, "geo"))
	require.NoError(t, svc.Reset(ctx, ""))
	assert.Equal(t, []string{"geo", ""}, store.resetNS)

	store.resetErr = errors.New("store down")
	require.Error(t, svc.Reset(ctx, "geo"))
}

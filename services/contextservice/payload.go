// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contextservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/vectorstore"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// -----------------------------------------------------------------------------
// Chunking Defaults
// -----------------------------------------------------------------------------

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000

	// defaultOverlapDivisor derives the chunk overlap from the chunk size:
	// a tenth of the chunk is repeated across boundaries so sentences cut
	// mid-chunk stay retrievable.
	defaultOverlapDivisor = 10
)

// -----------------------------------------------------------------------------
// Payloads
// -----------------------------------------------------------------------------

// Payload is one unit of ingestible content. Each variant knows how to turn
// itself into vector store records; the service never inspects variants.
type Payload interface {
	// toRecords validates the payload and expands it into store records.
	// Validation failures surface as *ValidationError.
	toRecords(ctx context.Context, opts datatypes.AddContextOptions) ([]vectorstore.Record, error)
}

// TextPayload ingests a single pre-chunked string as one record.
type TextPayload struct {
	// ID is optional; a random id is generated when empty.
	ID string

	// Text is the record content. The store's vectorizer embeds it.
	Text string
}

func (p TextPayload) toRecords(_ context.Context, opts datatypes.AddContextOptions) ([]vectorstore.Record, error) {
	if strings.TrimSpace(p.Text) == "" {
		return nil, &ValidationError{Reason: "text payload requires non-empty text"}
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	return []vectorstore.Record{{
		ID:        id,
		Content:   p.Text,
		Metadata:  opts.Metadata,
		Namespace: opts.Namespace,
	}}, nil
}

// EmbeddingPayload ingests a pre-computed vector with its source text. The
// store skips vectorization for it.
type EmbeddingPayload struct {
	ID     string
	Vector []float32

	// Text is stored alongside the vector so queries can return readable
	// content.
	Text string
}

func (p EmbeddingPayload) toRecords(_ context.Context, opts datatypes.AddContextOptions) ([]vectorstore.Record, error) {
	if len(p.Vector) == 0 {
		return nil, &ValidationError{Reason: "embedding payload requires a non-empty vector"}
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	return []vectorstore.Record{{
		ID:        id,
		Vector:    p.Vector,
		Content:   p.Text,
		Metadata:  opts.Metadata,
		Namespace: opts.Namespace,
	}}, nil
}

// FileType selects the loader for a FilePayload.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeCSV  FileType = "csv"
	FileTypeText FileType = "text"
)

// FilePayload ingests a document from disk, split into overlapping chunks.
// One payload fans out to many records; record ids are derived from the file
// name and chunk index, so re-ingesting the same file overwrites in place.
type FilePayload struct {
	Path string
	Type FileType

	// ChunkSize and ChunkOverlap tune the splitter. Zero values use the
	// defaults.
	ChunkSize    int
	ChunkOverlap int
}

func (p FilePayload) splitter() textsplitter.RecursiveCharacter {
	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	overlap := p.ChunkOverlap
	if overlap <= 0 {
		overlap = chunkSize / defaultOverlapDivisor
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
	)
}

func (p FilePayload) load(ctx context.Context) ([]schema.Document, error) {
	file, err := os.Open(p.Path)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("cannot open file: %v", err)}
	}
	defer file.Close()

	splitter := p.splitter()
	switch p.Type {
	case FileTypePDF:
		info, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p.Path, err)
		}
		return documentloaders.NewPDF(file, info.Size()).LoadAndSplit(ctx, splitter)
	case FileTypeCSV:
		return documentloaders.NewCSV(file).LoadAndSplit(ctx, splitter)
	case FileTypeText:
		return documentloaders.NewText(file).LoadAndSplit(ctx, splitter)
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported file type %q", p.Type)}
	}
}

func (p FilePayload) toRecords(ctx context.Context, opts datatypes.AddContextOptions) ([]vectorstore.Record, error) {
	if p.Path == "" {
		return nil, &ValidationError{Reason: "file payload requires a path"}
	}

	docs, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("file %s produced no chunks", p.Path)}
	}

	base := filepath.Base(p.Path)
	records := make([]vectorstore.Record, 0, len(docs))
	for i, doc := range docs {
		metadata := make(map[string]any, len(opts.Metadata)+len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		for k, v := range opts.Metadata {
			metadata[k] = v
		}
		metadata["source"] = base

		records = append(records, vectorstore.Record{
			ID:        fmt.Sprintf("%s-%d", base, i),
			Content:   doc.PageContent,
			Metadata:  metadata,
			Namespace: opts.Namespace,
		})
	}
	return records, nil
}

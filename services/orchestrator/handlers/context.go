// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kelpline/ragchat/services/contextservice"
	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/orchestrator/observability"
)

// AddContextRequest is the body of POST /v1/context. Type selects the
// payload variant; the unrelated fields are ignored.
type AddContextRequest struct {
	Type string `json:"type"` // text | embedding | file

	// Text payload fields.
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`

	// Embedding payload fields.
	Embedding []float32 `json:"embedding,omitempty"`

	// File payload fields. Path is resolved on the server host.
	Path         string `json:"path,omitempty"`
	FileType     string `json:"fileType,omitempty"`
	ChunkSize    int    `json:"chunkSize,omitempty"`
	ChunkOverlap int    `json:"chunkOverlap,omitempty"`

	// Shared options.
	Namespace   string         `json:"namespace,omitempty"`
	MetadataKey string         `json:"metadataKey,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (r *AddContextRequest) payload() (contextservice.Payload, error) {
	switch r.Type {
	case "text", "":
		return contextservice.TextPayload{ID: r.ID, Text: r.Text}, nil
	case "embedding":
		return contextservice.EmbeddingPayload{ID: r.ID, Vector: r.Embedding, Text: r.Text}, nil
	case "file":
		return contextservice.FilePayload{
			Path:         r.Path,
			Type:         contextservice.FileType(r.FileType),
			ChunkSize:    r.ChunkSize,
			ChunkOverlap: r.ChunkOverlap,
		}, nil
	default:
		return nil, &contextservice.ValidationError{Reason: "unknown payload type " + r.Type}
	}
}

// HandleAddContext ingests one payload into the vector store. The response
// mirrors the service's black-box status; invalid payloads map to 400.
func HandleAddContext(svc *contextservice.Service, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddContextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		payload, err := req.payload()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := svc.Add(c.Request.Context(), payload, datatypes.AddContextOptions{
			MetadataKey: req.MetadataKey,
			Metadata:    req.Metadata,
			Namespace:   req.Namespace,
		})
		if err != nil {
			if contextservice.IsValidationError(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("Context ingestion failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "context ingestion failed"})
			return
		}

		metrics.RecordIngestedChunks(len(result.IDs))
		c.JSON(http.StatusOK, result)
	}
}

// DeleteContextRequest is the body of DELETE /v1/context.
type DeleteContextRequest struct {
	IDs []string `json:"ids"`
}

// HandleDeleteContext removes records by id.
func HandleDeleteContext(svc *contextservice.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeleteContextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		if err := svc.Delete(c.Request.Context(), req.IDs...); err != nil {
			if contextservice.IsValidationError(err) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("Context delete failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "context delete failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": len(req.IDs)})
	}
}

// ResetContextRequest is the body of POST /v1/context/reset. An absent
// namespace clears the default partition.
type ResetContextRequest struct {
	Namespace string `json:"namespace"`
}

// HandleResetContext destroys every record in one namespace.
func HandleResetContext(svc *contextservice.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResetContextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		if err := svc.Reset(c.Request.Context(), req.Namespace); err != nil {
			slog.Error("Context reset failed", "namespace", req.Namespace, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "context reset failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset", "namespace": req.Namespace})
	}
}

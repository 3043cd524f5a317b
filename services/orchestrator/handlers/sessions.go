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
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/orchestrator/services"
)

// defaultSessionHistoryLimit bounds GET history responses when the caller
// does not pass an explicit limit.
const defaultSessionHistoryLimit = 50

// GetSessionHistory answers GET /v1/sessions/:sessionId/history. Messages
// come back newest first; the optional limit query parameter caps the
// window at MaxHistoryLength.
func GetSessionHistory(chat *services.RAGChat) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		limit := defaultSessionHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		if limit > datatypes.MaxHistoryLength {
			limit = datatypes.MaxHistoryLength
		}

		messages, err := chat.SessionHistory(c.Request.Context(), sessionID, limit)
		if err != nil {
			slog.Error("Session history read failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "session history unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"messages":   messages,
		})
	}
}

// DeleteSession answers DELETE /v1/sessions/:sessionId by clearing the
// session's history immediately.
func DeleteSession(chat *services.RAGChat) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		if err := chat.ClearSession(c.Request.Context(), sessionID); err != nil {
			slog.Error("Session clear failed", "session_id", sessionID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "session clear failed"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

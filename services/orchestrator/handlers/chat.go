// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers holds the gin HTTP handlers for the chat service. Each
// handler is a factory taking its collaborators and returning a
// gin.HandlerFunc, so routes wire dependencies explicitly and tests inject
// fakes.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kelpline/ragchat/services/llm"
	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/orchestrator/services"
)

// HandleChat answers POST /v1/chat. The streaming flag in the request body
// selects between a buffered JSON response and an SSE token stream.
func HandleChat(chat *services.RAGChat) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		opts := req.Options()
		if req.Streaming {
			streamChat(c, chat, req.Question, &opts)
			return
		}
		bufferedChat(c, chat, req.Question, &opts)
	}
}

func bufferedChat(c *gin.Context, chat *services.RAGChat, question string, opts *datatypes.ChatOptions) {
	resp, err := chat.Chat(c.Request.Context(), question, opts)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// streamChat defers the SSE headers until the first token. Failures before
// any token was written still get a proper HTTP status; failures mid-stream
// can only be reported in-band as an error event.
func streamChat(c *gin.Context, chat *services.RAGChat, question string, opts *datatypes.ChatOptions) {
	var (
		writer  SSEWriter
		started bool
	)
	ensureStarted := func() error {
		if started {
			return nil
		}
		SetSSEHeaders(c.Writer)
		w, err := NewSSEWriter(c.Writer)
		if err != nil {
			return err
		}
		writer = w
		started = true
		return nil
	}

	resp, err := chat.ChatStream(c.Request.Context(), question, opts, func(e llm.StreamEvent) error {
		if e.Type != llm.StreamEventToken {
			return nil
		}
		if err := ensureStarted(); err != nil {
			return err
		}
		return writer.WriteToken(e.Content)
	})
	if err != nil {
		if !started {
			writeChatError(c, err)
			return
		}
		slog.Error("Chat stream failed after tokens were sent", "error", err)
		_ = writer.WriteError(publicChatError(err))
		return
	}

	// A clean stream with zero tokens still gets a done event.
	if err := ensureStarted(); err != nil {
		writeChatError(c, err)
		return
	}
	_ = writer.WriteDone(resp.SessionID)
}

// writeChatError maps pipeline errors onto HTTP statuses. Rate-limit denials
// carry a Retry-After header; internal detail never reaches the client.
func writeChatError(c *gin.Context, err error) {
	var rle *services.RateLimitError
	switch {
	case errors.As(err, &rle):
		retryAfter := int(time.Until(rle.Reset).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": retryAfter,
		})
	case services.IsConfigurationError(err):
		slog.Error("Chat pipeline misconfigured", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "service misconfigured"})
	case services.IsGenerationError(err):
		slog.Error("Answer generation failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "answer generation failed"})
	default:
		slog.Error("Chat request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat request failed"})
	}
}

func publicChatError(err error) string {
	switch {
	case services.IsRateLimitError(err):
		return "rate limit exceeded"
	case services.IsGenerationError(err):
		return "answer generation failed"
	default:
		return "chat request failed"
	}
}

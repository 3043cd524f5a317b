// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kelpline/ragchat/services/contextservice"
	"github.com/kelpline/ragchat/services/history"
	"github.com/kelpline/ragchat/services/llm"
	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/orchestrator/services"
	"github.com/kelpline/ragchat/services/ratelimit"
	"github.com/kelpline/ragchat/services/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeStore struct {
	matches []vectorstore.Match
	saved   []vectorstore.Record
	deleted []string
	resets  []string
}

func (f *fakeStore) Save(_ context.Context, records []vectorstore.Record) (vectorstore.SaveStatus, error) {
	f.saved = append(f.saved, records...)
	return vectorstore.SaveSuccess, nil
}

func (f *fakeStore) QueryMatches(_ context.Context, _ vectorstore.Query) ([]vectorstore.Match, error) {
	return f.matches, nil
}

func (f *fakeStore) Delete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeStore) Reset(_ context.Context, ns string) error {
	f.resets = append(f.resets, ns)
	return nil
}

type fakeHistory struct {
	messages map[string][]datatypes.Message
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{messages: make(map[string][]datatypes.Message)}
}

func (f *fakeHistory) AddMessage(_ context.Context, input history.AddMessageInput) error {
	key := input.SessionID
	f.messages[key] = append([]datatypes.Message{input.Message}, f.messages[key]...)
	return nil
}

func (f *fakeHistory) GetMessages(_ context.Context, input history.GetMessagesInput) ([]datatypes.Message, error) {
	return f.messages[input.SessionID], nil
}

func (f *fakeHistory) Clear(_ context.Context, sessionID string) error {
	delete(f.messages, sessionID)
	return nil
}

type fakeLimiter struct {
	decision ratelimit.Decision
}

func (f *fakeLimiter) Limit(_ context.Context, _ string) (*ratelimit.Decision, error) {
	d := f.decision
	return &d, nil
}

type fakeLLM struct {
	answer string
	tokens []string
}

func (f *fakeLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return f.answer, nil
}

func (f *fakeLLM) GenerateStream(_ context.Context, _ string, _ llm.GenerationParams, cb llm.StreamCallback) (string, error) {
	var b strings.Builder
	for _, token := range f.tokens {
		b.WriteString(token)
		if err := cb(llm.StreamEvent{Type: llm.StreamEventToken, Content: token}); err != nil {
			return b.String(), err
		}
	}
	if err := cb(llm.StreamEvent{Type: llm.StreamEventDone}); err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

func newTestChat(t *testing.T, cfg services.RAGChatConfig) *services.RAGChat {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = &fakeStore{}
	}
	if cfg.History == nil {
		cfg.History = newFakeHistory()
	}
	if cfg.LLM == nil {
		cfg.LLM = &fakeLLM{answer: "ok"}
	}
	chat, err := services.NewRAGChat(cfg)
	require.NoError(t, err)
	return chat
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// -----------------------------------------------------------------------------
// Chat Handler
// -----------------------------------------------------------------------------

// TestHandleChat_Buffered verifies the JSON round trip for a non-streaming
// request.
func TestHandleChat_Buffered(t *testing.T) {
	chat := newTestChat(t, services.RAGChatConfig{
		Store: &fakeStore{matches: []vectorstore.Match{
			{ID: "doc-1", Score: 0.9, Content: "Paris is the capital of France."},
		}},
		LLM: &fakeLLM{answer: "Paris."},
	})
	router := gin.New()
	router.POST("/v1/chat", HandleChat(chat))

	w := postJSON(router, "/v1/chat", gin.H{"question": "Capital of France?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Paris.", resp.Answer)
	assert.Equal(t, datatypes.DefaultSessionID, resp.SessionID)
}

// TestHandleChat_Validation verifies malformed requests map to 400.
func TestHandleChat_Validation(t *testing.T) {
	chat := newTestChat(t, services.RAGChatConfig{})
	router := gin.New()
	router.POST("/v1/chat", HandleChat(chat))

	tests := []struct {
		name string
		body gin.H
	}{
		{name: "missing question", body: gin.H{}},
		{name: "empty question", body: gin.H{"question": ""}},
		{name: "negative topK", body: gin.H{"question": "q", "topK": -1}},
		{name: "threshold above one", body: gin.H{"question": "q", "similarityThreshold": 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, "/v1/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// TestHandleChat_RateLimited verifies a denial maps to 429 with Retry-After.
func TestHandleChat_RateLimited(t *testing.T) {
	chat := newTestChat(t, services.RAGChatConfig{
		Limiter: &fakeLimiter{decision: ratelimit.Decision{
			Allowed: false,
			Limit:   10,
			Reset:   time.Now().Add(45 * time.Second),
		}},
	})
	router := gin.New()
	router.POST("/v1/chat", HandleChat(chat))

	w := postJSON(router, "/v1/chat", gin.H{"question": "q"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

// TestHandleChat_Streaming verifies the SSE stream carries token events and
// a terminal done event with the session id.
func TestHandleChat_Streaming(t *testing.T) {
	chat := newTestChat(t, services.RAGChatConfig{
		LLM: &fakeLLM{tokens: []string{"Paris ", "is the capital."}},
	})
	router := gin.New()
	router.POST("/v1/chat", HandleChat(chat))

	w := postJSON(router, "/v1/chat", gin.H{"question": "q", "streaming": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: token")
	assert.Contains(t, body, `"content":"Paris "`)
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, datatypes.DefaultSessionID)
}

// -----------------------------------------------------------------------------
// Context Handlers
// -----------------------------------------------------------------------------

// TestHandleAddContext verifies text ingestion over HTTP.
func TestHandleAddContext(t *testing.T) {
	store := &fakeStore{}
	svc, err := contextservice.NewService(store)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/v1/context", HandleAddContext(svc, nil))

	t.Run("text payload", func(t *testing.T) {
		w := postJSON(router, "/v1/context", gin.H{
			"type":      "text",
			"text":      "Paris is the capital of France.",
			"namespace": "geo",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var result contextservice.AddResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, contextservice.AddOK, result.Status)
		assert.Len(t, result.IDs, 1)
		require.Len(t, store.saved, 1)
		assert.Equal(t, "geo", store.saved[0].Namespace)
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		w := postJSON(router, "/v1/context", gin.H{"type": "text", "text": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		w := postJSON(router, "/v1/context", gin.H{"type": "carrier-pigeon", "text": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestHandleDeleteContext verifies id deletion and the empty-list rejection.
func TestHandleDeleteContext(t *testing.T) {
	store := &fakeStore{}
	svc, err := contextservice.NewService(store)
	require.NoError(t, err)

	router := gin.New()
	router.DELETE("/v1/context", HandleDeleteContext(svc))

	raw, _ := json.Marshal(gin.H{"ids": []string{"doc-1", "doc-2"}})
	req := httptest.NewRequest(http.MethodDelete, "/v1/context", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"doc-1", "doc-2"}, store.deleted)

	raw, _ = json.Marshal(gin.H{"ids": []string{}})
	req = httptest.NewRequest(http.MethodDelete, "/v1/context", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandleResetContext verifies the namespace reset passthrough.
func TestHandleResetContext(t *testing.T) {
	store := &fakeStore{}
	svc, err := contextservice.NewService(store)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/v1/context/reset", HandleResetContext(svc))

	w := postJSON(router, "/v1/context/reset", gin.H{"namespace": "geo"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"geo"}, store.resets)
}

// -----------------------------------------------------------------------------
// Session Handlers
// -----------------------------------------------------------------------------

// TestSessionHandlers verifies the history read and the session clear.
func TestSessionHandlers(t *testing.T) {
	hist := newFakeHistory()
	hist.messages["s1"] = []datatypes.Message{
		{Role: datatypes.RoleAssistant, Content: "Paris."},
		{Role: datatypes.RoleUser, Content: "Capital of France?"},
	}
	chat := newTestChat(t, services.RAGChatConfig{History: hist})

	router := gin.New()
	router.GET("/v1/sessions/:sessionId/history", GetSessionHistory(chat))
	router.DELETE("/v1/sessions/:sessionId", DeleteSession(chat))

	t.Run("history read", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Capital of France?")
	})

	t.Run("bad limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history?limit=zero", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("clear", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, hist.messages["s1"])
	})
}

// TestHealthCheck verifies liveness.
func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

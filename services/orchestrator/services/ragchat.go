// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services implements the retrieval-augmented chat pipeline.
//
// A chat call runs five stages in order: admission check, parallel retrieval
// (vector query joined with the session history read), prompt assembly,
// generation, and persistence. Denial and generation failure are terminal:
// nothing is persisted for them, so a failed exchange never pollutes the
// session history it would have extended.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kelpline/ragchat/services/history"
	"github.com/kelpline/ragchat/services/llm"
	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/orchestrator/observability"
	"github.com/kelpline/ragchat/services/ratelimit"
	"github.com/kelpline/ragchat/services/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var chatTracer = otel.Tracer("ragchat.orchestrator")

// =============================================================================
// Configuration
// =============================================================================

// RAGChatConfig wires the pipeline's collaborators. Store, History, and LLM
// are required; the rest degrade gracefully when absent.
type RAGChatConfig struct {
	Store   vectorstore.Store
	History history.MessageHistory
	LLM     llm.LLMClient

	// Limiter is optional; nil disables admission checks entirely.
	Limiter ratelimit.Limiter

	// Prompt is optional; nil selects the default template.
	Prompt *llm.PromptTemplate

	// Params are forwarded to the model on every call.
	Params llm.GenerationParams

	// Metrics is optional; nil disables pipeline metrics.
	Metrics *observability.ChatMetrics

	// ModelName is recorded in the metadata of persisted assistant
	// messages, so stored history names the model that produced it.
	ModelName string
}

// Validate reports the first missing required collaborator.
func (c *RAGChatConfig) Validate() error {
	if c.Store == nil {
		return &ConfigurationError{Missing: "vector store"}
	}
	if c.History == nil {
		return &ConfigurationError{Missing: "message history"}
	}
	if c.LLM == nil {
		return &ConfigurationError{Missing: "llm client"}
	}
	return nil
}

// =============================================================================
// RAGChat
// =============================================================================

// RAGChat orchestrates one retrieval-augmented exchange per call.
//
// Thread Safety: safe for concurrent use; per-call state stays on the stack.
type RAGChat struct {
	store     vectorstore.Store
	history   history.MessageHistory
	llm       llm.LLMClient
	limiter   ratelimit.Limiter
	prompt    *llm.PromptTemplate
	params    llm.GenerationParams
	metrics   *observability.ChatMetrics
	modelName string
}

// NewRAGChat validates the wiring and builds the pipeline.
func NewRAGChat(cfg RAGChatConfig) (*RAGChat, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prompt := cfg.Prompt
	if prompt == nil {
		var err error
		prompt, err = llm.NewPromptTemplate("")
		if err != nil {
			return nil, err
		}
	}
	return &RAGChat{
		store:     cfg.Store,
		history:   cfg.History,
		llm:       cfg.LLM,
		limiter:   cfg.Limiter,
		prompt:    prompt,
		params:    cfg.Params,
		metrics:   cfg.Metrics,
		modelName: cfg.ModelName,
	}, nil
}

// Chat answers one question with a buffered response.
func (r *RAGChat) Chat(ctx context.Context, question string, opts *datatypes.ChatOptions) (*datatypes.ChatResponse, error) {
	start := time.Now()
	resp, err := r.run(ctx, question, opts, nil)
	r.metrics.RecordChat(observability.ModeBuffered, outcomeOf(err), time.Since(start).Seconds())
	return resp, err
}

// ChatStream answers one question, forwarding tokens to cb as they arrive.
// The returned response carries the full accumulated answer; persistence
// happens only after the stream completes cleanly.
func (r *RAGChat) ChatStream(ctx context.Context, question string, opts *datatypes.ChatOptions, cb llm.StreamCallback) (*datatypes.ChatResponse, error) {
	if cb == nil {
		return nil, &ConfigurationError{Missing: "stream callback"}
	}
	start := time.Now()
	r.metrics.StreamStarted()
	resp, err := r.run(ctx, question, opts, cb)
	r.metrics.StreamEnded()
	r.metrics.RecordChat(observability.ModeStreaming, outcomeOf(err), time.Since(start).Seconds())
	return resp, err
}

// SessionHistory returns the most recent n messages of a session, newest
// first.
func (r *RAGChat) SessionHistory(ctx context.Context, sessionID string, n int) ([]datatypes.Message, error) {
	return r.history.GetMessages(ctx, history.GetMessagesInput{
		SessionID: sessionID,
		Amount:    history.LastN(n),
	})
}

// ClearSession removes a session's history immediately.
func (r *RAGChat) ClearSession(ctx context.Context, sessionID string) error {
	return r.history.Clear(ctx, sessionID)
}

func outcomeOf(err error) observability.Outcome {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case IsRateLimitError(err):
		return observability.OutcomeDenied
	default:
		return observability.OutcomeFailed
	}
}

// =============================================================================
// Pipeline
// =============================================================================

// run executes the pipeline. A nil cb selects buffered generation.
func (r *RAGChat) run(ctx context.Context, question string, opts *datatypes.ChatOptions, cb llm.StreamCallback) (*datatypes.ChatResponse, error) {
	ctx, span := chatTracer.Start(ctx, "RAGChat.run")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question must not be empty")
	}
	if len(question) > datatypes.MaxQuestionBytes {
		return nil, fmt.Errorf("question exceeds %d bytes", datatypes.MaxQuestionBytes)
	}

	// Work on a copy so the caller's options are never mutated.
	o := datatypes.ChatOptions{}
	if opts != nil {
		o = *opts
	}
	o.EnsureDefaults()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("chat.session_id", o.SessionID),
		attribute.Int("chat.top_k", o.TopK),
		attribute.Bool("chat.streaming", cb != nil),
	)

	if err := r.checkAdmission(ctx, &o); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission denied")
		return nil, err
	}

	prepared, err := r.prepare(ctx, question, &o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, err
	}

	prompt := r.prompt.Render(formatChatHistory(prepared.History), prepared.Context, question)
	answer, err := r.generate(ctx, prompt, cb)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, err
	}

	if err := r.persist(ctx, question, answer, &o); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return nil, err
	}

	return &datatypes.ChatResponse{
		Answer:    answer,
		SessionID: o.SessionID,
		Context:   prepared.Context,
	}, nil
}

// checkAdmission consumes one unit of rate-limit budget. A limiter backend
// failure fails the request closed: an unknown budget is treated as spent.
func (r *RAGChat) checkAdmission(ctx context.Context, o *datatypes.ChatOptions) error {
	if r.limiter == nil {
		return nil
	}
	ctx, span := chatTracer.Start(ctx, "RAGChat.checkAdmission")
	defer span.End()

	decision, err := r.limiter.Limit(ctx, o.RatelimitSessionID)
	if err != nil {
		return fmt.Errorf("admission check failed: %w", err)
	}
	if !decision.Allowed {
		r.metrics.RecordDenial()
		slog.Warn("Chat request denied by rate limiter",
			"ratelimit_session_id", o.RatelimitSessionID,
			"reset", decision.Reset,
		)
		return &RateLimitError{
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			Reset:     decision.Reset,
		}
	}
	return nil
}

// prepare runs the vector query and the history read in parallel and joins
// them into the prompt inputs. The two reads are independent, so the slower
// one bounds the stage.
func (r *RAGChat) prepare(ctx context.Context, question string, o *datatypes.ChatOptions) (*datatypes.PreparedChat, error) {
	ctx, span := chatTracer.Start(ctx, "RAGChat.prepare")
	defer span.End()

	var (
		matches  []vectorstore.Match
		messages []datatypes.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		matches, err = r.store.QueryMatches(gctx, vectorstore.Query{
			Text:        question,
			TopK:        o.TopK,
			Namespace:   o.Namespace,
			MetadataKey: o.MetadataKey,
		})
		if err != nil {
			return fmt.Errorf("context retrieval failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		messages, err = r.history.GetMessages(gctx, history.GetMessagesInput{
			SessionID: o.SessionID,
			Amount:    history.LastN(o.HistoryLength),
		})
		if err != nil {
			return fmt.Errorf("history read failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	filtered := filterMatches(matches, o.SimilarityThreshold)
	r.metrics.RecordRetrieval(len(filtered))
	span.SetAttributes(
		attribute.Int("retrieval.matches", len(matches)),
		attribute.Int("retrieval.kept", len(filtered)),
		attribute.Int("history.messages", len(messages)),
	)
	if len(filtered) == 0 {
		slog.Debug("No context survived threshold filtering",
			"matches", len(matches),
			"threshold", o.SimilarityThreshold,
		)
	}

	return &datatypes.PreparedChat{
		Question: question,
		Context:  formatContext(filtered),
		History:  messages,
	}, nil
}

// generate invokes the model, buffered or streaming. Failures carry the
// partial answer so surfaces can report how far the stream got.
func (r *RAGChat) generate(ctx context.Context, prompt string, cb llm.StreamCallback) (string, error) {
	ctx, span := chatTracer.Start(ctx, "RAGChat.generate")
	defer span.End()

	var (
		answer string
		err    error
	)
	if cb == nil {
		answer, err = r.llm.Generate(ctx, prompt, r.params)
	} else {
		answer, err = r.llm.GenerateStream(ctx, prompt, r.params, cb)
	}
	if err != nil {
		return "", &GenerationError{Err: err, Partial: answer}
	}
	return answer, nil
}

// persist appends the exchange to the session: the user's question first,
// then the assistant's answer, each write refreshing the session TTL. The
// ordering keeps the stored conversation readable even if the second write
// is lost.
func (r *RAGChat) persist(ctx context.Context, question, answer string, o *datatypes.ChatOptions) error {
	ctx, span := chatTracer.Start(ctx, "RAGChat.persist")
	defer span.End()

	if err := r.history.AddMessage(ctx, history.AddMessageInput{
		Message:    datatypes.Message{Role: datatypes.RoleUser, Content: question},
		SessionID:  o.SessionID,
		SessionTTL: o.HistoryTTL,
	}); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}

	metadata := make(map[string]any, len(o.Metadata)+1)
	for k, v := range o.Metadata {
		metadata[k] = v
	}
	if r.modelName != "" {
		metadata["modelName"] = r.modelName
	}
	if err := r.history.AddMessage(ctx, history.AddMessageInput{
		Message: datatypes.Message{
			Role:     datatypes.RoleAssistant,
			Content:  answer,
			Metadata: metadata,
		},
		SessionID:  o.SessionID,
		SessionTTL: o.HistoryTTL,
	}); err != nil {
		return fmt.Errorf("failed to persist assistant message: %w", err)
	}
	return nil
}

// =============================================================================
// Assembly Helpers
// =============================================================================

// filterMatches drops matches below the threshold and orders the survivors
// by descending score. The sort is stable so the store's tie ordering is
// preserved.
func filterMatches(matches []vectorstore.Match, threshold float64) []vectorstore.Match {
	kept := make([]vectorstore.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= threshold {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	return kept
}

// formatContext joins match contents into the prompt's context block, best
// match first.
func formatContext(matches []vectorstore.Match) string {
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Content == "" {
			continue
		}
		parts = append(parts, "- "+m.Content)
	}
	return strings.Join(parts, "\n")
}

// formatChatHistory renders stored messages chronologically, oldest first,
// one "ROLE: content" line each. Input arrives most-recent-first from the
// history store.
func formatChatHistory(messages []datatypes.Message) string {
	if len(messages) == 0 {
		return ""
	}
	lines := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		role := "USER"
		if messages[i].Role == datatypes.RoleAssistant {
			role = "ASSISTANT"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, messages[i].Content))
	}
	return strings.Join(lines, "\n")
}

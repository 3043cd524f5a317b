// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openaiTracer = otel.Tracer("ragchat.llm.openai")

// openaiSecretPath is checked when no API key is configured; container
// deployments mount the key there.
const openaiSecretPath = "/run/secrets/openai_api_key"

// OpenAIConfig configures the OpenAI-compatible backend. BaseURL allows
// pointing at any API-compatible server.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// SystemPrompt is prepended as the system message. Empty uses a plain
	// assistant persona.
	SystemPrompt string
}

func (c *OpenAIConfig) applyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.APIKey == "" {
		if raw, err := os.ReadFile(openaiSecretPath); err == nil {
			c.APIKey = strings.TrimSpace(string(raw))
			slog.Info("Read the OpenAI API key from mounted secret", "path", openaiSecretPath)
		}
	}
	if c.Model == "" {
		c.Model = os.Getenv("OPENAI_MODEL")
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = "You are a helpful assistant."
	}
}

// Validate checks the config can authenticate.
func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: no OpenAI API key in config, env, or %s", ErrMissingConfig, openaiSecretPath)
	}
	return nil
}

// Compile-time interface implementation check.
var _ LLMClient = (*OpenAIClient)(nil)

// OpenAIClient implements LLMClient on the OpenAI chat completions API.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// NewOpenAIClient builds the client, filling missing settings from the
// environment.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	slog.Info("Initializing OpenAI client", "model", cfg.Model, "base_url", clientCfg.BaseURL)
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

func (o *OpenAIClient) completionRequest(prompt string, params GenerationParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

// Generate implements the LLMClient interface.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))
	slog.Debug("Generating text via OpenAI", "model", o.model)

	resp, err := o.client.CreateChatCompletion(ctx, o.completionRequest(prompt, params))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", ErrEmptyCompletion
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream implements the LLMClient interface. Tokens are forwarded to
// cb as they arrive; the terminal event is emitted exactly once.
func (o *OpenAIClient) GenerateStream(ctx context.Context, prompt string, params GenerationParams, cb StreamCallback) (string, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	req := o.completionRequest(prompt, params)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream open failed")
		_ = cb(StreamEvent{Type: StreamEventError, Error: err.Error()})
		return "", fmt.Errorf("OpenAI stream open failed: %w", err)
	}
	defer stream.Close()

	var answer strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream receive failed")
			_ = cb(StreamEvent{Type: StreamEventError, Error: err.Error()})
			return answer.String(), fmt.Errorf("OpenAI stream receive failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		answer.WriteString(token)
		if err := cb(StreamEvent{Type: StreamEventToken, Content: token}); err != nil {
			return answer.String(), fmt.Errorf("stream callback aborted: %w", err)
		}
	}

	if err := cb(StreamEvent{Type: StreamEventDone}); err != nil {
		return answer.String(), fmt.Errorf("stream callback aborted: %w", err)
	}
	span.SetAttributes(attribute.Int("llm.answer_bytes", answer.Len()))
	return answer.String(), nil
}

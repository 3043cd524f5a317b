// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ollamaTracer = otel.Tracer("ragchat.llm.ollama")

// OllamaConfig configures the local Ollama backend.
type OllamaConfig struct {
	BaseURL string
	Model   string

	// Timeout bounds a whole generate call, streamed or not. Local models
	// can be slow to load, so the default is generous.
	Timeout time.Duration
}

func (c *OllamaConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if c.Model == "" {
		c.Model = os.Getenv("OLLAMA_MODEL")
	}
	if c.Model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting to llama3")
		c.Model = "llama3"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Validate checks the backend is addressable.
func (c *OllamaConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: no Ollama base URL in config or OLLAMA_BASE_URL", ErrMissingConfig)
	}
	return nil
}

// Ollama API request/response shapes for /api/generate.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
}

// Compile-time interface implementation check.
var _ LLMClient = (*OllamaClient)(nil)

// OllamaClient implements LLMClient against a local Ollama server.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient builds the client, filling missing settings from the
// environment.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Info("Initializing Ollama client", "base_url", cfg.BaseURL, "default_model", cfg.Model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
	}, nil
}

// options maps GenerationParams onto Ollama's option names, with the same
// conservative defaults for chat answering whether the caller set them or
// not.
func (o *OllamaClient) options(params GenerationParams) map[string]any {
	options := make(map[string]any)
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	} else {
		options["top_k"] = 20
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	} else {
		options["top_p"] = float32(0.9)
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	} else {
		options["num_predict"] = 8192
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}

func (o *OllamaClient) post(ctx context.Context, payload ollamaGenerateRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return o.httpClient.Do(req)
}

// statusError converts a non-200 response into a caller-friendly error. A 404
// whose body names a missing model gets a pull hint.
func (o *OllamaClient) statusError(statusCode int, body []byte) error {
	if statusCode == http.StatusNotFound {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil &&
			strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
			slog.Warn("Ollama model not found", "model", o.model)
			return fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'", o.model, o.model)
		}
	}
	slog.Error("Ollama returned an error", "status_code", statusCode, "response", string(body))
	return fmt.Errorf("Ollama failed with status %d: %s", statusCode, string(body))
}

// Generate implements the LLMClient interface.
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := ollamaTracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))
	slog.Debug("Generating text via Ollama", "model", o.model)

	resp, err := o.post(ctx, ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: o.options(params),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "api call failed")
		slog.Error("Ollama API call failed", "error", err)
		return "", fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "body read failed")
		return "", fmt.Errorf("failed to read response body from Ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := o.statusError(resp.StatusCode, body)
		span.RecordError(err)
		span.SetStatus(codes.Error, "non-200 status")
		return "", err
	}

	var ollamaResp ollamaGenerateResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		slog.Error("Failed to parse JSON response from Ollama", "error", err, "response", string(body))
		return "", fmt.Errorf("failed to parse Ollama response: %w", err)
	}
	slog.Debug("Received response from Ollama")
	return ollamaResp.Response, nil
}

// GenerateStream implements the LLMClient interface by decoding the NDJSON
// stream /api/generate produces when stream is true: one JSON object per
// line, a fragment in each, done=true on the last.
func (o *OllamaClient) GenerateStream(ctx context.Context, prompt string, params GenerationParams, cb StreamCallback) (string, error) {
	ctx, span := ollamaTracer.Start(ctx, "OllamaClient.GenerateStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	resp, err := o.post(ctx, ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  true,
		Options: o.options(params),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "api call failed")
		_ = cb(StreamEvent{Type: StreamEventError, Error: err.Error()})
		return "", fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := o.statusError(resp.StatusCode, body)
		span.RecordError(err)
		span.SetStatus(codes.Error, "non-200 status")
		_ = cb(StreamEvent{Type: StreamEventError, Error: err.Error()})
		return "", err
	}

	var answer strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream parse failed")
			_ = cb(StreamEvent{Type: StreamEventError, Error: err.Error()})
			return answer.String(), fmt.Errorf("failed to parse Ollama stream chunk: %w", err)
		}
		if chunk.Error != "" {
			err := fmt.Errorf("Ollama stream error: %s", chunk.Error)
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream error chunk")
			_ = cb(StreamEvent{Type: StreamEventError, Error: chunk.Error})
			return answer.String(), err
		}
		if chunk.Response != "" {
			answer.WriteString(chunk.Response)
			if err := cb(StreamEvent{Type: StreamEventToken, Content: chunk.Response}); err != nil {
				return answer.String(), fmt.Errorf("stream callback aborted: %w", err)
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream read failed")
		_ = cb(StreamEvent{Type: StreamEventError, Error: err.Error()})
		return answer.String(), fmt.Errorf("Ollama stream read failed: %w", err)
	}

	if err := cb(StreamEvent{Type: StreamEventDone}); err != nil {
		return answer.String(), fmt.Errorf("stream callback aborted: %w", err)
	}
	span.SetAttributes(attribute.Int("llm.answer_bytes", answer.Len()))
	return answer.String(), nil
}

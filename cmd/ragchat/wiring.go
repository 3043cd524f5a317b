// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/kelpline/ragchat/cmd/ragchat/config"
	"github.com/kelpline/ragchat/services/history"
	"github.com/kelpline/ragchat/services/llm"
	"github.com/kelpline/ragchat/services/ratelimit"
	"github.com/kelpline/ragchat/services/vectorstore"
	"github.com/redis/go-redis/v9"
)

// Constructors for the pipeline's backends, one per config section. Every
// command builds only what it needs; serve builds all of them.

func buildStore(cfg *config.RagchatConfig) (*vectorstore.WeaviateStore, error) {
	return vectorstore.NewWeaviateStore(vectorstore.Config{
		URL:       cfg.Weaviate.URL,
		ClassName: cfg.Weaviate.ClassName,
	})
}

// redisClient is shared by the history store and the limiter so one
// connection pool serves both.
func redisClient(cfg *config.RagchatConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func buildHistory(cfg *config.RagchatConfig) (history.MessageHistory, error) {
	return history.NewRedisHistory(history.RedisConfig{Client: redisClient(cfg)})
}

func buildLimiter(cfg *config.RagchatConfig) (ratelimit.Limiter, error) {
	if !cfg.Ratelimit.Enabled {
		return nil, nil
	}
	window := time.Duration(cfg.Ratelimit.WindowSeconds) * time.Second
	switch cfg.Ratelimit.Backend {
	case "local":
		return ratelimit.NewLocalLimiter(cfg.Ratelimit.Requests, window), nil
	default:
		return ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Client:   redisClient(cfg),
			Requests: int64(cfg.Ratelimit.Requests),
			Window:   window,
		})
	}
}

func buildLLM(cfg *config.RagchatConfig) (llm.LLMClient, error) {
	switch cfg.LLM.Backend {
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:      cfg.LLM.BaseURL,
			Model:        cfg.LLM.Model,
			SystemPrompt: cfg.LLM.SystemPrompt,
		})
	case "ollama":
		return llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported llm backend %q", cfg.LLM.Backend)
	}
}

// modelName labels persisted assistant messages with what produced them.
func modelName(cfg *config.RagchatConfig) string {
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model
	}
	return cfg.LLM.Backend
}

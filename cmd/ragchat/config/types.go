// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the service configuration from a YAML file, with
// environment variables overriding individual fields for container
// deployments.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kelpline/ragchat/pkg/logging"
)

// RagchatConfig is the root configuration for every ragchat command.
type RagchatConfig struct {
	Server    ServerConfig   `yaml:"server"`
	Logging   logging.Config `yaml:"logging"`
	Weaviate  WeaviateConfig `yaml:"weaviate"`
	Redis     RedisConfig    `yaml:"redis"`
	LLM       LLMConfig      `yaml:"llm"`
	Ratelimit RLConfig       `yaml:"ratelimit"`
	Tracing   TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Port int `yaml:"port"` // e.g. 8440
}

type WeaviateConfig struct {
	URL       string `yaml:"url"`        // e.g. http://localhost:8080
	ClassName string `yaml:"class_name"` // empty uses the store default
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // e.g. localhost:6379
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

type LLMConfig struct {
	// Backend can be "ollama" or "openai".
	Backend      string `yaml:"backend"`
	Model        string `yaml:"model,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
}

type RLConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend can be "redis" (shared budget across replicas) or "local"
	// (per-process token buckets).
	Backend       string `yaml:"backend"`
	Requests      int    `yaml:"requests"`
	WindowSeconds int    `yaml:"window_seconds"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP gRPC collector, host:port
}

// DefaultConfig is what first run writes to disk: a single-host stack with
// every dependency on localhost and rate limiting off.
func DefaultConfig() RagchatConfig {
	return RagchatConfig{
		Server: ServerConfig{Port: 8440},
		Logging: logging.Config{
			Level:   logging.LevelInfo,
			Service: "ragchat",
		},
		Weaviate: WeaviateConfig{URL: "http://localhost:8080"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		LLM:      LLMConfig{Backend: "ollama"},
		Ratelimit: RLConfig{
			Backend:       "redis",
			Requests:      10,
			WindowSeconds: 60,
		},
	}
}

// applyEnv overlays environment variables onto the file config. Env wins so
// compose files can point one image at different backends.
func (c *RagchatConfig) applyEnv() {
	if v := os.Getenv("RAGCHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("WEAVIATE_SERVICE_URL"); v != "" {
		c.Weaviate.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("LLM_BACKEND_TYPE"); v != "" {
		c.LLM.Backend = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
		c.Tracing.Enabled = true
	}
}

// Validate rejects configs no command could run with.
func (c *RagchatConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.LLM.Backend {
	case "ollama", "openai":
	default:
		return fmt.Errorf("llm.backend %q is not supported (ollama, openai)", c.LLM.Backend)
	}
	if c.Ratelimit.Enabled {
		switch c.Ratelimit.Backend {
		case "redis", "local":
		default:
			return fmt.Errorf("ratelimit.backend %q is not supported (redis, local)", c.Ratelimit.Backend)
		}
	}
	return nil
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kelpline/ragchat/cmd/ragchat/config"
	"github.com/kelpline/ragchat/services/llm"
	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/kelpline/ragchat/services/orchestrator/services"
	"github.com/spf13/cobra"
)

// runAsk answers one question in-process, without going through the HTTP
// surface. Useful for smoke-testing a deployment and for scripting.
func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure weaviate schema: %w", err)
	}
	hist, err := buildHistory(cfg)
	if err != nil {
		return err
	}
	llmClient, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	chat, err := services.NewRAGChat(services.RAGChatConfig{
		Store:     store,
		History:   hist,
		LLM:       llmClient,
		ModelName: modelName(cfg),
	})
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	opts := &datatypes.ChatOptions{
		SessionID: sessionID,
		Namespace: namespace,
		TopK:      topK,
	}

	if streamAnswer {
		_, err := chat.ChatStream(cmd.Context(), question, opts, func(e llm.StreamEvent) error {
			if e.Type == llm.StreamEventToken {
				fmt.Print(e.Content)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Println()
		return nil
	}

	resp, err := chat.Chat(cmd.Context(), question, opts)
	if err != nil {
		return err
	}
	fmt.Println(resp.Answer)
	return nil
}

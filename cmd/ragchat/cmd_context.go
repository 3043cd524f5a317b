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
	"os"
	"path/filepath"
	"strings"

	"github.com/kelpline/ragchat/cmd/ragchat/config"
	"github.com/kelpline/ragchat/services/contextservice"
	"github.com/kelpline/ragchat/services/orchestrator/datatypes"
	"github.com/spf13/cobra"
)

// inferFileType maps a file extension onto a loader. The --file-type flag
// overrides it.
func inferFileType(path string) contextservice.FileType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return contextservice.FileTypePDF
	case ".csv":
		return contextservice.FileTypeCSV
	default:
		return contextservice.FileTypeText
	}
}

func buildContextService(cfg *config.RagchatConfig) (*contextservice.Service, error) {
	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure weaviate schema: %w", err)
	}
	return contextservice.NewService(store)
}

// runIngest pushes each argument into the vector store. Arguments naming an
// existing file are chunked through the matching loader; anything else is
// ingested verbatim as one text record.
func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	svc, err := buildContextService(cfg)
	if err != nil {
		return err
	}

	opts := datatypes.AddContextOptions{
		Namespace:   namespace,
		MetadataKey: metadataKey,
	}

	ctx := cmd.Context()
	for _, arg := range args {
		var payload contextservice.Payload
		if info, err := os.Stat(arg); err == nil && !info.IsDir() {
			ft := contextservice.FileType(fileType)
			if ft == "" {
				ft = inferFileType(arg)
			}
			payload = contextservice.FilePayload{
				Path:         arg,
				Type:         ft,
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			}
		} else {
			payload = contextservice.TextPayload{Text: arg}
		}

		result, err := svc.Add(ctx, payload, opts)
		if err != nil {
			return fmt.Errorf("ingest %q: %w", arg, err)
		}
		if result.Status != contextservice.AddOK {
			return fmt.Errorf("ingest %q: vector store rejected the payload", arg)
		}
		fmt.Printf("Ingested %s (%d chunks)\n", arg, len(result.IDs))
	}
	return nil
}

// runReset wipes one namespace of the vector store.
func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	svc, err := buildContextService(cfg)
	if err != nil {
		return err
	}

	if err := svc.Reset(cmd.Context(), namespace); err != nil {
		return err
	}
	if namespace == "" {
		fmt.Println("Reset the default namespace")
	} else {
		fmt.Printf("Reset namespace %s\n", namespace)
	}
	return nil
}

// runSessionClear deletes one session's stored history.
func runSessionClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	hist, err := buildHistory(cfg)
	if err != nil {
		return err
	}

	if err := hist.Clear(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Cleared session %s\n", args[0])
	return nil
}

// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath   string
	sessionID    string
	namespace    string
	metadataKey  string
	topK         int
	streamAnswer bool
	chunkSize    int
	chunkOverlap int
	fileType     string

	rootCmd = &cobra.Command{
		Use:   "ragchat",
		Short: "A retrieval-augmented chat service over your own documents",
		Long: `Ragchat serves question answering grounded in a vector store:
documents go in through ingest, questions come back answered with the
matching context and the running conversation history.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP chat service",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	ingestCmd = &cobra.Command{
		Use:     "ingest [path...]",
		Short:   "Ingest documents or raw text into the vector store",
		Aliases: []string{"i"},
		Args:    cobra.MinimumNArgs(1),
		RunE:    runIngest, // Defined in cmd_context.go
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question against the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk, // Defined in cmd_ask.go
	}

	// --- Context Administration ---
	contextCmd = &cobra.Command{
		Use:   "context",
		Short: "Administer the vector store contents",
	}
	contextResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Delete every record in one namespace",
		RunE:  runReset, // Defined in cmd_context.go
	}

	// --- Session Administration ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Administer chat sessions",
	}
	sessionClearCmd = &cobra.Command{
		Use:   "clear [session-id]",
		Short: "Delete the stored history of one session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionClear, // Defined in cmd_context.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the config file (default ~/.ragchat/ragchat.yaml)")

	rootCmd.AddCommand(serveCmd)

	ingestCmd.Flags().StringVar(&namespace, "namespace", "", "Namespace to ingest into")
	ingestCmd.Flags().StringVar(&metadataKey, "metadata-key", "", "Metadata field holding the chunk text")
	ingestCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (0 uses the default)")
	ingestCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Chunk overlap in characters (0 uses the default)")
	ingestCmd.Flags().StringVar(&fileType, "file-type", "", "Force the loader: pdf, csv, or text")
	rootCmd.AddCommand(ingestCmd)

	askCmd.Flags().StringVar(&sessionID, "session", "", "Session id for conversation continuity")
	askCmd.Flags().StringVar(&namespace, "namespace", "", "Namespace to retrieve from")
	askCmd.Flags().IntVar(&topK, "top-k", 0, "Number of context chunks to retrieve (0 uses the default)")
	askCmd.Flags().BoolVar(&streamAnswer, "stream", false, "Stream tokens as they are generated")
	rootCmd.AddCommand(askCmd)

	contextResetCmd.Flags().StringVar(&namespace, "namespace", "", "Namespace to reset")
	contextCmd.AddCommand(contextResetCmd)
	rootCmd.AddCommand(contextCmd)

	sessionCmd.AddCommand(sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

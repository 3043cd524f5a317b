// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kelpline/ragchat/cmd/ragchat/config"
	"github.com/kelpline/ragchat/pkg/logging"
	"github.com/kelpline/ragchat/services/contextservice"
	"github.com/kelpline/ragchat/services/orchestrator/observability"
	"github.com/kelpline/ragchat/services/orchestrator/routes"
	"github.com/kelpline/ragchat/services/orchestrator/services"
	"github.com/spf13/cobra"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// initTracer points the global tracer provider at an OTLP collector. The
// returned func flushes pending spans; call it on shutdown.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("ragchat")))
	if err != nil {
		return nil, err
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter)))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down the OTLP exporter", "error", err)
		}
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logger.Close()

	if cfg.Tracing.Enabled {
		cleanup, err := initTracer(cfg.Tracing.Endpoint)
		if err != nil {
			return fmt.Errorf("set up the OTLP tracer: %w", err)
		}
		defer cleanup(context.Background())
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureSchema(schemaCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ensure weaviate schema: %w", err)
	}

	hist, err := buildHistory(cfg)
	if err != nil {
		return err
	}
	limiter, err := buildLimiter(cfg)
	if err != nil {
		return err
	}
	llmClient, err := buildLLM(cfg)
	if err != nil {
		return err
	}

	metrics := observability.InitMetrics()
	chat, err := services.NewRAGChat(services.RAGChatConfig{
		Store:     store,
		History:   hist,
		LLM:       llmClient,
		Limiter:   limiter,
		Metrics:   metrics,
		ModelName: modelName(cfg),
	})
	if err != nil {
		return err
	}
	contexts, err := contextservice.NewService(store)
	if err != nil {
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("ragchat"))
	routes.SetupRoutes(router, chat, contexts, metrics)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting the chat server", "port", cfg.Server.Port, "llm_backend", cfg.LLM.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

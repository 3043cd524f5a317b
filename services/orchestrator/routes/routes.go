// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the HTTP surface onto a gin router. All chat and
// context endpoints live under /v1; health and metrics sit at the root.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/kelpline/ragchat/services/contextservice"
	"github.com/kelpline/ragchat/services/orchestrator/handlers"
	"github.com/kelpline/ragchat/services/orchestrator/observability"
	"github.com/kelpline/ragchat/services/orchestrator/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every endpoint the service exposes.
func SetupRoutes(router *gin.Engine, chat *services.RAGChat, contexts *contextservice.Service,
	metrics *observability.ChatMetrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", handlers.HandleChat(chat))

		// Context administration routes
		v1.POST("/context", handlers.HandleAddContext(contexts, metrics))
		v1.DELETE("/context", handlers.HandleDeleteContext(contexts))
		v1.POST("/context/reset", handlers.HandleResetContext(contexts))

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:sessionId/history", handlers.GetSessionHistory(chat))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(chat))
		}
	}
}

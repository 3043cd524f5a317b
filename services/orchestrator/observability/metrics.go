// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the chat pipeline.
//
// # Description
//
// Metrics cover the full request lifecycle:
//   - Chat request counters by delivery mode and outcome
//   - Rate-limit denial counter
//   - Retrieval match-count histogram (post threshold filtering)
//   - Ingested chunk counter
//   - Chat duration histogram and active stream gauge
//
// # Integration
//
// Exposed via the /metrics endpoint. All helper methods are nil-receiver
// safe, so components can treat metrics as optional wiring.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics.
const metricsNamespace = "ragchat"

// Outcome labels a finished chat request.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailed  Outcome = "failed"
)

// Mode labels the delivery mode of a chat request.
type Mode string

const (
	ModeBuffered  Mode = "buffered"
	ModeStreaming Mode = "streaming"
)

// ChatMetrics holds all Prometheus metrics for the chat pipeline.
// Initialize once at startup via InitMetrics().
type ChatMetrics struct {
	// ChatRequestsTotal counts chat requests.
	// Labels: mode (buffered, streaming), outcome (success, denied, failed)
	ChatRequestsTotal *prometheus.CounterVec

	// ChatDurationSeconds measures end-to-end chat latency.
	// Labels: mode
	ChatDurationSeconds *prometheus.HistogramVec

	// RateLimitDenialsTotal counts denied admission checks.
	RateLimitDenialsTotal prometheus.Counter

	// RetrievalMatches observes how many matches survived threshold
	// filtering per request. A distribution stuck at zero means the corpus
	// and the questions do not overlap.
	RetrievalMatches prometheus.Histogram

	// IngestedChunksTotal counts records written through the context
	// service.
	IngestedChunksTotal prometheus.Counter

	// ActiveStreams tracks currently open token streams.
	ActiveStreams prometheus.Gauge
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all pipeline metrics. Call once at
// startup; a second call panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		ChatRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chat_requests_total",
				Help:      "Total chat requests by delivery mode and outcome",
			},
			[]string{"mode", "outcome"},
		),

		ChatDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "chat_duration_seconds",
				Help:      "End-to-end chat request duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 120.0},
			},
			[]string{"mode"},
		),

		RateLimitDenialsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ratelimit_denials_total",
				Help:      "Total chat requests denied by the rate limiter",
			},
		),

		RetrievalMatches: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "retrieval_matches",
				Help:      "Vector matches per request after threshold filtering",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
			},
		),

		IngestedChunksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ingested_chunks_total",
				Help:      "Total context records ingested into the vector store",
			},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_streams",
				Help:      "Currently open token streams",
			},
		),
	}
	return DefaultMetrics
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordChat records a finished chat request.
func (m *ChatMetrics) RecordChat(mode Mode, outcome Outcome, seconds float64) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(string(mode), string(outcome)).Inc()
	m.ChatDurationSeconds.WithLabelValues(string(mode)).Observe(seconds)
}

// RecordDenial counts one rate-limit denial.
func (m *ChatMetrics) RecordDenial() {
	if m == nil {
		return
	}
	m.RateLimitDenialsTotal.Inc()
}

// RecordRetrieval observes the post-filter match count for one request.
func (m *ChatMetrics) RecordRetrieval(matches int) {
	if m == nil {
		return
	}
	m.RetrievalMatches.Observe(float64(matches))
}

// RecordIngestedChunks counts records written by one ingestion call.
func (m *ChatMetrics) RecordIngestedChunks(n int) {
	if m == nil {
		return
	}
	m.IngestedChunksTotal.Add(float64(n))
}

// StreamStarted increments the active stream gauge.
func (m *ChatMetrics) StreamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active stream gauge.
func (m *ChatMetrics) StreamEnded() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}

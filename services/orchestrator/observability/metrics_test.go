// Copyright (C) 2025 Kelpline Labs (oss@kelpline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ============================================================================
// Test Helper: Create isolated metrics for testing
// ============================================================================

// newTestMetrics creates a ChatMetrics instance with a custom registry. This
// avoids conflicts with the global Prometheus registry and allows parallel
// testing.
func newTestMetrics(t *testing.T) *ChatMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	chatRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_requests_total",
			Help:      "Total chat requests by delivery mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	chatDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "chat_duration_seconds",
			Help:      "End-to-end chat request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 120.0},
		},
		[]string{"mode"},
	)

	rateLimitDenialsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ratelimit_denials_total",
			Help:      "Total chat requests denied by the rate limiter",
		},
	)

	retrievalMatches := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "retrieval_matches",
			Help:      "Vector matches per request after threshold filtering",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		},
	)

	ingestedChunksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingested_chunks_total",
			Help:      "Total context records ingested into the vector store",
		},
	)

	activeStreams := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_streams",
			Help:      "Currently open token streams",
		},
	)

	reg.MustRegister(
		chatRequestsTotal,
		chatDurationSeconds,
		rateLimitDenialsTotal,
		retrievalMatches,
		ingestedChunksTotal,
		activeStreams,
	)

	return &ChatMetrics{
		ChatRequestsTotal:     chatRequestsTotal,
		ChatDurationSeconds:   chatDurationSeconds,
		RateLimitDenialsTotal: rateLimitDenialsTotal,
		RetrievalMatches:      retrievalMatches,
		IngestedChunksTotal:   ingestedChunksTotal,
		ActiveStreams:         activeStreams,
	}
}

// ============================================================================
// RecordChat Tests
// ============================================================================

func TestChatMetrics_RecordChat(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordChat(ModeBuffered, OutcomeSuccess, 0.8)
	m.RecordChat(ModeBuffered, OutcomeSuccess, 1.2)
	m.RecordChat(ModeStreaming, OutcomeFailed, 0.1)

	successVal := testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("buffered", "success"))
	if successVal != 2 {
		t.Errorf("ChatRequestsTotal[buffered,success] = %f, want 2", successVal)
	}

	failedVal := testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("streaming", "failed"))
	if failedVal != 1 {
		t.Errorf("ChatRequestsTotal[streaming,failed] = %f, want 1", failedVal)
	}

	if count := testutil.CollectAndCount(m.ChatDurationSeconds); count == 0 {
		t.Error("Expected duration observations to be collected")
	}
}

// ============================================================================
// Denial / Retrieval / Ingestion Tests
// ============================================================================

func TestChatMetrics_RecordDenial(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDenial()
	m.RecordDenial()

	val := testutil.ToFloat64(m.RateLimitDenialsTotal)
	if val != 2 {
		t.Errorf("RateLimitDenialsTotal = %f, want 2", val)
	}
}

func TestChatMetrics_RecordRetrieval(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRetrieval(0)
	m.RecordRetrieval(3)
	m.RecordRetrieval(5)

	if count := testutil.CollectAndCount(m.RetrievalMatches); count == 0 {
		t.Error("Expected retrieval observations to be collected")
	}
}

func TestChatMetrics_RecordIngestedChunks(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordIngestedChunks(7)
	m.RecordIngestedChunks(3)

	val := testutil.ToFloat64(m.IngestedChunksTotal)
	if val != 10 {
		t.Errorf("IngestedChunksTotal = %f, want 10", val)
	}
}

// ============================================================================
// Stream Gauge Tests
// ============================================================================

func TestChatMetrics_StreamLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamStarted()
	m.StreamStarted()

	val := testutil.ToFloat64(m.ActiveStreams)
	if val != 2 {
		t.Errorf("After 2 starts: ActiveStreams = %f, want 2", val)
	}

	m.StreamEnded()
	m.StreamEnded()

	val = testutil.ToFloat64(m.ActiveStreams)
	if val != 0 {
		t.Errorf("After all ends: ActiveStreams = %f, want 0", val)
	}
}

// ============================================================================
// Nil Receiver Tests
// ============================================================================

// TestChatMetrics_NilReceiver verifies every helper is a no-op on a nil
// receiver, so metrics stay optional wiring.
func TestChatMetrics_NilReceiver(t *testing.T) {
	var m *ChatMetrics

	m.RecordChat(ModeBuffered, OutcomeSuccess, 1.0)
	m.RecordDenial()
	m.RecordRetrieval(5)
	m.RecordIngestedChunks(3)
	m.StreamStarted()
	m.StreamEnded()
}

// ============================================================================
// Concurrent Safety Tests
// ============================================================================

func TestChatMetrics_ConcurrentSafety(t *testing.T) {
	m := newTestMetrics(t)

	done := make(chan bool, 60)

	for i := 0; i < 20; i++ {
		go func() {
			m.RecordChat(ModeStreaming, OutcomeSuccess, 0.5)
			done <- true
		}()
	}
	for i := 0; i < 20; i++ {
		go func() {
			m.RecordDenial()
			done <- true
		}()
	}
	for i := 0; i < 20; i++ {
		go func() {
			m.StreamStarted()
			m.StreamEnded()
			done <- true
		}()
	}

	for i := 0; i < 60; i++ {
		<-done
	}

	requestsVal := testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("streaming", "success"))
	if requestsVal != 20 {
		t.Errorf("ChatRequestsTotal[streaming,success] = %f, want 20", requestsVal)
	}

	denialsVal := testutil.ToFloat64(m.RateLimitDenialsTotal)
	if denialsVal != 20 {
		t.Errorf("RateLimitDenialsTotal = %f, want 20", denialsVal)
	}
}

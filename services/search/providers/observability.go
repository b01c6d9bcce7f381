// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package providers

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// chatTracerName is the shared OTel tracer name for all ChatClient
// implementations.
const chatTracerName = "stocksearch.providers"

// Package-level Prometheus metrics for ChatClient operations.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// chatCallDuration measures the duration of ChatClient API calls.
	//
	// Labels:
	//   - provider: "clova", "openai"
	//   - status: "success" or "error"
	chatCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stocksearch",
			Subsystem: "chat",
			Name:      "call_duration_seconds",
			Help:      "Duration of ChatClient API calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// chatCallsTotal counts the total number of ChatClient API calls.
	chatCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stocksearch",
			Subsystem: "chat",
			Name:      "calls_total",
			Help:      "Total number of ChatClient API calls.",
		},
		[]string{"provider", "status"},
	)

	// chatErrorsTotal counts ChatClient errors by type.
	//
	// Labels:
	//   - provider: "clova", "openai"
	//   - error_type: "timeout", "auth", "rate_limit", "server", "unknown"
	chatErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stocksearch",
			Subsystem: "chat",
			Name:      "errors_total",
			Help:      "Total ChatClient errors by type.",
		},
		[]string{"provider", "error_type"},
	)
)

// classifyChatError maps an error to a label-safe error type string, keeping
// Prometheus label cardinality bounded.
func classifyChatError(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "returned 401") ||
		strings.Contains(msg, "returned 403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "returned 429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests"):
		return "rate_limit"
	case strings.Contains(msg, "returned 500") ||
		strings.Contains(msg, "returned 502") ||
		strings.Contains(msg, "returned 503") ||
		strings.Contains(msg, "server error"):
		return "server"
	default:
		return "unknown"
	}
}

// recordChatMetrics records metrics for a completed ChatClient call, success
// or error.
func recordChatMetrics(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		chatErrorsTotal.WithLabelValues(provider, classifyChatError(err)).Inc()
	}
	chatCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	chatCallsTotal.WithLabelValues(provider, status).Inc()
}

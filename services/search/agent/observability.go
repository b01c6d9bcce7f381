// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// tracer is the shared OTel tracer for the orchestration core.
var tracer = otel.Tracer("stocksearch.agent")

// Package-level Prometheus metrics. Auto-registered via promauto so no
// explicit registry wiring is needed.
var (
	// sessionsTotal counts finished sessions by terminal outcome.
	//
	// Labels:
	//   - outcome: "answer", "clarification", "degraded", "error"
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stocksearch",
		Subsystem: "router",
		Name:      "sessions_total",
		Help:      "Finished query sessions by terminal outcome.",
	}, []string{"outcome"})

	// stageTransitionsTotal counts state-machine transitions.
	stageTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stocksearch",
		Subsystem: "router",
		Name:      "stage_transitions_total",
		Help:      "Router state machine transitions.",
	}, []string{"from", "to"})

	// operationDuration measures backend operation execution time.
	//
	// Labels:
	//   - op: operation identifier
	//   - verdict: "success", "param_missing", "tool_error"
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stocksearch",
		Subsystem: "executor",
		Name:      "operation_duration_seconds",
		Help:      "Duration of backend operation executions.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"op", "verdict"})

	// volumeTruncationsTotal counts volume-control truncations.
	volumeTruncationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stocksearch",
		Subsystem: "router",
		Name:      "volume_truncations_total",
		Help:      "Result sets truncated by the volume controller.",
	})

	// clarificationsTotal counts clarification requests issued.
	clarificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stocksearch",
		Subsystem: "router",
		Name:      "clarifications_total",
		Help:      "Clarification requests returned to callers.",
	})

	// cacheHitsTotal counts executor result-cache hits per operation.
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stocksearch",
		Subsystem: "executor",
		Name:      "cache_hits_total",
		Help:      "Operation result cache hits.",
	}, []string{"op"})
)

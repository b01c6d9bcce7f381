// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command stocksearch starts the stock query API server.
//
// The server answers natural-language Korean stock market questions by
// routing each query through a planner oracle, a registry of market data
// operations over the daily SQLite snapshots, and a composer oracle.
//
// Usage:
//
//	CLOVASTUDIO_API_KEY=... go run ./cmd/stocksearch
//	CLOVASTUDIO_API_KEY=... go run ./cmd/stocksearch -config config.yaml -addr :9090
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/search/health
//
//	# Ask a question
//	curl -X POST http://localhost:8080/v1/search \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "2025-11-06 거래량 상위 10개 종목 알려줘"}'
//
//	# Answer a clarification (carry retry_count from the previous response)
//	curl -X POST http://localhost:8080/v1/search \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "11월 6일 기준으로", "retry_count": 1}'
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kquant/stocksearch/services/search"
	"github.com/kquant/stocksearch/services/search/config"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	addr := flag.String("addr", "", "Listen address override, e.g. :9090")
	debug := flag.Bool("debug", false, "Enable debug logging and Gin debug mode")
	traceStdout := flag.Bool("trace-stdout", false, "Export OTel spans to stdout")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing := setupTracing(*traceStdout, logger)
	defer shutdownTracing()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading configuration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	svc, err := search.New(cfg, logger)
	if err != nil {
		logger.Error("wiring service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer svc.Close()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("stocksearch"))
	if *debug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	search.RegisterRoutes(v1, search.NewHandlers(svc, logger))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.Server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}

// setupTracing installs the W3C propagator and, when requested, a stdout
// span exporter. Returns the shutdown hook.
func setupTracing(stdout bool, logger *slog.Logger) func() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !stdout {
		return func() {}
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		logger.Warn("stdout trace exporter unavailable", slog.String("error", err.Error()))
		return func() {}
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("tracer provider shutdown failed", slog.String("error", err.Error()))
		}
	}
}

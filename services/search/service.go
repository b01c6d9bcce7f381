// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search exposes the natural-language stock query agent over HTTP.
// It wires the market data store, the per-role oracle clients, the operation
// registry, and the router state machine into a single Service, and serves
// them through a small Gin surface.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kquant/stocksearch/services/search/agent"
	"github.com/kquant/stocksearch/services/search/cache"
	"github.com/kquant/stocksearch/services/search/config"
	"github.com/kquant/stocksearch/services/search/marketdata"
	"github.com/kquant/stocksearch/services/search/ops"
	"github.com/kquant/stocksearch/services/search/providers"
	"github.com/kquant/stocksearch/services/search/text2sql"
)

// Service owns the long-lived collaborators of the query agent.
//
// Description:
//
//	One Service is built at startup and shared by all requests. Each
//	incoming question runs as its own session through the router, so the
//	Service itself carries no per-request state.
//
// Thread Safety: safe for concurrent use after New returns.
type Service struct {
	store  *marketdata.Store
	cache  *cache.Store
	router *agent.Router
	logger *slog.Logger
}

// New wires a Service from configuration. On any wiring failure it closes
// whatever it already opened and returns the error.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := marketdata.Open(cfg.MarketData, logger)
	if err != nil {
		return nil, fmt.Errorf("opening market data: %w", err)
	}

	resultCache, err := cache.Open(cfg.Cache.Options(), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening result cache: %w", err)
	}

	closeAll := func() {
		resultCache.Close()
		store.Close()
	}

	planner, err := providersOracle(cfg.Providers.Planner, "planner", logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	composer, err := providersOracle(cfg.Providers.Composer, "composer", logger)
	if err != nil {
		closeAll()
		return nil, err
	}
	extractor, err := providersOracle(cfg.Providers.Extractor, "extractor", logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	sqlNode := text2sql.NewNode(store.StockDB(), extractor, logger)
	registry := ops.NewRegistry(store, ops.NewExtractor(extractor, logger), sqlNode.Execute, logger)
	executor := agent.NewExecutor(registry, resultCache, logger)
	router := agent.NewRouter(planner, composer, registry, executor, agent.Config{
		RetryCap:      cfg.Agent.RetryCap,
		VolumeCeiling: cfg.Agent.VolumeCeiling,
	}, logger)

	return &Service{
		store:  store,
		cache:  resultCache,
		router: router,
		logger: logger,
	}, nil
}

// Close releases the store and the cache.
func (s *Service) Close() error {
	cacheErr := s.cache.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return cacheErr
}

// providersOracle builds one role's oracle and names the role in the error.
func providersOracle(cfg providers.RoleConfig, role string, logger *slog.Logger) (*providers.Oracle, error) {
	oracle, err := providers.NewOracleFromConfig(cfg, logger.With(slog.String("role", role)))
	if err != nil {
		return nil, fmt.Errorf("building %s oracle: %w", role, err)
	}
	return oracle, nil
}

// Answer runs one question through the agent. retryCount carries the
// clarification counter from a previous exchange; zero starts fresh.
func (s *Service) Answer(ctx context.Context, question string, retryCount int) (agent.Result, error) {
	sess := agent.NewSession(question)
	if retryCount > 0 {
		sess.RetryCount = retryCount
	}
	return s.router.RunSession(ctx, sess)
}

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package providers

import (
	"fmt"
	"log/slog"
)

// Provider identifiers accepted by the factory.
const (
	ProviderClova  = "clova"
	ProviderOpenAI = "openai"
)

// ValidProviders lists the accepted provider identifiers, for error text.
var ValidProviders = []string{ProviderClova, ProviderOpenAI}

// RoleConfig configures one oracle role (planner, composer, extractor).
type RoleConfig struct {
	// Provider selects the backend, "clova" or "openai".
	Provider string `yaml:"provider"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model"`

	// APIKey authenticates requests. Usually injected from the environment.
	APIKey string `yaml:"-"`

	// BaseURL overrides the provider endpoint. Empty selects the public one.
	BaseURL string `yaml:"base_url"`

	// RPS caps outbound requests per second. Zero disables the limiter.
	RPS float64 `yaml:"rps"`

	// Temperature, MaxTokens, and TopP are the default chat options for
	// this role.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
}

// NewChatClient creates the ChatClient for one role configuration, with the
// rate limiter applied when configured.
func NewChatClient(cfg RoleConfig, logger *slog.Logger) (ChatClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		client ChatClient
		err    error
	)
	switch cfg.Provider {
	case ProviderClova:
		client, err = NewClovaClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderOpenAI:
		client, err = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %q (valid: %v)", cfg.Provider, ValidProviders)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("chat client created",
		slog.String("provider", cfg.Provider),
		slog.String("model", cfg.Model),
		slog.Float64("rps", cfg.RPS),
	)
	return WithRateLimit(client, cfg.RPS, 1), nil
}

// NewOracleFromConfig builds the oracle adapter for one role in a single
// step: client plus the role's default chat options.
func NewOracleFromConfig(cfg RoleConfig, logger *slog.Logger) (*Oracle, error) {
	client, err := NewChatClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewOracle(client, ChatOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
	}), nil
}

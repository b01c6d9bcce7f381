// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the service configuration: embedded defaults, an
// optional YAML file on top, then environment overrides for secrets and the
// listen address.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kquant/stocksearch/services/search/cache"
	"github.com/kquant/stocksearch/services/search/marketdata"
	"github.com/kquant/stocksearch/services/search/providers"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the full service configuration.
//
// Thread Safety: Immutable after Load; safe for concurrent use.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Providers  ProvidersConfig   `yaml:"providers"`
	MarketData marketdata.Config `yaml:"marketdata"`
	Cache      CacheConfig       `yaml:"cache"`
	Agent      AgentConfig       `yaml:"agent"`
}

// ServerConfig covers the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`
}

// ProvidersConfig holds one oracle role configuration per agent concern.
type ProvidersConfig struct {
	// Planner turns a question into tool directives.
	Planner providers.RoleConfig `yaml:"planner"`

	// Composer writes the final answer from collected results.
	Composer providers.RoleConfig `yaml:"composer"`

	// Extractor fills parameter schemas and generates SQL.
	Extractor providers.RoleConfig `yaml:"extractor"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	// Path is the Badger directory. Empty runs in memory.
	Path string `yaml:"path"`

	// TTLHours bounds cached-result age.
	TTLHours int `yaml:"ttl_hours"`
}

// Options converts to the cache package's option type.
func (c CacheConfig) Options() cache.Options {
	return cache.Options{
		Path: c.Path,
		TTL:  time.Duration(c.TTLHours) * time.Hour,
	}
}

// AgentConfig covers router policy knobs.
type AgentConfig struct {
	// RetryCap bounds clarification requests per session.
	RetryCap int `yaml:"retry_cap"`

	// VolumeCeiling bounds list-result rows before truncation.
	VolumeCeiling int `yaml:"volume_ceiling"`
}

// Load builds the configuration: embedded defaults, then the optional file
// at path, then environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal over the defaults: absent keys keep their default.
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv injects secrets and deployment overrides. API keys never live in
// YAML.
func (c *Config) applyEnv() {
	if addr := os.Getenv("STOCKSEARCH_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	clovaKey := os.Getenv("CLOVASTUDIO_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	for _, role := range []*providers.RoleConfig{
		&c.Providers.Planner, &c.Providers.Composer, &c.Providers.Extractor,
	} {
		switch role.Provider {
		case providers.ProviderClova:
			role.APIKey = clovaKey
		case providers.ProviderOpenAI:
			role.APIKey = openaiKey
		}
	}
}

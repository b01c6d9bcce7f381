// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "clova", cfg.Providers.Planner.Provider)
	assert.Equal(t, "HCX-007", cfg.Providers.Planner.Model)
	assert.Equal(t, "HCX-005", cfg.Providers.Composer.Model)
	assert.Equal(t, 2, cfg.Agent.RetryCap)
	assert.Equal(t, 100, cfg.Agent.VolumeCeiling)
	assert.Equal(t, 6*time.Hour, cfg.Cache.Options().TTL)
}

func TestLoad_FileOverridesKeepOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	override := `server:
  addr: ":9090"
providers:
  planner:
    model: HCX-DASH-002
`
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "HCX-DASH-002", cfg.Providers.Planner.Model)
	// Untouched keys keep their defaults.
	assert.Equal(t, "HCX-005", cfg.Providers.Composer.Model)
	assert.NotEmpty(t, cfg.MarketData.StockDB)
}

func TestLoad_EnvInjectsKeys(t *testing.T) {
	t.Setenv("CLOVASTUDIO_API_KEY", "nv-test-key")
	t.Setenv("STOCKSEARCH_ADDR", ":7070")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nv-test-key", cfg.Providers.Planner.APIKey)
	assert.Equal(t, "nv-test-key", cfg.Providers.Extractor.APIKey)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

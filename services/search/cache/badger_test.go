// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(Options{TTL: ttl}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("opening in-memory cache: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	if _, ok := s.Get(ctx, "get_stock_price", "삼성전자 종가는?"); ok {
		t.Fatal("empty cache must miss")
	}

	s.Set(ctx, "get_stock_price", "삼성전자 종가는?", "삼성전자 종가: 71,500원")
	got, ok := s.Get(ctx, "get_stock_price", "삼성전자 종가는?")
	if !ok || got != "삼성전자 종가: 71,500원" {
		t.Fatalf("round trip failed: %q, %v", got, ok)
	}
}

func TestStore_KeyIncludesOperation(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	s.Set(ctx, "get_stock_price", "삼성전자?", "가격 결과")
	if _, ok := s.Get(ctx, "search_volume", "삼성전자?"); ok {
		t.Error("same question under a different operation must miss")
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s := newTestStore(t, 50*time.Millisecond)
	ctx := context.Background()

	s.Set(ctx, "get_market_stats", "오늘 시장은?", "시장 통계")
	if _, ok := s.Get(ctx, "get_market_stats", "오늘 시장은?"); !ok {
		t.Fatal("fresh entry must hit")
	}

	time.Sleep(120 * time.Millisecond)
	if _, ok := s.Get(ctx, "get_market_stats", "오늘 시장은?"); ok {
		t.Error("expired entry must miss")
	}
}

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"context"
	"strings"
	"testing"

	"github.com/kquant/stocksearch/services/search/agent"
)

// newTestRegistry builds a registry whose extractions are served by a
// scripted oracle. The store is nil: these tests exercise the paths that
// reject a question before any query runs.
func newTestRegistry(reply string) *Registry {
	ex := NewExtractor(&scriptedOracle{reply: reply}, nil)
	computation := func(ctx context.Context, question string) (string, error) {
		return "sql 결과", nil
	}
	return NewRegistry(nil, ex, computation, nil)
}

func runOp(t *testing.T, r *Registry, name, question string) string {
	t.Helper()
	op, ok := r.Lookup(name)
	if !ok {
		t.Fatalf("operation %q not registered", name)
	}
	result, err := op.Handler(context.Background(), question)
	if err != nil {
		t.Fatalf("%s returned error: %v", name, err)
	}
	return result
}

func TestRegistry_TableShape(t *testing.T) {
	r := newTestRegistry("{}")

	if _, ok := r.Lookup("get_weather"); ok {
		t.Error("unknown operation should not resolve")
	}

	volumeSensitive := map[string]bool{
		"search_price": true, "search_price_change": true, "search_volume": true,
		"search_compound": true, "get_rsi_signals": true, "get_ma_breakout": true,
		"get_volume_surge": true, "get_cross_signals": true, agent.ComputationOp: true,
	}
	for _, name := range []string{
		"get_stock_price", "get_market_stats", "get_market_index", "search_company",
		"search_price", "search_price_change", "search_volume", "search_trading_value_ranking",
		"get_rsi_signals", "get_bollinger_signals", "get_ma_breakout", "get_volume_surge",
		"get_cross_signals", "count_cross_signals", "search_compound", agent.ComputationOp,
	} {
		op, ok := r.Lookup(name)
		if !ok {
			t.Errorf("operation %q missing from table", name)
			continue
		}
		if op.VolumeSensitive != volumeSensitive[name] {
			t.Errorf("%s volume sensitivity = %v", name, op.VolumeSensitive)
		}
	}

	desc := r.Descriptions()
	if !strings.Contains(desc, "- get_stock_price:") || !strings.Contains(desc, "- text2sql:") {
		t.Errorf("descriptions incomplete:\n%s", desc)
	}
	// Stable order: planning prompts must not shuffle between runs.
	if strings.Index(desc, "get_stock_price") > strings.Index(desc, "search_compound") {
		t.Errorf("descriptions out of registration order:\n%s", desc)
	}
}

func TestHandlers_MissingDate(t *testing.T) {
	r := newTestRegistry(`{"market": "KOSPI"}`)

	for _, name := range []string{"get_market_stats", "get_market_index", "search_trading_value_ranking"} {
		got := runOp(t, r, name, "지수 알려줘")
		if !strings.Contains(got, "날짜 정보를 찾을 수 없습니다") {
			t.Errorf("%s: expected date message, got %q", name, got)
		}
		if agent.Classify(got) != agent.VerdictParamMissing {
			t.Errorf("%s: message not classified as param_missing: %q", name, got)
		}
	}
}

func TestHandlers_MissingStock(t *testing.T) {
	r := newTestRegistry(`{"date": "2025-11-06"}`)

	got := runOp(t, r, "get_stock_price", "주가 알려줘")
	if !strings.Contains(got, "질문을 이해할 수 없습니다") {
		t.Errorf("expected stock message, got %q", got)
	}
	if agent.Classify(got) != agent.VerdictParamMissing {
		t.Errorf("message not classified as param_missing: %q", got)
	}
}

func TestRSISignals_NoBounds(t *testing.T) {
	r := newTestRegistry(`{"date": "2025-11-06", "rsi_min": null, "rsi_max": null}`)

	got := runOp(t, r, "get_rsi_signals", "RSI 종목 알려줘")
	if !strings.Contains(got, "조건을 찾을 수 없습니다") {
		t.Errorf("expected condition message, got %q", got)
	}
}

func TestVolumeSearch_ThresholdWithoutValue(t *testing.T) {
	r := newTestRegistry(`{"date": "2025-11-06", "ranking_type": "임계값검색"}`)

	got := runOp(t, r, "search_volume", "거래량 많은 종목")
	if !strings.Contains(got, "임계값을 찾을 수 없습니다") {
		t.Errorf("expected threshold message, got %q", got)
	}
	if agent.Classify(got) != agent.VerdictParamMissing {
		t.Errorf("message not classified as param_missing: %q", got)
	}
}

func TestPriceSearch_RangeWithoutBounds(t *testing.T) {
	r := newTestRegistry(`{"date": "2025-11-06", "search_type": "범위검색"}`)

	got := runOp(t, r, "search_price", "가격대 종목 검색")
	if !strings.Contains(got, "조건을 찾을 수 없습니다") {
		t.Errorf("expected condition message, got %q", got)
	}
}

func TestCompoundSearch_NoConditions(t *testing.T) {
	r := newTestRegistry(`{"date": "2025-11-06"}`)

	got := runOp(t, r, "search_compound", "좋은 종목 찾아줘")
	if !strings.Contains(got, "조건을 찾을 수 없습니다") {
		t.Errorf("expected condition message, got %q", got)
	}
}

func TestHandlers_ExtractionFailure(t *testing.T) {
	r := newTestRegistry("JSON이 아닌 응답")

	got := runOp(t, r, "get_market_stats", "시장 통계")
	if !strings.Contains(got, "파라미터를 추출할 수 없습니다") {
		t.Errorf("expected extraction-failure message, got %q", got)
	}
	if agent.Classify(got) != agent.VerdictParamMissing {
		t.Errorf("message not classified as param_missing: %q", got)
	}
}

func TestComputationOperation_Injected(t *testing.T) {
	r := newTestRegistry("{}")

	got := runOp(t, r, agent.ComputationOp, "상위 5% 종목은?")
	if got != "sql 결과" {
		t.Errorf("computation handler not wired: %q", got)
	}
}

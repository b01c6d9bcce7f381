// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kquant/stocksearch/services/search/agent"
	"github.com/kquant/stocksearch/services/search/marketdata"
)

// =============================================================================
// Missing-Parameter Messages
// =============================================================================

// Handlers report missing parameters with these messages. The validation
// classifier keys off their leading phrases, so the phrases are fixed; the
// trailing guidance is free text.
const (
	msgNoDate      = "날짜 정보를 찾을 수 없습니다. 질문에 날짜를 포함해 주세요."
	msgNoCondition = "조건을 찾을 수 없습니다. 구체적인 검색 조건을 포함해 주세요."
	msgNoThreshold = "임계값을 찾을 수 없습니다. 수치 기준을 포함해 주세요."
	msgNoParams    = "파라미터를 추출할 수 없습니다. 질문을 다시 작성해 주세요."
	msgNoStock     = "질문을 이해할 수 없습니다. 조회할 종목을 찾지 못했습니다."
)

// =============================================================================
// Capability Registry
// =============================================================================

// Registry is the fixed capability table: operation name to backend handler,
// in a stable order for the planning prompt.
type Registry struct {
	ops   map[string]agent.Operation
	order []string
}

// NewRegistry wires every operation against the market data store. The
// computation handler serves the SQL escalation path and is injected so this
// package stays independent of the SQL node.
func NewRegistry(
	store *marketdata.Store,
	params *Extractor,
	computation func(ctx context.Context, question string) (string, error),
	logger *slog.Logger,
) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	b := &backend{store: store, params: params, logger: logger}

	r := &Registry{ops: make(map[string]agent.Operation)}
	add := func(name, description string, volumeSensitive bool, handler func(ctx context.Context, question string) (string, error)) {
		r.ops[name] = agent.Operation{
			Name:            name,
			Description:     description,
			VolumeSensitive: volumeSensitive,
			Handler:         handler,
		}
		r.order = append(r.order, name)
	}

	add("get_stock_price", "특정 종목의 일자별 시가/고가/저가/종가/거래량 조회", false, b.stockPrice)
	add("get_market_stats", "특정 일자의 시장 전체 통계 (상승/하락 종목수, 평균 등락률)", false, b.marketStats)
	add("get_market_index", "KOSPI/KOSDAQ 지수 조회", false, b.marketIndex)
	add("search_company", "회사명으로 상장 종목 검색", false, b.companySearch)
	add("search_price", "가격 기준 순위/범위 검색 (가장 비싼 종목, 특정 가격대)", true, b.priceSearch)
	add("search_price_change", "등락률 기준 상승률/하락률 순위 및 범위 검색", true, b.priceChangeSearch)
	add("search_volume", "거래량 기준 순위/임계값 검색", true, b.volumeSearch)
	add("search_trading_value_ranking", "거래대금 상위 종목 조회", false, b.tradingRanking)
	add("get_rsi_signals", "RSI 조건 종목 검색 (과매수/과매도)", true, b.rsiSignals)
	add("get_bollinger_signals", "볼린저 밴드 상단/하단 터치 종목 검색", false, b.bollingerSignals)
	add("get_ma_breakout", "이동평균선 돌파 종목 검색", true, b.maBreakout)
	add("get_volume_surge", "거래량 급증 종목 검색 (20일 평균 대비)", true, b.volumeSurge)
	add("get_cross_signals", "골든크로스/데드크로스 발생 종목 검색", true, b.crossSignals)
	add("count_cross_signals", "특정 종목의 크로스 발생 횟수 조회", false, b.crossCount)
	add("search_compound", "가격/등락률/거래량/RSI 복합 조건 검색", true, b.compoundSearch)
	add(agent.ComputationOp, "다른 도구로 표현할 수 없는 복잡한 조건의 SQL 검색", true, computation)

	return r
}

// Lookup finds an operation by name.
func (r *Registry) Lookup(name string) (agent.Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Descriptions renders the operation list for the planning prompt, in
// registration order.
func (r *Registry) Descriptions() string {
	var sb strings.Builder
	for _, name := range r.order {
		fmt.Fprintf(&sb, "- %s: %s\n", name, r.ops[name].Description)
	}
	return sb.String()
}

// backend carries the shared collaborators for every handler.
type backend struct {
	store  *marketdata.Store
	params *Extractor
	logger *slog.Logger
}

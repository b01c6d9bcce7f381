// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"context"
)

// =============================================================================
// Basic Operations
// =============================================================================

// stockPrice handles get_stock_price. A missing date falls back to the
// latest trading day rather than asking for clarification.
func (b *backend) stockPrice(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"ticker": "종목코드나종목명", "date": "YYYY-MM-DD"}`,
		`규칙:
- ticker: 종목명인 경우 그대로 유지
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용`)
	if !ok {
		return msgNoParams, nil
	}
	ticker, ok := p.Str("ticker")
	if !ok {
		return msgNoStock, nil
	}
	return b.store.PriceInfo(ctx, ticker, p.StrOr("date", ""))
}

func (b *backend) marketStats(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD"}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}
	return b.store.MarketStats(ctx, date)
}

func (b *backend) marketIndex(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "market": "KOSPI"}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- market: "KOSPI" 또는 "KOSDAQ" (기본값: "KOSPI")
  예: "KOSDAQ 지수", "코스닥" → "KOSDAQ"
  예: "KOSPI 지수", "코스피" → "KOSPI"`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}
	return b.store.MarketIndex(ctx, date, p.StrOr("market", "KOSPI"))
}

func (b *backend) companySearch(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"name": "회사명"}`,
		`규칙:
- name: 질문에서 회사명이나 종목명만 추출`)
	if !ok {
		return msgNoParams, nil
	}
	name, ok := p.Str("name")
	if !ok {
		return msgNoStock, nil
	}
	return b.store.SearchCompany(ctx, name)
}

func (b *backend) tradingRanking(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "limit": 10}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- limit: "5개", "10개" → 5, 10 (기본값 10)`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}
	return b.store.TradingValueRanking(ctx, date, p.IntOr("limit", 10))
}

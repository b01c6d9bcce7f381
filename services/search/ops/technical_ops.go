// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"context"

	"github.com/kquant/stocksearch/services/search/marketdata"
)

// =============================================================================
// Technical Operations
// =============================================================================

func (b *backend) rsiSignals(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "rsi_min": null, "rsi_max": null}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- rsi_min: RSI 최소값 (예: "RSI 70 이상", "과매수" → 70.0)
- rsi_max: RSI 최대값 (예: "RSI 30 이하", "과매도" → 30.0)
- 과매수만 언급되면 rsi_min: 70.0, 과매도만 언급되면 rsi_max: 30.0`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}
	rsiMin, rsiMax := p.FloatPtr("rsi_min"), p.FloatPtr("rsi_max")
	if rsiMin == nil && rsiMax == nil {
		return msgNoCondition, nil
	}
	return b.store.RSISignals(ctx, date, rsiMin, rsiMax, 30)
}

func (b *backend) bollingerSignals(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "band_type": "upper|lower"}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- band_type: "상단"/"upper" → "upper", "하단"/"lower" → "lower"`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}
	return b.store.BollingerSignals(ctx, date, p.StrOr("band_type", "upper"), 15)
}

func (b *backend) maBreakout(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "ma_period": 20, "breakout_ratio": 0.03}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- ma_period: "5일"/"MA5" → 5, "20일"/"MA20" → 20, "60일"/"MA60" → 60, 없으면 20 사용
- breakout_ratio: "1%" → 0.01, "3%" → 0.03, "5%" → 0.05, "10%" → 0.10, 없으면 0.03 사용`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}
	return b.store.MABreakout(ctx, date, p.IntOr("ma_period", 20), p.FloatOr("breakout_ratio", 0.03), 0)
}

func (b *backend) volumeSurge(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "surge_ratio": 5.0}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- surge_ratio: "100%" → 1.0, "200%" → 2.0, "500%" → 5.0, 없으면 5.0 사용`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}
	return b.store.VolumeSurge(ctx, date, p.FloatOr("surge_ratio", 5.0), 0)
}

func (b *backend) crossSignals(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD", "signal_type": "golden|dead"}`,
		`규칙:
- start_date/end_date: 기간, 날짜가 명시되어 있지 않으면 null 사용
- signal_type: "데드크로스" → "dead", "골든크로스" → "golden"`)
	if !ok {
		return msgNoParams, nil
	}
	start, okStart := p.Str("start_date")
	end, okEnd := p.Str("end_date")
	if !okStart || !okEnd {
		return msgNoDate, nil
	}
	return b.store.CrossSignals(ctx, start, end, p.StrOr("signal_type", "golden"), 0)
}

func (b *backend) crossCount(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"ticker": "종목명", "start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD", "signal_type": "golden|dead|both"}`,
		`규칙:
- ticker: 종목명을 추출
- start_date/end_date: 기간, 날짜가 명시되어 있지 않으면 null 사용
- signal_type: "골든크로스"만 → "golden", "데드크로스"만 → "dead", 둘다 → "both"`)
	if !ok {
		return msgNoParams, nil
	}
	ticker, ok := p.Str("ticker")
	if !ok {
		return msgNoStock, nil
	}
	start, okStart := p.Str("start_date")
	end, okEnd := p.Str("end_date")
	if !okStart || !okEnd {
		return msgNoDate, nil
	}
	return b.store.CountCrossSignals(ctx, ticker, start, end, p.StrOr("signal_type", "both"))
}

func (b *backend) priceSearch(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "search_type": "순위검색|범위검색", "result_type": "목록순위|종목순위", "ticker": null, "price_type": "시가|고가|저가|종가", "limit": 10, "min_price": null, "max_price": null, "market": "KOSPI|KOSDAQ|null"}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- search_type: "가장 비싼", "순위", "상위" → "순위검색", "1만원~5만원", "이상", "이하" → "범위검색"
- result_type: "상위 10개", "목록" → "목록순위", "삼성전자가 몇 등" → "종목순위"
- ticker: 종목명이나 코드 추출 (종목순위일 때만 필수)
- price_type: 기본값 "종가"
- limit: "10개", "20개" → 10, 20 (목록순위일 때만)
- min_price: "1만원" → 10000 (범위검색일 때만)
- max_price: "10만원" → 100000 (범위검색일 때만)
- market: "KOSPI" → "KOSPI", "KOSDAQ" → "KOSDAQ", 없으면 null 사용`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}

	q := marketdata.PriceSearch{
		Date:       date,
		SearchMode: p.StrOr("search_type", marketdata.SearchModeRange),
		ResultMode: p.StrOr("result_type", marketdata.ResultModeList),
		Ticker:     p.StrOr("ticker", ""),
		PriceType:  p.StrOr("price_type", "종가"),
		Limit:      p.IntOr("limit", 0),
		MinPrice:   p.FloatPtr("min_price"),
		MaxPrice:   p.FloatPtr("max_price"),
		Market:     p.StrOr("market", ""),
	}
	if q.SearchMode == marketdata.SearchModeRank && q.ResultMode == marketdata.ResultModeTickerRank && q.Ticker == "" {
		return msgNoStock, nil
	}
	if q.SearchMode == marketdata.SearchModeRange && q.MinPrice == nil && q.MaxPrice == nil {
		return msgNoCondition, nil
	}
	return b.store.SearchPrice(ctx, q)
}

func (b *backend) volumeSearch(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "ranking_type": "거래량순위|임계값검색", "result_type": "목록순위|종목순위", "ticker": null, "limit": 10, "min_volume": null, "market": "KOSPI|KOSDAQ|null"}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- ranking_type: "거래량 순위", "거래량 상위" → "거래량순위", "100만주 이상" → "임계값검색"
- result_type: "상위 10개", "목록" → "목록순위", "삼성전자가 몇 등" → "종목순위"
- ticker: 종목명이나 코드 추출 (종목순위일 때만 필수)
- limit: "10개", "20개" → 10, 20 (목록순위일 때만)
- min_volume: "100만주", "500만주" → 1000000, 5000000 (임계값검색일 때만)
- market: "KOSPI" → "KOSPI", "KOSDAQ" → "KOSDAQ", 없으면 null 사용`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}

	q := marketdata.VolumeSearch{
		Date:       date,
		SearchMode: p.StrOr("ranking_type", marketdata.VolumeModeThreshold),
		ResultMode: p.StrOr("result_type", marketdata.ResultModeList),
		Ticker:     p.StrOr("ticker", ""),
		Limit:      p.IntOr("limit", 0),
		MinVolume:  p.Int64Ptr("min_volume"),
		Market:     p.StrOr("market", ""),
	}
	if q.SearchMode == marketdata.VolumeModeRank && q.ResultMode == marketdata.ResultModeTickerRank && q.Ticker == "" {
		return msgNoStock, nil
	}
	if q.SearchMode == marketdata.VolumeModeThreshold && q.MinVolume == nil {
		return msgNoThreshold, nil
	}
	return b.store.SearchVolume(ctx, q)
}

func (b *backend) priceChangeSearch(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "ranking_type": "상승률순위|하락률순위|범위검색", "result_type": "목록순위|종목순위", "ticker": null, "limit": 5, "min_change_rate": null, "max_change_rate": null, "market": "KOSPI|KOSDAQ|null"}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- ranking_type: "상승률 높은" → "상승률순위", "하락률 높은" → "하락률순위", 범위 조건 → "범위검색"
- result_type: "상위 10개", "목록" → "목록순위", "삼성전자가 몇 등" → "종목순위"
- ticker: 종목명이나 코드 추출 (종목순위일 때만 필수)
- limit: "5개", "10개" → 5, 10 (목록순위일 때만)
- min_change_rate: "5% 이상", "+10% 이상" → 5.0, 10.0 (범위검색일 때만)
- max_change_rate: "-10% 이하", "5% 이하" → -10.0, 5.0 (범위검색일 때만)
- market: "KOSPI" → "KOSPI", "KOSDAQ" → "KOSDAQ", 없으면 null 사용`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}

	q := marketdata.ChangeRateSearch{
		Date:       date,
		SearchMode: p.StrOr("ranking_type", marketdata.SearchModeRange),
		ResultMode: p.StrOr("result_type", marketdata.ResultModeList),
		Ticker:     p.StrOr("ticker", ""),
		Limit:      p.IntOr("limit", 0),
		MinRate:    p.FloatPtr("min_change_rate"),
		MaxRate:    p.FloatPtr("max_change_rate"),
		Market:     p.StrOr("market", ""),
	}
	ranked := q.SearchMode == marketdata.ChangeModeGainers || q.SearchMode == marketdata.ChangeModeLosers
	if ranked && q.ResultMode == marketdata.ResultModeTickerRank && q.Ticker == "" {
		return msgNoStock, nil
	}
	if !ranked && q.MinRate == nil && q.MaxRate == nil {
		return msgNoCondition, nil
	}
	return b.store.SearchChangeRate(ctx, q)
}

func (b *backend) compoundSearch(ctx context.Context, question string) (string, error) {
	p, ok := b.params.Extract(ctx, question,
		`{"date": "YYYY-MM-DD", "market": "KOSPI|KOSDAQ|null", "limit": 10, "price_min": null, "price_max": null, "change_rate_min": null, "change_rate_max": null, "volume_min": null, "rsi_min": null, "rsi_max": null}`,
		`규칙:
- date: 질문에 날짜가 명시되어 있지 않으면 null 사용
- market: "KOSPI" → "KOSPI", "KOSDAQ" → "KOSDAQ", 없으면 null 사용
- limit: "10개", "20개" → 10, 20
- price_min: "1만원 이상" → 10000 / price_max: "5만원 이하" → 50000
- change_rate_min: "+3% 이상" → 3.0 / change_rate_max: "+10% 이하" → 10.0
- volume_min: "100만주 이상" → 1000000
- rsi_min: "RSI 70 이상" → 70.0 / rsi_max: "RSI 30 이하" → 30.0`)
	if !ok {
		return msgNoParams, nil
	}
	date, ok := p.Str("date")
	if !ok {
		return msgNoDate, nil
	}

	q := marketdata.CompoundSearch{
		Date:          date,
		Market:        p.StrOr("market", ""),
		Limit:         p.IntOr("limit", 0),
		PriceMin:      p.FloatPtr("price_min"),
		PriceMax:      p.FloatPtr("price_max"),
		ChangeRateMin: p.FloatPtr("change_rate_min"),
		ChangeRateMax: p.FloatPtr("change_rate_max"),
		VolumeMin:     p.Int64Ptr("volume_min"),
		RSIMin:        p.FloatPtr("rsi_min"),
		RSIMax:        p.FloatPtr("rsi_max"),
	}
	if q.PriceMin == nil && q.PriceMax == nil && q.ChangeRateMin == nil && q.ChangeRateMax == nil &&
		q.VolumeMin == nil && q.RSIMin == nil && q.RSIMax == nil {
		return msgNoCondition, nil
	}
	return b.store.SearchCompound(ctx, q)
}

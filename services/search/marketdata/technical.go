// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// =============================================================================
// Technical Queries
// =============================================================================

// Search mode names, matching the values the parameter-extraction prompts
// instruct the oracle to emit.
const (
	SearchModeRank  = "순위검색"
	SearchModeRange = "범위검색"

	ResultModeList       = "목록순위"
	ResultModeTickerRank = "종목순위"

	VolumeModeRank      = "거래량순위"
	VolumeModeThreshold = "임계값검색"

	ChangeModeGainers = "상승률순위"
	ChangeModeLosers  = "하락률순위"
)

// priceColumns maps the Korean price-type names to table columns. The map is
// the injection boundary: only values from here reach SQL text.
var priceColumns = map[string]string{
	"시가": "open_price",
	"고가": "high_price",
	"저가": "low_price",
	"종가": "close_price",
}

// maColumns whitelists the moving-average period columns.
var maColumns = map[int]string{5: "ma5", 20: "ma20", 60: "ma60"}

// RSISignals lists stocks whose RSI falls in the requested band on a day.
// Nil bounds are open ends; at least one bound is expected by the caller.
func (s *Store) RSISignals(ctx context.Context, date string, rsiMin, rsiMax *float64, limit int) (string, error) {
	if limit <= 0 {
		limit = 30
	}
	conds := []string{"trading_date = ?"}
	args := []any{date}
	order := "rsi DESC"
	if rsiMin != nil {
		conds = append(conds, "rsi >= ?")
		args = append(args, *rsiMin)
	}
	if rsiMax != nil {
		conds = append(conds, "rsi <= ?")
		args = append(args, *rsiMax)
		if rsiMin == nil {
			order = "rsi ASC"
		}
	}
	args = append(args, limit)

	rows, err := s.technical.QueryContext(ctx, fmt.Sprintf(`
		SELECT ticker, rsi FROM technical_indicators
		WHERE %s ORDER BY %s LIMIT ?`, strings.Join(conds, " AND "), order), args...)
	if err != nil {
		return "", fmt.Errorf("querying rsi signals: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var ticker string
		var rsi float64
		if err := rows.Scan(&ticker, &rsi); err != nil {
			return "", fmt.Errorf("scanning rsi row: %w", err)
		}
		entries = append(entries, fmt.Sprintf("%s | RSI %.1f", s.stockNameFor(ticker), rsi))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating rsi signals: %w", err)
	}

	condText := rsiConditionText(rsiMin, rsiMax)
	if len(entries) == 0 {
		return fmt.Sprintf("%s에 %s 종목을 찾을 수 없습니다.", date, condText), nil
	}
	return listResult(fmt.Sprintf("%s %s 종목:", date, condText), entries), nil
}

func rsiConditionText(rsiMin, rsiMax *float64) string {
	switch {
	case rsiMin != nil && rsiMax != nil:
		return fmt.Sprintf("RSI %.0f 이상 %.0f 이하", *rsiMin, *rsiMax)
	case rsiMin != nil:
		return fmt.Sprintf("RSI %.0f 이상", *rsiMin)
	case rsiMax != nil:
		return fmt.Sprintf("RSI %.0f 이하", *rsiMax)
	default:
		return "RSI 조건"
	}
}

// BollingerSignals lists stocks touching the upper or lower Bollinger band
// on a day. bandType is "upper" or "lower".
func (s *Store) BollingerSignals(ctx context.Context, date, bandType string, limit int) (string, error) {
	if limit <= 0 {
		limit = 30
	}
	var q string
	if bandType != "lower" {
		bandType = "upper"
		q = `SELECT ticker, close_price FROM technical_indicators
			WHERE trading_date = ?
			AND close_price >= bb_upper * 0.9995
			ORDER BY ABS(close_price - bb_upper) ASC LIMIT ?`
	} else {
		q = `SELECT ticker, close_price FROM technical_indicators
			WHERE trading_date = ?
			AND close_price <= bb_lower * 1.0005
			ORDER BY ABS(close_price - bb_lower) ASC LIMIT ?`
	}

	rows, err := s.technical.QueryContext(ctx, q, date, limit)
	if err != nil {
		return "", fmt.Errorf("querying bollinger signals: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var ticker string
		var closePrice float64
		if err := rows.Scan(&ticker, &closePrice); err != nil {
			return "", fmt.Errorf("scanning bollinger row: %w", err)
		}
		entries = append(entries, fmt.Sprintf("%s | 종가 %s원", s.stockNameFor(ticker), won(closePrice)))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating bollinger signals: %w", err)
	}

	bandKorean := "상단"
	if bandType == "lower" {
		bandKorean = "하단"
	}
	if len(entries) == 0 {
		return fmt.Sprintf("%s에 볼린저 밴드 %s에 터치한 종목을 찾을 수 없습니다.", date, bandKorean), nil
	}
	return listResult(fmt.Sprintf("%s 볼린저 밴드 %s 터치 종목:", date, bandKorean), entries), nil
}

// MABreakout lists stocks closing above their moving average by at least
// breakoutRatio (0.03 = 3%). Supported periods: 5, 20, 60.
func (s *Store) MABreakout(ctx context.Context, date string, maPeriod int, breakoutRatio float64, limit int) (string, error) {
	if limit <= 0 {
		limit = 30
	}
	col, ok := maColumns[maPeriod]
	if !ok {
		col, maPeriod = "ma20", 20
	}

	rows, err := s.technical.QueryContext(ctx, fmt.Sprintf(`
		SELECT ticker, ((close_price - %[1]s) / %[1]s * 100) AS breakout_pct
		FROM technical_indicators
		WHERE trading_date = ? AND close_price > %[1]s * (1 + ?)
		ORDER BY breakout_pct DESC LIMIT ?`, col), date, breakoutRatio, limit)
	if err != nil {
		return "", fmt.Errorf("querying ma breakout: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var ticker string
		var pct float64
		if err := rows.Scan(&ticker, &pct); err != nil {
			return "", fmt.Errorf("scanning ma breakout row: %w", err)
		}
		entries = append(entries, fmt.Sprintf("%s | +%.2f%%", s.stockNameFor(ticker), pct))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating ma breakout: %w", err)
	}

	if len(entries) == 0 {
		return fmt.Sprintf("%s에 %d일 이동평균을 %.0f%% 이상 돌파한 종목을 찾을 수 없습니다.",
			date, maPeriod, breakoutRatio*100), nil
	}
	return listResult(fmt.Sprintf("%s %d일 이동평균 %.0f%% 이상 돌파:", date, maPeriod, breakoutRatio*100), entries), nil
}

// VolumeSurge lists stocks whose volume exceeds their 20-day average by the
// given ratio (5.0 = 500%).
func (s *Store) VolumeSurge(ctx context.Context, date string, surgeRatio float64, limit int) (string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.technical.QueryContext(ctx, `
		SELECT ticker, volume_ratio FROM technical_indicators
		WHERE trading_date = ? AND volume_ratio >= ?
		ORDER BY volume_ratio DESC LIMIT ?`, date, surgeRatio, limit)
	if err != nil {
		return "", fmt.Errorf("querying volume surge: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var ticker string
		var ratio float64
		if err := rows.Scan(&ticker, &ratio); err != nil {
			return "", fmt.Errorf("scanning volume surge row: %w", err)
		}
		entries = append(entries, fmt.Sprintf("%s | %.0f%%", s.stockNameFor(ticker), ratio*100))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating volume surge: %w", err)
	}

	if len(entries) == 0 {
		return fmt.Sprintf("%s에 거래량이 20일 평균 대비 %.0f%% 이상 급증한 종목을 찾을 수 없습니다.",
			date, surgeRatio*100), nil
	}
	return listResult(fmt.Sprintf("%s 거래량 20일 평균 대비 %.0f%% 이상 급증:", date, surgeRatio*100), entries), nil
}

// CrossSignals lists stocks with golden or dead cross events in a date
// range. signalType is "golden" or "dead"; tickers are de-duplicated.
func (s *Store) CrossSignals(ctx context.Context, startDate, endDate, signalType string, limit int) (string, error) {
	if limit <= 0 {
		limit = 20
	}
	col := "golden_cross"
	korean := "골든크로스"
	if signalType == "dead" {
		col, korean = "dead_cross", "데드크로스"
	}

	rows, err := s.technical.QueryContext(ctx, fmt.Sprintf(`
		SELECT ticker FROM technical_indicators
		WHERE trading_date BETWEEN ? AND ? AND %s = 1
		ORDER BY trading_date DESC, ticker`, col), startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("querying cross signals: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var entries []string
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return "", fmt.Errorf("scanning cross signal row: %w", err)
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		entries = append(entries, s.stockNameFor(ticker))
		if len(entries) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating cross signals: %w", err)
	}

	if len(entries) == 0 {
		return fmt.Sprintf("%s부터 %s까지 %s가 발생한 종목을 찾을 수 없습니다.", startDate, endDate, korean), nil
	}
	return listResult(fmt.Sprintf("%s부터 %s까지 %s 발생 종목:", startDate, endDate, korean), entries), nil
}

// CountCrossSignals counts cross events for one stock in a date range.
// signalType is "golden", "dead", or "both".
func (s *Store) CountCrossSignals(ctx context.Context, tickerOrName, startDate, endDate, signalType string) (string, error) {
	s.logger.Info("cross signal count",
		slog.String("ticker", tickerOrName),
		slog.String("range", startDate+"~"+endDate),
	)

	ticker, ok := s.ResolveTicker(tickerOrName)
	if !ok {
		return fmt.Sprintf("'%s' 종목을 찾을 수 없습니다.", tickerOrName), nil
	}

	count := func(col string) (int64, error) {
		var total int64
		for _, cand := range tickerCandidates(ticker) {
			var n int64
			err := s.technical.QueryRowContext(ctx, fmt.Sprintf(`
				SELECT COUNT(*) FROM technical_indicators
				WHERE ticker = ? AND trading_date BETWEEN ? AND ? AND %s = 1`, col),
				cand, startDate, endDate).Scan(&n)
			if err != nil {
				return 0, fmt.Errorf("counting %s: %w", col, err)
			}
			total += n
		}
		return total, nil
	}

	switch signalType {
	case "golden":
		n, err := count("golden_cross")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s부터 %s까지 골든크로스 %d번", tickerOrName, startDate, endDate, n), nil
	case "dead":
		n, err := count("dead_cross")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s부터 %s까지 데드크로스 %d번", tickerOrName, startDate, endDate, n), nil
	default:
		golden, err := count("golden_cross")
		if err != nil {
			return "", err
		}
		dead, err := count("dead_cross")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s부터 %s까지 데드크로스 %d번, 골든크로스 %d번",
			tickerOrName, startDate, endDate, dead, golden), nil
	}
}

// =============================================================================
// Criteria Searches (price / volume / change rate / compound)
// =============================================================================

// PriceSearch selects the price-search mode and conditions.
type PriceSearch struct {
	Date       string
	SearchMode string // SearchModeRank or SearchModeRange
	ResultMode string // ResultModeList or ResultModeTickerRank
	Ticker     string // required for ResultModeTickerRank
	PriceType  string // 시가/고가/저가/종가
	Limit      int
	MinPrice   *float64
	MaxPrice   *float64
	Market     string
}

// SearchPrice runs a price ranking, per-ticker rank, or range search.
func (s *Store) SearchPrice(ctx context.Context, q PriceSearch) (string, error) {
	col, ok := priceColumns[q.PriceType]
	if !ok {
		col, q.PriceType = "close_price", "종가"
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	filter := marketFilter(q.Market)

	if q.SearchMode == SearchModeRank && q.ResultMode == ResultModeTickerRank && q.Ticker != "" {
		return s.tickerRank(ctx, tickerRankQuery{
			date: q.Date, ticker: q.Ticker, market: q.Market,
			valueColumn: col, higherIsBetter: true,
			label:  q.PriceType + " 순위",
			render: func(v float64) string { return won(v) + "원" },
		})
	}

	if q.SearchMode == SearchModeRank {
		rows, err := s.stocks.QueryContext(ctx, fmt.Sprintf(`
			SELECT stock_name, %s FROM stock_prices
			WHERE trading_date = ?%s
			ORDER BY %s DESC LIMIT ?`, col, filter, col), q.Date, q.Limit)
		if err != nil {
			return "", fmt.Errorf("querying price ranking: %w", err)
		}
		entries, err := scanNameValue(rows, func(v float64) string { return won(v) + "원" })
		if err != nil {
			return "", err
		}
		marketText := marketPrefix(q.Market)
		if len(entries) == 0 {
			return fmt.Sprintf("%s에 %s%s 데이터를 찾을 수 없습니다.", q.Date, marketText, q.PriceType), nil
		}
		return listResult(fmt.Sprintf("%s %s%s 상위 %d개:", q.Date, marketText, q.PriceType, len(entries)), entries), nil
	}

	// Range search.
	conds := []string{"trading_date = ?"}
	args := []any{q.Date}
	if q.MinPrice != nil {
		conds = append(conds, col+" >= ?")
		args = append(args, *q.MinPrice)
	}
	if q.MaxPrice != nil {
		conds = append(conds, col+" <= ?")
		args = append(args, *q.MaxPrice)
	}
	args = append(args, q.Limit)

	rows, err := s.stocks.QueryContext(ctx, fmt.Sprintf(`
		SELECT stock_name, %s FROM stock_prices
		WHERE %s%s
		ORDER BY %s DESC LIMIT ?`, col, strings.Join(conds, " AND "), filter, col), args...)
	if err != nil {
		return "", fmt.Errorf("querying price range: %w", err)
	}
	entries, err := scanNameValue(rows, func(v float64) string { return won(v) + "원" })
	if err != nil {
		return "", err
	}

	condText := rangeConditionText(q.PriceType, q.MinPrice, q.MaxPrice, func(v float64) string { return won(v) + "원" })
	marketText := marketPrefix(q.Market)
	if len(entries) == 0 {
		return fmt.Sprintf("%s에 %s%s인 종목을 찾을 수 없습니다.", q.Date, marketText, condText), nil
	}
	return listResult(fmt.Sprintf("%s %s%s 종목:", q.Date, marketText, condText), entries), nil
}

// VolumeSearch selects the volume-search mode and conditions.
type VolumeSearch struct {
	Date       string
	SearchMode string // VolumeModeRank or VolumeModeThreshold
	ResultMode string
	Ticker     string
	Limit      int
	MinVolume  *int64
	Market     string
}

// SearchVolume runs a volume ranking, per-ticker rank, or threshold search.
func (s *Store) SearchVolume(ctx context.Context, q VolumeSearch) (string, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	filter := marketFilter(q.Market)
	marketText := marketPrefix(q.Market)

	if q.SearchMode == VolumeModeRank && q.ResultMode == ResultModeTickerRank && q.Ticker != "" {
		return s.tickerRank(ctx, tickerRankQuery{
			date: q.Date, ticker: q.Ticker, market: q.Market,
			valueColumn: "trading_volume", higherIsBetter: true,
			label:  "거래량 순위",
			render: func(v float64) string { return groupDigits(int64(v)) + "주" },
		})
	}

	if q.SearchMode == VolumeModeRank {
		rows, err := s.stocks.QueryContext(ctx, fmt.Sprintf(`
			SELECT stock_name, trading_volume FROM stock_prices
			WHERE trading_date = ?%s
			ORDER BY trading_volume DESC LIMIT ?`, filter), q.Date, q.Limit)
		if err != nil {
			return "", fmt.Errorf("querying volume ranking: %w", err)
		}
		entries, err := scanNameValue(rows, func(v float64) string { return groupDigits(int64(v)) + "주" })
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return fmt.Sprintf("%s에 %s거래량 데이터를 찾을 수 없습니다.", q.Date, marketText), nil
		}
		return listResult(fmt.Sprintf("%s %s거래량 상위 %d개:", q.Date, marketText, len(entries)), entries), nil
	}

	// Threshold search.
	var minVolume int64
	if q.MinVolume != nil {
		minVolume = *q.MinVolume
	}
	rows, err := s.stocks.QueryContext(ctx, fmt.Sprintf(`
		SELECT stock_name, trading_volume FROM stock_prices
		WHERE trading_date = ? AND trading_volume >= ?%s
		ORDER BY trading_volume DESC LIMIT ?`, filter), q.Date, minVolume, q.Limit)
	if err != nil {
		return "", fmt.Errorf("querying volume threshold: %w", err)
	}
	entries, err := scanNameValue(rows, func(v float64) string { return groupDigits(int64(v)) + "주" })
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return fmt.Sprintf("%s에 %s거래량이 %s주 이상인 종목을 찾을 수 없습니다.",
			q.Date, marketText, groupDigits(minVolume)), nil
	}
	return listResult(fmt.Sprintf("%s %s거래량 %s주 이상 종목:", q.Date, marketText, groupDigits(minVolume)), entries), nil
}

// ChangeRateSearch selects the change-rate search mode and conditions.
type ChangeRateSearch struct {
	Date       string
	SearchMode string // ChangeModeGainers, ChangeModeLosers, or SearchModeRange
	ResultMode string
	Ticker     string
	Limit      int
	MinRate    *float64
	MaxRate    *float64
	Market     string
}

// SearchChangeRate runs a gainer/loser ranking, per-ticker rank, or
// change-rate range search.
func (s *Store) SearchChangeRate(ctx context.Context, q ChangeRateSearch) (string, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	filter := marketFilter(q.Market)
	marketText := marketPrefix(q.Market)

	ranked := q.SearchMode == ChangeModeGainers || q.SearchMode == ChangeModeLosers
	if ranked && q.ResultMode == ResultModeTickerRank && q.Ticker != "" {
		label := "상승률 순위"
		if q.SearchMode == ChangeModeLosers {
			label = "하락률 순위"
		}
		return s.tickerRank(ctx, tickerRankQuery{
			date: q.Date, ticker: q.Ticker, market: q.Market,
			valueColumn: "change_rate", higherIsBetter: q.SearchMode == ChangeModeGainers,
			label:  label,
			render: func(v float64) string { return fmt.Sprintf("%+.2f%%", v) },
		})
	}

	if ranked {
		order := "DESC"
		label := "상승률 순위"
		if q.SearchMode == ChangeModeLosers {
			order, label = "ASC", "하락률 순위"
		}
		rows, err := s.stocks.QueryContext(ctx, fmt.Sprintf(`
			SELECT stock_name, change_rate FROM stock_prices
			WHERE trading_date = ?%s
			ORDER BY change_rate %s LIMIT ?`, filter, order), q.Date, q.Limit)
		if err != nil {
			return "", fmt.Errorf("querying change rate ranking: %w", err)
		}
		entries, err := scanNameValue(rows, func(v float64) string { return fmt.Sprintf("%+.2f%%", v) })
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return fmt.Sprintf("%s에 %s%s 데이터를 찾을 수 없습니다.", q.Date, marketText, label), nil
		}
		return listResult(fmt.Sprintf("%s %s%s 상위 %d개:", q.Date, marketText, label, len(entries)), entries), nil
	}

	// Range search.
	conds := []string{"trading_date = ?"}
	args := []any{q.Date}
	if q.MinRate != nil {
		conds = append(conds, "change_rate >= ?")
		args = append(args, *q.MinRate)
	}
	if q.MaxRate != nil {
		conds = append(conds, "change_rate <= ?")
		args = append(args, *q.MaxRate)
	}
	args = append(args, q.Limit)

	rows, err := s.stocks.QueryContext(ctx, fmt.Sprintf(`
		SELECT stock_name, change_rate FROM stock_prices
		WHERE %s%s
		ORDER BY change_rate DESC LIMIT ?`, strings.Join(conds, " AND "), filter), args...)
	if err != nil {
		return "", fmt.Errorf("querying change rate range: %w", err)
	}
	entries, err := scanNameValue(rows, func(v float64) string { return fmt.Sprintf("%+.2f%%", v) })
	if err != nil {
		return "", err
	}

	condText := rangeConditionText("등락률", q.MinRate, q.MaxRate, func(v float64) string { return fmt.Sprintf("%+.1f%%", v) })
	if len(entries) == 0 {
		return fmt.Sprintf("%s에 %s%s인 종목을 찾을 수 없습니다.", q.Date, marketText, condText), nil
	}
	return listResult(fmt.Sprintf("%s %s%s 종목:", q.Date, marketText, condText), entries), nil
}

// CompoundSearch combines price, change-rate, volume, and RSI conditions.
type CompoundSearch struct {
	Date          string
	Market        string
	Limit         int
	PriceMin      *float64
	PriceMax      *float64
	ChangeRateMin *float64
	ChangeRateMax *float64
	VolumeMin     *int64
	RSIMin        *float64
	RSIMax        *float64
}

// conditionCount reports how many conditions the search carries.
func (q CompoundSearch) conditionCount() int {
	n := 0
	for _, set := range []bool{
		q.PriceMin != nil, q.PriceMax != nil,
		q.ChangeRateMin != nil, q.ChangeRateMax != nil,
		q.VolumeMin != nil, q.RSIMin != nil, q.RSIMax != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// SearchCompound finds stocks satisfying every given condition on one day.
// RSI conditions live in the technical database, so they are resolved as a
// ticker set first and intersected with the price-side rows.
func (s *Store) SearchCompound(ctx context.Context, q CompoundSearch) (string, error) {
	if q.Limit <= 0 {
		q.Limit = 25
	}
	s.logger.Info("compound search",
		slog.String("date", q.Date),
		slog.Int("conditions", q.conditionCount()),
	)

	var rsiFor map[string]float64
	if q.RSIMin != nil || q.RSIMax != nil {
		var err error
		rsiFor, err = s.rsiTickerSet(ctx, q.Date, q.RSIMin, q.RSIMax)
		if err != nil {
			return "", err
		}
	}

	conds := []string{"trading_date = ?"}
	args := []any{q.Date}
	if q.PriceMin != nil {
		conds = append(conds, "close_price >= ?")
		args = append(args, *q.PriceMin)
	}
	if q.PriceMax != nil {
		conds = append(conds, "close_price <= ?")
		args = append(args, *q.PriceMax)
	}
	if q.ChangeRateMin != nil {
		conds = append(conds, "change_rate >= ?")
		args = append(args, *q.ChangeRateMin)
	}
	if q.ChangeRateMax != nil {
		conds = append(conds, "change_rate <= ?")
		args = append(args, *q.ChangeRateMax)
	}
	if q.VolumeMin != nil {
		conds = append(conds, "trading_volume >= ?")
		args = append(args, *q.VolumeMin)
	}

	rows, err := s.stocks.QueryContext(ctx, fmt.Sprintf(`
		SELECT ticker, stock_name, close_price, change_rate, trading_volume
		FROM stock_prices
		WHERE %s%s
		ORDER BY change_rate DESC`, strings.Join(conds, " AND "), marketFilter(q.Market)), args...)
	if err != nil {
		return "", fmt.Errorf("querying compound search: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var ticker, name string
		var price, rate float64
		var volume int64
		if err := rows.Scan(&ticker, &name, &price, &rate, &volume); err != nil {
			return "", fmt.Errorf("scanning compound row: %w", err)
		}
		if rsiFor != nil {
			rsi, ok := rsiFor[ticker]
			if !ok {
				continue
			}
			entries = append(entries, fmt.Sprintf("%s | 종가 %s원, 등락률 %+.2f%%, 거래량 %s주, RSI %.1f",
				name, won(price), rate, groupDigits(volume), rsi))
		} else {
			entries = append(entries, fmt.Sprintf("%s | 종가 %s원, 등락률 %+.2f%%, 거래량 %s주",
				name, won(price), rate, groupDigits(volume)))
		}
		if len(entries) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating compound search: %w", err)
	}

	condText := q.conditionText()
	marketText := marketPrefix(q.Market)
	if len(entries) == 0 {
		return fmt.Sprintf("%s에 %s%s을 모두 만족하는 종목을 찾을 수 없습니다.", q.Date, marketText, condText), nil
	}
	return listResult(fmt.Sprintf("%s %s%s을 모두 만족하는 종목:", q.Date, marketText, condText), entries), nil
}

func (q CompoundSearch) conditionText() string {
	var parts []string
	if q.PriceMin != nil {
		parts = append(parts, fmt.Sprintf("가격 %s원 이상", won(*q.PriceMin)))
	}
	if q.PriceMax != nil {
		parts = append(parts, fmt.Sprintf("가격 %s원 이하", won(*q.PriceMax)))
	}
	if q.ChangeRateMin != nil {
		parts = append(parts, fmt.Sprintf("등락률 %+.1f%% 이상", *q.ChangeRateMin))
	}
	if q.ChangeRateMax != nil {
		parts = append(parts, fmt.Sprintf("등락률 %+.1f%% 이하", *q.ChangeRateMax))
	}
	if q.VolumeMin != nil {
		parts = append(parts, fmt.Sprintf("거래량 %s주 이상", groupDigits(*q.VolumeMin)))
	}
	if q.RSIMin != nil {
		parts = append(parts, fmt.Sprintf("RSI %.0f 이상", *q.RSIMin))
	}
	if q.RSIMax != nil {
		parts = append(parts, fmt.Sprintf("RSI %.0f 이하", *q.RSIMax))
	}
	if len(parts) == 0 {
		return "복합조건"
	}
	return strings.Join(parts, ", ")
}

// rsiTickerSet resolves the RSI condition against the technical database.
func (s *Store) rsiTickerSet(ctx context.Context, date string, rsiMin, rsiMax *float64) (map[string]float64, error) {
	conds := []string{"trading_date = ?"}
	args := []any{date}
	if rsiMin != nil {
		conds = append(conds, "rsi >= ?")
		args = append(args, *rsiMin)
	}
	if rsiMax != nil {
		conds = append(conds, "rsi <= ?")
		args = append(args, *rsiMax)
	}

	rows, err := s.technical.QueryContext(ctx, fmt.Sprintf(`
		SELECT ticker, rsi FROM technical_indicators WHERE %s`, strings.Join(conds, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("querying rsi ticker set: %w", err)
	}
	defer rows.Close()

	set := make(map[string]float64)
	for rows.Next() {
		var ticker string
		var rsi float64
		if err := rows.Scan(&ticker, &rsi); err != nil {
			return nil, fmt.Errorf("scanning rsi ticker set: %w", err)
		}
		set[ticker] = rsi
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rsi ticker set: %w", err)
	}
	return set, nil
}

// =============================================================================
// Shared Query Helpers
// =============================================================================

// tickerRankQuery describes a per-ticker rank lookup: the stock's position
// when all stocks on a day are ordered by one column.
type tickerRankQuery struct {
	date           string
	ticker         string
	market         string
	valueColumn    string
	higherIsBetter bool
	label          string
	render         func(float64) string
}

// tickerRank computes "count of stocks strictly ahead, plus one".
func (s *Store) tickerRank(ctx context.Context, q tickerRankQuery) (string, error) {
	code, ok := s.ResolveTicker(q.ticker)
	if !ok {
		return fmt.Sprintf("'%s' 종목을 찾을 수 없습니다.", q.ticker), nil
	}

	cmp := ">"
	if !q.higherIsBetter {
		cmp = "<"
	}
	filter := marketFilter(q.market)

	for _, cand := range tickerCandidates(code) {
		var target float64
		err := s.stocks.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT %s FROM stock_prices WHERE trading_date = ? AND ticker = ?`, q.valueColumn),
			q.date, cand).Scan(&target)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("querying rank target: %w", err)
		}

		var rank int64
		err = s.stocks.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COUNT(*) + 1 FROM stock_prices
			WHERE trading_date = ?%s AND %s %s ?`, filter, q.valueColumn, cmp),
			q.date, target).Scan(&rank)
		if err != nil {
			return "", fmt.Errorf("querying rank: %w", err)
		}

		return fmt.Sprintf("%s %s%s의 %s: %d위 (%s)",
			q.date, marketPrefix(q.market), q.ticker, q.label, rank, q.render(target)), nil
	}
	return fmt.Sprintf("%s에 '%s' 종목의 데이터를 찾을 수 없습니다.", q.date, q.ticker), nil
}

// scanNameValue drains a (stock_name, numeric) result set into "name |
// value" entries.
func scanNameValue(rows *sql.Rows, render func(float64) string) ([]string, error) {
	defer rows.Close()
	var entries []string
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		entries = append(entries, fmt.Sprintf("%s | %s", name, render(value)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating result rows: %w", err)
	}
	return entries, nil
}

// marketPrefix renders the "KOSPI " style prefix for result headers.
func marketPrefix(market string) string {
	market = strings.ToUpper(strings.TrimSpace(market))
	if market == "KOSPI" || market == "KOSDAQ" {
		return market + " "
	}
	return ""
}

// rangeConditionText renders "X가 A 이상 B 이하" style condition summaries.
func rangeConditionText(subject string, min, max *float64, render func(float64) string) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("%s %s 이상 %s 이하", subject, render(*min), render(*max))
	case min != nil:
		return fmt.Sprintf("%s %s 이상", subject, render(*min))
	case max != nil:
		return fmt.Sprintf("%s %s 이하", subject, render(*max))
	default:
		return subject + " 조건"
	}
}

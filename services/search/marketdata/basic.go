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
// Basic Queries
// =============================================================================

// priceRow is one stock_prices row.
type priceRow struct {
	Ticker        string
	StockName     string
	TradingDate   string
	OpenPrice     float64
	HighPrice     float64
	LowPrice      float64
	ClosePrice    float64
	TradingVolume int64
	ChangeRate    float64
}

// PriceInfo renders the full daily quote for one stock.
//
// Inputs:
//   - tickerOrName: A stock name, bare code, or suffixed ticker.
//   - date: Trading date (YYYY-MM-DD); empty selects the latest trading day.
func (s *Store) PriceInfo(ctx context.Context, tickerOrName, date string) (string, error) {
	s.logger.Info("price lookup", slog.String("ticker", tickerOrName), slog.String("date", date))

	ticker, ok := s.ResolveTicker(tickerOrName)
	if !ok {
		return fmt.Sprintf("'%s' 종목을 찾을 수 없습니다.", tickerOrName), nil
	}

	var row *priceRow
	for _, cand := range tickerCandidates(ticker) {
		r, err := s.queryPriceRow(ctx, cand, date)
		if err != nil {
			return "", err
		}
		if r != nil {
			row = r
			break
		}
	}
	if row == nil {
		dateText := date
		if dateText == "" {
			dateText = "최근"
		}
		return fmt.Sprintf("%s 종목의 %s 가격 정보를 찾을 수 없습니다.", tickerOrName, dateText), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s의 %s 가격 정보:\n", row.StockName, row.TradingDate)
	fmt.Fprintf(&b, "- 시가: %s원\n", won(row.OpenPrice))
	fmt.Fprintf(&b, "- 고가: %s원\n", won(row.HighPrice))
	fmt.Fprintf(&b, "- 저가: %s원\n", won(row.LowPrice))
	fmt.Fprintf(&b, "- 종가: %s원\n", won(row.ClosePrice))
	fmt.Fprintf(&b, "- 거래량: %s주\n", groupDigits(row.TradingVolume))
	fmt.Fprintf(&b, "- 등락률: %.2f%%", row.ChangeRate)
	return b.String(), nil
}

func (s *Store) queryPriceRow(ctx context.Context, ticker, date string) (*priceRow, error) {
	const cols = `ticker, stock_name, trading_date, open_price, high_price,
		low_price, close_price, trading_volume, change_rate`

	var q string
	var args []any
	if date != "" {
		q = "SELECT " + cols + " FROM stock_prices WHERE ticker = ? AND trading_date = ?"
		args = []any{ticker, date}
	} else {
		q = "SELECT " + cols + " FROM stock_prices WHERE ticker = ? ORDER BY trading_date DESC LIMIT 1"
		args = []any{ticker}
	}

	var r priceRow
	err := s.stocks.QueryRowContext(ctx, q, args...).Scan(
		&r.Ticker, &r.StockName, &r.TradingDate, &r.OpenPrice, &r.HighPrice,
		&r.LowPrice, &r.ClosePrice, &r.TradingVolume, &r.ChangeRate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying price row: %w", err)
	}
	return &r, nil
}

// SearchCompany searches the company table by name.
func (s *Store) SearchCompany(_ context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	matches := s.CompaniesByName(name)
	if len(matches) == 0 {
		return fmt.Sprintf("'%s' 관련 종목을 찾을 수 없습니다.", name), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "'%s' 검색 결과:", name)
	for _, c := range matches {
		fmt.Fprintf(&b, "\n- %s (%s) - %s", c.Name, c.Ticker, c.Market)
	}
	return b.String(), nil
}

// MarketStats renders market-wide statistics for one trading day, including
// the market average change rate.
func (s *Store) MarketStats(ctx context.Context, date string) (string, error) {
	s.logger.Info("market statistics", slog.String("date", date))

	var (
		total, up, down            int64
		avgRate, maxRate, minRate  sql.NullFloat64
		totalValue                 sql.NullFloat64
		upAvgRate, downAvgRate     sql.NullFloat64
		kospiCount, kosdaqCount    int64
		kospiAvgRate, kosdaqAvgRate sql.NullFloat64
	)

	err := s.stocks.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT ticker),
		       AVG(change_rate), MAX(change_rate), MIN(change_rate),
		       SUM(CASE WHEN change_rate > 0 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN change_rate < 0 THEN 1 ELSE 0 END),
		       SUM(trading_volume * close_price),
		       AVG(CASE WHEN change_rate > 0 THEN change_rate END),
		       AVG(CASE WHEN change_rate < 0 THEN change_rate END)
		FROM stock_prices WHERE trading_date = ?`, date).Scan(
		&total, &avgRate, &maxRate, &minRate, &up, &down, &totalValue,
		&upAvgRate, &downAvgRate,
	)
	if err != nil {
		return "", fmt.Errorf("querying market statistics: %w", err)
	}
	if total == 0 {
		return fmt.Sprintf("%s의 시장 통계 데이터를 찾을 수 없습니다.", date), nil
	}

	rows, err := s.stocks.QueryContext(ctx, `
		SELECT market, COUNT(*), AVG(change_rate)
		FROM stock_prices WHERE trading_date = ? GROUP BY market`, date)
	if err != nil {
		return "", fmt.Errorf("querying per-market statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var market string
		var count int64
		var avg sql.NullFloat64
		if err := rows.Scan(&market, &count, &avg); err != nil {
			return "", fmt.Errorf("scanning per-market statistics: %w", err)
		}
		switch market {
		case "KOSPI":
			kospiCount, kospiAvgRate = count, avg
		case "KOSDAQ":
			kosdaqCount, kosdaqAvgRate = count, avg
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating per-market statistics: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s 시장 통계:\n", date)
	fmt.Fprintf(&b, "- 전체 종목수: %d개\n", total)
	fmt.Fprintf(&b, "- 상승 종목수: %d개\n", up)
	fmt.Fprintf(&b, "- 하락 종목수: %d개\n", down)
	fmt.Fprintf(&b, "- 보합 종목수: %d개\n", total-up-down)
	fmt.Fprintf(&b, "- KOSPI 종목수: %d개\n", kospiCount)
	fmt.Fprintf(&b, "- KOSDAQ 종목수: %d개\n", kosdaqCount)
	fmt.Fprintf(&b, "- 시장 평균 등락률: %.4f%%\n", avgRate.Float64)
	fmt.Fprintf(&b, "- 최고 등락률: %.4f%%\n", maxRate.Float64)
	fmt.Fprintf(&b, "- 최저 등락률: %.4f%%\n", minRate.Float64)
	fmt.Fprintf(&b, "- 상승 종목 평균 등락률: %.4f%%\n", upAvgRate.Float64)
	fmt.Fprintf(&b, "- 하락 종목 평균 등락률: %.4f%%\n", downAvgRate.Float64)
	fmt.Fprintf(&b, "- KOSPI 평균 등락률: %.4f%%\n", kospiAvgRate.Float64)
	fmt.Fprintf(&b, "- KOSDAQ 평균 등락률: %.4f%%\n", kosdaqAvgRate.Float64)
	fmt.Fprintf(&b, "- 전체 거래대금: %s원", won(totalValue.Float64))
	return b.String(), nil
}

// MarketIndex renders the closing index for KOSPI or KOSDAQ on one day.
// Unknown market names default to KOSPI.
func (s *Store) MarketIndex(ctx context.Context, date, market string) (string, error) {
	market = strings.ToUpper(strings.TrimSpace(market))
	if market != "KOSPI" && market != "KOSDAQ" {
		market = "KOSPI"
	}

	var value float64
	err := s.market.QueryRowContext(ctx, `
		SELECT close_price FROM market_index
		WHERE trading_date = ? AND market_index_name = ?`, date, market).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Sprintf("%s의 %s 지수 데이터를 찾을 수 없습니다.", date, market), nil
	}
	if err != nil {
		return "", fmt.Errorf("querying market index: %w", err)
	}
	return fmt.Sprintf("%s %s 지수: %.2f", date, market, value), nil
}

// TradingValueRanking lists the top stocks by trading value (close price
// times volume), rendered in 억원.
func (s *Store) TradingValueRanking(ctx context.Context, date string, limit int) (string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.stocks.QueryContext(ctx, `
		SELECT stock_name, (close_price * trading_volume) AS trading_value
		FROM stock_prices
		WHERE trading_date = ?
		ORDER BY trading_value DESC
		LIMIT ?`, date, limit)
	if err != nil {
		return "", fmt.Errorf("querying trading value ranking: %w", err)
	}
	defer rows.Close()

	var entries []string
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return "", fmt.Errorf("scanning trading value row: %w", err)
		}
		entries = append(entries, fmt.Sprintf("%s | %s억원", name, groupDigits(int64(value/1e8))))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating trading value ranking: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("%s에 거래대금 데이터를 찾을 수 없습니다.", date), nil
	}

	return listResult(fmt.Sprintf("%s 거래대금 상위 %d개:", date, len(entries)), entries), nil
}

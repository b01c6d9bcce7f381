// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package marketdata is the relational backend of the stock search service:
// daily prices, market indexes, and technical indicators in three SQLite
// databases, plus the listed-company table from CSV.
//
// All query methods return user-facing Korean text. Empty result sets render
// as "찾을 수 없습니다" messages (a valid answer, not an error); only
// infrastructure faults (bad SQL, broken connection) surface as errors.
//
// Thread Safety:
//
//	A Store is safe for concurrent use. The company table is loaded once at
//	Open and read-only afterwards; database/sql handles their own pooling.
package marketdata

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Company is one row of the listed-company table.
type Company struct {
	// Ticker is the market-suffixed code, e.g. "005930.KS".
	Ticker string

	// Name is the listed stock name, e.g. "삼성전자".
	Name string

	// Market is the market type, "KOSPI" or "KOSDAQ".
	Market string
}

// Config names the four data sources.
type Config struct {
	// CompanyCSV is the listed-company table (ticker, stock_name,
	// market_type columns). Optional; company search degrades without it.
	CompanyCSV string `yaml:"company_csv"`

	// StockDB holds the stock_prices table.
	StockDB string `yaml:"stock_db"`

	// MarketDB holds the market_index table.
	MarketDB string `yaml:"market_db"`

	// TechnicalDB holds the technical_indicators table.
	TechnicalDB string `yaml:"technical_db"`
}

// Store is the handle over all market data sources.
type Store struct {
	stocks    *sql.DB
	market    *sql.DB
	technical *sql.DB

	companies []Company
	byTicker  map[string]Company

	logger *slog.Logger
}

// Open opens the three databases and loads the company table.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	stocks, err := sql.Open("sqlite3", cfg.StockDB)
	if err != nil {
		return nil, fmt.Errorf("opening stock db: %w", err)
	}
	market, err := sql.Open("sqlite3", cfg.MarketDB)
	if err != nil {
		stocks.Close()
		return nil, fmt.Errorf("opening market db: %w", err)
	}
	technical, err := sql.Open("sqlite3", cfg.TechnicalDB)
	if err != nil {
		stocks.Close()
		market.Close()
		return nil, fmt.Errorf("opening technical db: %w", err)
	}

	s := &Store{
		stocks:    stocks,
		market:    market,
		technical: technical,
		byTicker:  make(map[string]Company),
		logger:    logger,
	}

	if cfg.CompanyCSV != "" {
		if err := s.loadCompanies(cfg.CompanyCSV); err != nil {
			s.Close()
			return nil, fmt.Errorf("loading company table: %w", err)
		}
	}

	logger.Info("market data store opened",
		slog.String("stock_db", cfg.StockDB),
		slog.Int("companies", len(s.companies)),
	)
	return s, nil
}

// Close releases all database handles.
func (s *Store) Close() error {
	var firstErr error
	for _, db := range []*sql.DB{s.stocks, s.market, s.technical} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StockDB exposes the price database handle for the SQL computation path.
func (s *Store) StockDB() *sql.DB { return s.stocks }

// loadCompanies reads the CSV company table. Column order is taken from the
// header row, so regenerated exports with reordered columns keep working.
func (s *Store) loadCompanies(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	tickerIdx, ok := col["ticker"]
	if !ok {
		return fmt.Errorf("company csv missing ticker column")
	}
	nameIdx, ok := col["stock_name"]
	if !ok {
		return fmt.Errorf("company csv missing stock_name column")
	}
	marketIdx, hasMarket := col["market_type"]

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		c := Company{
			Ticker: strings.TrimSpace(rec[tickerIdx]),
			Name:   strings.TrimSpace(rec[nameIdx]),
		}
		if hasMarket && marketIdx < len(rec) {
			c.Market = strings.TrimSpace(rec[marketIdx])
		}
		s.companies = append(s.companies, c)
		s.byTicker[c.Ticker] = c
	}
	return nil
}

// CompanyByTicker looks up a company by its exact ticker.
func (s *Store) CompanyByTicker(ticker string) (Company, bool) {
	c, ok := s.byTicker[ticker]
	return c, ok
}

// CompaniesByName returns companies matching a stock name: exact matches
// when any exist, substring matches otherwise.
func (s *Store) CompaniesByName(name string) []Company {
	var exact, partial []Company
	for _, c := range s.companies {
		switch {
		case c.Name == name:
			exact = append(exact, c)
		case strings.Contains(c.Name, name):
			partial = append(partial, c)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return partial
}

// ResolveTicker maps a stock name or bare code to a market-suffixed ticker.
// Tickers with a market suffix pass through unchanged.
func (s *Store) ResolveTicker(nameOrCode string) (string, bool) {
	nameOrCode = strings.TrimSpace(nameOrCode)
	if strings.Contains(nameOrCode, ".") {
		return nameOrCode, true
	}
	if !isDigits(nameOrCode) {
		if matches := s.CompaniesByName(nameOrCode); len(matches) > 0 {
			return matches[0].Ticker, true
		}
		return "", false
	}
	// Bare numeric code: the price table stores suffixed tickers, so let the
	// caller try each market suffix.
	return nameOrCode, true
}

// stockNameFor maps a ticker back to its listed name, falling back to the
// ticker itself when the company table has no entry.
func (s *Store) stockNameFor(ticker string) string {
	if c, ok := s.byTicker[ticker]; ok {
		return c.Name
	}
	return ticker
}

// tickerCandidates expands a bare code to the market-suffixed forms stored
// in the price tables.
func tickerCandidates(ticker string) []string {
	if strings.Contains(ticker, ".") {
		return []string{ticker}
	}
	return []string{ticker + ".KS", ticker + ".KQ", ticker + ".KN"}
}

// marketFilter returns the ticker-suffix predicate for a market name, or the
// empty string for no filter.
func marketFilter(market string) string {
	switch strings.ToUpper(market) {
	case "KOSPI":
		return " AND ticker LIKE '%.KS'"
	case "KOSDAQ":
		return " AND ticker LIKE '%.KQ'"
	default:
		return ""
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// Korean Number Formatting
// =============================================================================

// groupDigits renders an integer with thousands separators ("71,500").
func groupDigits(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	raw := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(raw) % 3
	if lead > 0 {
		b.WriteString(raw[:lead])
		if len(raw) > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < len(raw); i += 3 {
		b.WriteString(raw[i : i+3])
		if i+3 < len(raw) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

// won renders a price with grouping and no decimals, e.g. "71,500".
func won(v float64) string {
	return groupDigits(int64(math.Round(v)))
}

// listResult renders a header plus ordinal-prefixed rows, one entry per
// line. Every list-shaped payload in this package uses this shape.
func listResult(header string, rows []string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, row := range rows {
		fmt.Fprintf(&b, "\n%d. %s", i+1, row)
	}
	return b.String()
}

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package text2sql

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

type scriptedOracle struct {
	reply   string
	err     error
	prompts []string
}

func (o *scriptedOracle) Complete(ctx context.Context, system, user string) (string, error) {
	o.prompts = append(o.prompts, user)
	return o.reply, o.err
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "stock.db"))
	if err != nil {
		t.Fatalf("opening fixture db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE stock_prices (
			trading_date TEXT, ticker TEXT, stock_name TEXT, market TEXT,
			open_price REAL, high_price REAL, low_price REAL, close_price REAL,
			adj_close_price REAL, prev_close_price REAL,
			change REAL, change_rate REAL, trading_volume INTEGER
		)`,
		`INSERT INTO stock_prices VALUES
			('2025-11-06','005930.KS','삼성전자','KOSPI',70000,72000,69500,71500,71500,70600,900,1.25,12345678),
			('2025-11-06','035720.KS','카카오','KOSPI',52000,52500,50500,51000,51000,52100,-1100,-2.10,2000000)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding fixture: %v", err)
		}
	}
	return db
}

func newTestNode(t *testing.T, oracle Oracle) *Node {
	t.Helper()
	return NewNode(newTestDB(t), oracle, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExecute_FencedSQL(t *testing.T) {
	oracle := &scriptedOracle{reply: "쿼리를 생성했습니다.\n```sql\n-- 등락률 양수 종목\nSELECT stock_name, close_price, change_rate FROM stock_prices WHERE change_rate > 0;\n```"}
	node := newTestNode(t, oracle)

	got, err := node.Execute(context.Background(), "오른 종목 알려줘")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(got, "조건을 만족하는 종목 1개:") {
		t.Errorf("header wrong:\n%s", got)
	}
	if !strings.Contains(got, "1. 종목명: 삼성전자 / 종가: 71,500원 / 등락률: +1.25%") {
		t.Errorf("row rendering wrong:\n%s", got)
	}

	// The question and schema both reach the oracle.
	if len(oracle.prompts) != 1 || !strings.Contains(oracle.prompts[0], "오른 종목 알려줘") {
		t.Fatalf("question missing from prompt")
	}
	if !strings.Contains(oracle.prompts[0], "CREATE TABLE stock_prices") {
		t.Errorf("schema missing from prompt")
	}
}

func TestExecute_BareSelectFallback(t *testing.T) {
	oracle := &scriptedOracle{reply: "다음 쿼리를 사용하세요:\nSELECT stock_name, trading_volume FROM stock_prices ORDER BY trading_volume DESC LIMIT 1;"}
	node := newTestNode(t, oracle)

	got, err := node.Execute(context.Background(), "거래량 1위는?")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(got, "종목명: 삼성전자 / 거래량: 12,345,678주") {
		t.Errorf("fallback extraction failed:\n%s", got)
	}
}

func TestExecute_EmptyResult(t *testing.T) {
	oracle := &scriptedOracle{reply: "```sql\nSELECT stock_name FROM stock_prices WHERE change_rate > 99\n```"}
	node := newTestNode(t, oracle)

	got, err := node.Execute(context.Background(), "99% 오른 종목")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "'99% 오른 종목' 조건에 맞는 종목이 없습니다." {
		t.Errorf("empty-result message wrong: %q", got)
	}
}

func TestExecute_RejectsNonSelect(t *testing.T) {
	oracle := &scriptedOracle{reply: "```sql\nDELETE FROM stock_prices\n```"}
	node := newTestNode(t, oracle)

	if _, err := node.Execute(context.Background(), "전부 지워줘"); err == nil {
		t.Fatal("non-select statement must be rejected")
	}
}

func TestExecute_NoSQLInReply(t *testing.T) {
	node := newTestNode(t, &scriptedOracle{reply: "죄송합니다. 쿼리를 만들 수 없습니다."})
	if _, err := node.Execute(context.Background(), "q"); err == nil {
		t.Fatal("reply without sql must be an error")
	}

	node = newTestNode(t, &scriptedOracle{err: errors.New("timeout")})
	if _, err := node.Execute(context.Background(), "q"); err == nil {
		t.Fatal("oracle failure must be an error")
	}
}

func TestExtractSQL_WithCTE(t *testing.T) {
	reply := "WITH ranked AS (SELECT * FROM stock_prices)\nSELECT stock_name FROM ranked;"
	got := extractSQL(reply)
	if !strings.HasPrefix(got, "WITH ranked") || strings.HasSuffix(got, ";") {
		t.Errorf("cte extraction wrong: %q", got)
	}
}

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package text2sql

import "strings"

// =============================================================================
// Schema Knowledge for SQL Generation
// =============================================================================

// stockPricesSchema is the one table the generated SQL may touch.
const stockPricesSchema = `CREATE TABLE stock_prices (
    trading_date TEXT,          -- 거래일 (YYYY-MM-DD 형식)
    ticker TEXT,                -- 종목 코드 (예: 005930.KS, 035420.KQ)
    stock_name TEXT,            -- 종목명 (예: 삼성전자, 네이버)
    market TEXT,                -- 시장 구분 (KOSPI/KOSDAQ)

    -- 가격 정보
    open_price REAL,            -- 시가 (시초가)
    high_price REAL,            -- 고가 (당일 최고가)
    low_price REAL,             -- 저가 (당일 최저가)
    close_price REAL,           -- 종가 (마감가)
    adj_close_price REAL,       -- 조정 종가
    prev_close_price REAL,      -- 전일 종가

    -- 변동 정보
    change REAL,                -- 전일 대비 변동액 (원)
    change_rate REAL,           -- 전일 대비 등락률 (%)

    -- 거래 정보
    trading_volume INTEGER      -- 거래량 (주)
);`

// columnNotes carries per-concern guidance appended below the table schema.
// The directive gives no hint which concern a question touches, so every
// section ships with every prompt.
var columnNotes = []struct {
	title string
	body  string
}{
	{"거래량", `- trading_volume: 해당 날짜에 거래된 주식 수량 (단위: 주)
- 전날 대비 거래량 비교: LAG() 함수 사용
- 거래량 증가율: ((오늘 거래량 - 전날 거래량) / 전날 거래량) * 100`},
	{"주가", `- open_price: 시가, high_price: 고가, low_price: 저가
- close_price: 종가 (가장 일반적), adj_close_price: 조정 종가
- 가격 범위: close_price BETWEEN 100000 AND 200000`},
	{"등락률", `- change_rate: 전일 대비 등락률 (%, 음수=하락, 양수=상승)
- change: 전일 대비 변동액 (원), prev_close_price: 전일 종가
- change_rate = ((close_price - prev_close_price) / prev_close_price) * 100`},
	{"복합조건", `- 날짜 조건: trading_date, 시장 구분: market ('KOSPI' 또는 'KOSDAQ')
- 여러 조건은 AND로 결합, 전날 대비 비교는 CTE + LAG() 사용`},
}

// commonPatterns are the SQL idioms the oracle should reuse.
var commonPatterns = []struct {
	name string
	sql  string
}{
	{"전날_대비_비교", "LAG(컬럼명) OVER (PARTITION BY ticker ORDER BY trading_date) as prev_컬럼명"},
	{"증가율_계산", "((현재값 - 이전값) / 이전값) * 100 as 증가율"},
	{"순위_매기기", "ROW_NUMBER() OVER (ORDER BY 컬럼명 DESC) as ranking"},
	{"시장_필터링", "WHERE ticker LIKE '%.KS'  -- KOSPI\nWHERE ticker LIKE '%.KQ'  -- KOSDAQ"},
}

// schemaInfo assembles the full schema section of the generation prompt.
func schemaInfo() string {
	var b strings.Builder
	b.WriteString(stockPricesSchema)
	for _, note := range columnNotes {
		b.WriteString("\n\n### " + note.title + " 관련 정보:\n")
		b.WriteString(note.body)
	}
	b.WriteString("\n\n### 자주 사용되는 SQL 패턴:")
	for _, p := range commonPatterns {
		b.WriteString("\n\n" + p.name + ":\n" + p.sql)
	}
	return b.String()
}

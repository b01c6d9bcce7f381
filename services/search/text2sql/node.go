// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package text2sql serves the computation escalation path: questions no
// fixed operation can answer are turned into a read-only SQL query over the
// price table and executed directly.
package text2sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("stocksearch.text2sql")

// Oracle generates SQL from a natural-language question.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Node converts a question to SQL and runs it against the price database.
//
// Thread Safety:
//
//	A Node is safe for concurrent use; it holds no per-request state.
type Node struct {
	db     *sql.DB
	oracle Oracle
	logger *slog.Logger
}

// NewNode builds a Node over the stock price database handle.
func NewNode(db *sql.DB, oracle Oracle, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{db: db, oracle: oracle, logger: logger}
}

const generationPrompt = `당신은 주식 데이터베이스 전문가입니다. 다음 질문을 SQL 쿼리로 변환하세요.

### 데이터베이스 스키마:
%s

### 사용자 질문:
%s

### 중요한 규칙:
1. 반드시 stock_prices 테이블만 사용하세요
2. 날짜는 'YYYY-MM-DD' 형식으로 처리하세요
3. 시장 구분: KOSPI는 ticker LIKE '%%.KS', KOSDAQ는 ticker LIKE '%%.KQ'
4. 계산이 필요한 경우 서브쿼리나 CTE(WITH절)를 사용하세요
5. 결과는 의미있는 컬럼들만 SELECT 하세요 (stock_name, close_price, change_rate, trading_volume 등)
6. LIMIT을 명시하지 않은 경우 상위 50개로 제한하세요
7. 퍼센트 계산: (new_value - old_value) / old_value >= 비율 (예: 1.0 = 100%%)

### 출력 형식:
` + "```sql" + `
-- 생성된 SQL 쿼리만 반환
SELECT ...
` + "```" + `

SQL 쿼리:`

// Execute answers one question via generated SQL. Generation or execution
// failures return errors; the executor records them as tool errors.
func (n *Node) Execute(ctx context.Context, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "text2sql.Execute")
	defer span.End()

	reply, err := n.oracle.Complete(ctx, "", fmt.Sprintf(generationPrompt, schemaInfo(), question))
	if err != nil {
		return "", fmt.Errorf("generating sql: %w", err)
	}

	query := extractSQL(reply)
	if query == "" {
		return "", fmt.Errorf("no sql statement in oracle reply")
	}
	if !isReadOnly(query) {
		return "", fmt.Errorf("generated statement is not a select: %.60s", query)
	}
	n.logger.Info("generated sql", slog.String("query", query))
	span.SetAttributes(attribute.Int("sql.length", len(query)))

	rows, err := n.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("executing generated sql: %w", err)
	}
	defer rows.Close()

	result, count, err := renderRows(rows)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.Int("sql.rows", count))
	if count == 0 {
		return fmt.Sprintf("'%s' 조건에 맞는 종목이 없습니다.", question), nil
	}
	return result, nil
}

// =============================================================================
// SQL Extraction and Guarding
// =============================================================================

var sqlFencePattern = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")

// sqlComment strips "-- ..." lines the prompt's output format encourages.
var sqlComment = regexp.MustCompile(`(?m)^\s*--.*$`)

// extractSQL pulls the statement out of the oracle's reply: a fenced sql
// block when present, otherwise the first run of lines starting at SELECT or
// WITH.
func extractSQL(reply string) string {
	if m := sqlFencePattern.FindStringSubmatch(reply); m != nil {
		return cleanSQL(m[1])
	}

	var collected []string
	inSQL := false
	for _, line := range strings.Split(reply, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		if !inSQL && (strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")) {
			inSQL = true
		}
		if inSQL {
			collected = append(collected, trimmed)
			if strings.HasSuffix(trimmed, ";") {
				break
			}
		}
	}
	return cleanSQL(strings.Join(collected, "\n"))
}

func cleanSQL(s string) string {
	s = sqlComment.ReplaceAllString(s, "")
	return strings.TrimSuffix(strings.TrimSpace(s), ";")
}

// isReadOnly admits only SELECT and WITH statements.
func isReadOnly(query string) bool {
	upper := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// =============================================================================
// Result Rendering
// =============================================================================

// displayCap bounds how many rows appear in the rendered payload; counting
// continues past it.
const displayCap = 50

// koreanColumn maps result columns to user-facing names.
var koreanColumn = map[string]string{
	"stock_name":     "종목명",
	"close_price":    "종가",
	"open_price":     "시가",
	"high_price":     "고가",
	"low_price":      "저가",
	"change_rate":    "등락률",
	"trading_volume": "거래량",
	"trading_date":   "날짜",
	"ticker":         "종목코드",
}

var priceColumns = map[string]bool{
	"close_price": true, "open_price": true, "high_price": true, "low_price": true,
	"adj_close_price": true, "prev_close_price": true,
}

// renderRows formats a dynamic result set as numbered Korean lines.
func renderRows(rows *sql.Rows) (string, int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return "", 0, fmt.Errorf("reading result columns: %w", err)
	}

	var lines []string
	count := 0
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", 0, fmt.Errorf("scanning result row: %w", err)
		}
		count++
		if count > displayCap {
			continue
		}

		parts := make([]string, 0, len(cols))
		for i, col := range cols {
			name := koreanColumn[col]
			if name == "" {
				name = col
			}
			parts = append(parts, fmt.Sprintf("%s: %s", name, renderValue(col, values[i])))
		}
		lines = append(lines, fmt.Sprintf("%d. %s", count, strings.Join(parts, " / ")))
	}
	if err := rows.Err(); err != nil {
		return "", 0, fmt.Errorf("iterating result rows: %w", err)
	}
	if count == 0 {
		return "", 0, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "조건을 만족하는 종목 %d개:\n", count)
	for _, line := range lines {
		b.WriteString("\n" + line)
	}
	if count > displayCap {
		fmt.Fprintf(&b, "\n\n... 총 %d개 중 상위 %d개만 표시", count, displayCap)
	}
	return b.String(), count, nil
}

func renderValue(col string, v any) string {
	switch {
	case priceColumns[col]:
		if f, ok := asFloat(v); ok {
			return comma(int64(f+0.5)) + "원"
		}
	case col == "change_rate":
		if f, ok := asFloat(v); ok {
			return fmt.Sprintf("%+.2f%%", f)
		}
	case col == "trading_volume":
		if f, ok := asFloat(v); ok {
			return comma(int64(f)) + "주"
		}
	}

	switch t := v.(type) {
	case nil:
		return "-"
	case []byte:
		return string(t)
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// comma renders an integer with thousands separators.
func comma(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	raw := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range raw {
		if i > 0 && (len(raw)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

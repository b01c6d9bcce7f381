// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ops binds the agent's capability table to the market data backend.
// Each operation extracts its parameters from the natural-language question
// via the oracle, then runs the matching query. Missing parameters are
// reported as Korean text the validation classifier recognizes, never as
// errors.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/kquant/stocksearch/services/search/agent"
)

// =============================================================================
// Oracle-Backed Parameter Extraction
// =============================================================================

// extractionPrompt is the parameter-extraction request. The schema slot shows
// the exact JSON shape to fill; the rules slot carries per-operation mapping
// rules.
const extractionPrompt = `다음 질문에서 필요한 파라미터를 추출하세요:
주의: 학습된 날짜 이후의 파라미터를 추출해야 할 수도 있습니다.

질문: %s

JSON으로만 응답: %s

%s

반드시 JSON 형식으로만 응답하고 다른 설명은 하지 마세요.`

// jsonObjectPattern matches a JSON object with at most one level of nesting,
// anywhere in the oracle's reply.
var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// Extractor pulls typed parameters out of a question using the oracle.
type Extractor struct {
	oracle agent.Oracle
	logger *slog.Logger
}

// NewExtractor builds an Extractor. A nil logger falls back to the default.
func NewExtractor(oracle agent.Oracle, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{oracle: oracle, logger: logger}
}

// Extract asks the oracle to fill the schema for one question. ok is false
// when no JSON object could be recovered at all; individual missing fields
// are left for the caller to detect.
func (e *Extractor) Extract(ctx context.Context, question, schema, rules string) (Params, bool) {
	reply, err := e.oracle.Complete(ctx, "", fmt.Sprintf(extractionPrompt, question, schema, rules))
	if err != nil {
		e.logger.Warn("parameter extraction failed", slog.String("error", err.Error()))
		return nil, false
	}

	raw := jsonObjectPattern.FindString(reply)
	if raw == "" {
		raw = strings.TrimSpace(reply)
	}
	var p Params
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		e.logger.Warn("parameter extraction returned no JSON",
			slog.String("reply", reply),
		)
		return nil, false
	}
	return p, true
}

// Params is one extracted parameter set. Getters tolerate the value shapes
// oracles actually emit: numbers as JSON numbers or quoted strings, nulls for
// absent optionals.
type Params map[string]any

// Str returns a non-empty string field.
func (p Params) Str(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// StrOr returns a string field or the default.
func (p Params) StrOr(key, def string) string {
	if s, ok := p.Str(key); ok {
		return s
	}
	return def
}

func (p Params) float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// FloatPtr returns a pointer to a numeric field, nil when absent or null.
func (p Params) FloatPtr(key string) *float64 {
	f, ok := p.float(key)
	if !ok {
		return nil
	}
	return &f
}

// FloatOr returns a numeric field or the default.
func (p Params) FloatOr(key string, def float64) float64 {
	if f, ok := p.float(key); ok {
		return f
	}
	return def
}

// IntOr returns an integer field or the default.
func (p Params) IntOr(key string, def int) int {
	if f, ok := p.float(key); ok {
		return int(f)
	}
	return def
}

// Int64Ptr returns a pointer to an integer field, nil when absent or null.
func (p Params) Int64Ptr(key string) *int64 {
	f, ok := p.float(key)
	if !ok {
		return nil
	}
	n := int64(f)
	return &n
}

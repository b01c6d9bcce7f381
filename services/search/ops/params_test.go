// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ops

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedOracle replies with a fixed payload and records each prompt.
type scriptedOracle struct {
	reply   string
	err     error
	prompts []string
}

func (o *scriptedOracle) Complete(ctx context.Context, system, user string) (string, error) {
	o.prompts = append(o.prompts, user)
	return o.reply, o.err
}

func TestExtract_JSONEmbeddedInProse(t *testing.T) {
	oracle := &scriptedOracle{reply: `추출 결과입니다: {"date": "2025-11-06", "limit": 10} 이상입니다.`}
	ex := NewExtractor(oracle, nil)

	p, ok := ex.Extract(context.Background(), "11월 6일 상위 10개", `{"date": "YYYY-MM-DD"}`, "")
	if !ok {
		t.Fatal("extraction should succeed")
	}
	if date, _ := p.Str("date"); date != "2025-11-06" {
		t.Errorf("date = %q", date)
	}
	if p.IntOr("limit", 0) != 10 {
		t.Errorf("limit = %d", p.IntOr("limit", 0))
	}

	// The question and schema both reach the oracle.
	if len(oracle.prompts) != 1 || !strings.Contains(oracle.prompts[0], "11월 6일 상위 10개") {
		t.Errorf("question missing from prompt: %v", oracle.prompts)
	}
	if !strings.Contains(oracle.prompts[0], `{"date": "YYYY-MM-DD"}`) {
		t.Errorf("schema missing from prompt")
	}
}

func TestExtract_NoJSONAndOracleFailure(t *testing.T) {
	ex := NewExtractor(&scriptedOracle{reply: "날짜를 알 수 없습니다"}, nil)
	if _, ok := ex.Extract(context.Background(), "q", "{}", ""); ok {
		t.Error("prose-only reply should fail extraction")
	}

	ex = NewExtractor(&scriptedOracle{err: errors.New("rate limited")}, nil)
	if _, ok := ex.Extract(context.Background(), "q", "{}", ""); ok {
		t.Error("oracle failure should fail extraction")
	}
}

func TestParams_Getters(t *testing.T) {
	p := Params{
		"date":     "2025-11-06",
		"blank":    "  ",
		"explicit": nil,
		"rate":     float64(3.5),
		"quoted":   "70",
		"volume":   float64(1000000),
	}

	if _, ok := p.Str("blank"); ok {
		t.Error("blank string should not count as present")
	}
	if _, ok := p.Str("explicit"); ok {
		t.Error("explicit null should not count as present")
	}
	if p.StrOr("missing", "기본") != "기본" {
		t.Error("StrOr default not applied")
	}

	if f := p.FloatPtr("rate"); f == nil || *f != 3.5 {
		t.Errorf("FloatPtr(rate) = %v", f)
	}
	// Oracles sometimes quote numbers.
	if f := p.FloatPtr("quoted"); f == nil || *f != 70 {
		t.Errorf("FloatPtr(quoted) = %v", f)
	}
	if f := p.FloatPtr("explicit"); f != nil {
		t.Errorf("FloatPtr(null) = %v", f)
	}
	if n := p.Int64Ptr("volume"); n == nil || *n != 1000000 {
		t.Errorf("Int64Ptr(volume) = %v", n)
	}
	if p.FloatOr("missing", 0.03) != 0.03 {
		t.Error("FloatOr default not applied")
	}
}

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import "testing"

// =============================================================================
// Validation Classifier Tests
// =============================================================================

func TestClassify_ParamMissingSignatures(t *testing.T) {
	payloads := []string{
		"질문을 이해할 수 없습니다. 다시 시도해 주세요.",
		"오류: 날짜 정보를 찾을 수 없습니다",
		"검색 조건을 찾을 수 없습니다",
		"임계값을 찾을 수 없습니다",
		"질문에서 파라미터를 추출할 수 없습니다",
	}
	for _, p := range payloads {
		if v := Classify(p); v != VerdictParamMissing {
			t.Errorf("Classify(%q) = %q, want param_missing", p, v)
		}
	}
}

func TestClassify_WhitespaceTolerant(t *testing.T) {
	p := "날짜   정보를\n찾을 수\t없습니다"
	if v := Classify(p); v != VerdictParamMissing {
		t.Errorf("Classify with irregular whitespace = %q, want param_missing", v)
	}
}

func TestClassify_ToolErrorMarkers(t *testing.T) {
	payloads := []string{
		"get_stock_price 실행 중 오류: connection refused",
		"오류 발생: database is locked",
		"알 수 없는 도구: get_weather",
	}
	for _, p := range payloads {
		if v := Classify(p); v != VerdictToolError {
			t.Errorf("Classify(%q) = %q, want tool_error", p, v)
		}
	}
}

func TestClassify_EmptyPayload_ToolError(t *testing.T) {
	if v := Classify("   \n "); v != VerdictToolError {
		t.Errorf("Classify(blank) = %q, want tool_error", v)
	}
}

func TestClassify_AmbiguousDefaultsToSuccess(t *testing.T) {
	payloads := []string{
		"삼성전자 (005930) 2025-11-06 종가: 71,500원",
		"검색 결과가 없습니다.",
		"코스피 2,501.23 (+0.45%)",
	}
	for _, p := range payloads {
		if v := Classify(p); v != VerdictSuccess {
			t.Errorf("Classify(%q) = %q, want success", p, v)
		}
	}
}

func TestClassify_ParamMissingWinsOverToolError(t *testing.T) {
	p := "실행 중 오류 이후 재시도: 날짜 정보를 찾을 수 없습니다"
	if v := Classify(p); v != VerdictParamMissing {
		t.Errorf("Classify = %q, want param_missing to take precedence", v)
	}
}

func TestMissingInfo(t *testing.T) {
	hint := MissingInfo("조회 실패: 날짜 정보를 찾을 수 없습니다")
	if hint != "정확한 날짜 (예: 2025-11-06)" {
		t.Errorf("unexpected hint: %q", hint)
	}
	if got := MissingInfo("정상 결과입니다"); got != "" {
		t.Errorf("expected empty hint for success payload, got %q", got)
	}
}

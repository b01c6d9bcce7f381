// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import "strings"

// =============================================================================
// Validation Classifier
// =============================================================================

// failureSignature maps a backend failure phrase to the specific piece of
// information the clarification message should ask for.
type failureSignature struct {
	// Phrase is the exact backend phrase indicating a missing parameter.
	// Matching is whitespace tolerant; the phrases are long enough that
	// legitimate result content does not contain them.
	Phrase string

	// Missing names what the user must supply, in user-facing terms.
	Missing string
}

// paramMissingSignatures is the fixed, process-wide signature list. Read-only
// after initialization; the backends emit these phrases verbatim when they
// cannot extract a required parameter from the question.
var paramMissingSignatures = []failureSignature{
	{Phrase: "질문을 이해할 수 없습니다", Missing: "질문의 의도를 더 구체적으로"},
	{Phrase: "날짜 정보를 찾을 수 없습니다", Missing: "정확한 날짜 (예: 2025-11-06)"},
	{Phrase: "조건을 찾을 수 없습니다", Missing: "구체적인 검색 조건 (예: RSI 70 이상)"},
	{Phrase: "임계값을 찾을 수 없습니다", Missing: "수치 임계값 (예: 거래량 100만주 이상)"},
	{Phrase: "파라미터를 추출할 수 없습니다", Missing: "조회에 필요한 파라미터"},
}

// toolErrorMarkers are backend phrases that indicate an execution failure
// rather than a missing parameter. These come from the operation layer's
// error rendering; they never appear in legitimate result rows.
var toolErrorMarkers = []string{
	"실행 중 오류",
	"오류 발생:",
	"알 수 없는 도구:",
}

// Classify derives a validation verdict from a raw result payload.
//
// Description:
//
//	Pure string containment over the fixed signature lists, tolerant of
//	whitespace differences. Any param_missing signature wins over error
//	markers because a missing parameter is recoverable and the router
//	should prefer clarification over giving up. An empty payload is a
//	tool error (the backend contract promises text either way). Ambiguous
//	payloads classify as success: forward progress beats an unnecessary
//	clarification round-trip.
//
// Inputs:
//   - payload: Raw result text from an operation.
//
// Outputs:
//   - Verdict: success, param_missing, or tool_error.
func Classify(payload string) Verdict {
	folded := foldWhitespace(payload)
	if folded == "" {
		return VerdictToolError
	}
	for _, sig := range paramMissingSignatures {
		if strings.Contains(folded, foldWhitespace(sig.Phrase)) {
			return VerdictParamMissing
		}
	}
	for _, marker := range toolErrorMarkers {
		if strings.Contains(folded, marker) {
			return VerdictToolError
		}
	}
	return VerdictSuccess
}

// MissingInfo returns the user-facing description of what is missing for a
// param_missing payload, or the empty string when no signature matches.
func MissingInfo(payload string) string {
	folded := foldWhitespace(payload)
	for _, sig := range paramMissingSignatures {
		if strings.Contains(folded, foldWhitespace(sig.Phrase)) {
			return sig.Missing
		}
	}
	return ""
}

// foldWhitespace collapses all whitespace runs to single spaces so signature
// matching survives line wrapping and padding differences.
func foldWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

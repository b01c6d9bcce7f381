// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Prompt Builders
// =============================================================================

// planningSystem renders the directive-planning system prompt: capability
// list, the invocation formats the parser understands, and the current date
// so relative date expressions resolve deterministically.
func planningSystem(descriptions string, now time.Time) string {
	return fmt.Sprintf(`당신은 한국 주식 시장 전문 검색 에이전트입니다. 오늘 날짜는 %s입니다.
사용자의 질문에 답하기 위해 아래 도구 중 필요한 것을 선택하세요.

사용 가능한 도구:
%s

도구를 호출하려면 반드시 아래 형식으로 한 줄씩 작성하세요:
TOOL_CALL: {"name": "<도구 이름>", "args": "<도구에 전달할 질문>"}

여러 도구가 필요하면 TOOL_CALL 줄을 여러 개 작성하세요.
고정 도구로 답할 수 없는 시장 전체 집계나 비율 질문은 다음 형식을 사용하세요:
TEXT2SQL: {"action": "text2sql", "args": "<질문>"}

예시:
질문: 삼성전자 2025-11-06 종가는?
TOOL_CALL: {"name": "get_stock_price", "args": "삼성전자의 2025-11-06 종가는?"}

질문: 어제 거래량 상위 5개 종목과 코스피 지수는?
TOOL_CALL: {"name": "search_volume", "args": "어제 거래량 상위 5개 종목은?"}
TOOL_CALL: {"name": "get_market_index", "args": "어제 코스피 지수는?"}

회사명은 상장된 정식 종목명으로 해석하세요 (예: 네이버 → NAVER).
날짜가 없는 시세 질문은 가장 최근 거래일 기준으로 해석하세요.
도구로 답할 수 없는 질문이면 도구 호출 없이 그 이유만 설명하세요.`,
		now.Format("2006-01-02"), descriptions)
}

// compositionSystem is the answer-composition system prompt for the simple
// oracle. It binds the answer to the recorded results and requires failures
// to be surfaced rather than papered over.
func compositionSystem() string {
	return `당신은 금융 데이터 조회 결과를 설명하는 어시스턴트입니다.
아래 조회 결과만 근거로 사용자의 질문에 한국어로 답변하세요.
결과에 없는 내용은 추측하지 마세요.
조회에 실패했거나 오류가 기록된 항목이 있으면 그 사실을 숨기지 말고 알려주세요.
숫자는 결과에 있는 그대로 인용하세요.`
}

// compositionUser renders the composition request: the original question and
// the full record payload. degraded adds an instruction to state that the
// answer was produced from incomplete information.
func compositionUser(query, payload string, degraded bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "질문: %s\n\n조회 결과:\n%s", query, payload)
	if strings.TrimSpace(payload) == "" {
		b.WriteString("(조회된 결과가 없습니다)")
	}
	b.WriteString("\n\n위 결과를 바탕으로 질문에 답변하세요.")
	if degraded {
		b.WriteString("\n필요한 정보를 모두 확보하지 못한 상태입니다. 답변이 불완전할 수 있음을 반드시 명시하세요.")
	}
	return b.String()
}

// clarificationMessage builds the user-facing clarification request from the
// missing-information hints of the matched failure signatures. Hints are
// de-duplicated and listed in first-seen order.
func clarificationMessage(hints []string) string {
	seen := make(map[string]struct{}, len(hints))
	uniq := make([]string, 0, len(hints))
	for _, h := range hints {
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		uniq = append(uniq, h)
	}

	if len(uniq) == 0 {
		return "질문을 처리하기 위해 추가 정보가 필요합니다. 질문을 더 구체적으로 작성해 주세요."
	}

	var b strings.Builder
	b.WriteString("질문을 처리하기 위해 추가 정보가 필요합니다.\n다음 정보를 포함해 다시 질문해 주세요:\n")
	for _, h := range uniq {
		fmt.Fprintf(&b, "- %s\n", h)
	}
	return strings.TrimRight(b.String(), "\n")
}

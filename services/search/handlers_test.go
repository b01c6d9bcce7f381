// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kquant/stocksearch/services/search/agent"
)

// scriptedRunner returns a fixed result and records what it was asked.
type scriptedRunner struct {
	result agent.Result
	err    error

	gotQuestion   string
	gotRetryCount int
	calls         int
}

func (r *scriptedRunner) Answer(_ context.Context, question string, retryCount int) (agent.Result, error) {
	r.calls++
	r.gotQuestion = question
	r.gotRetryCount = retryCount
	return r.result, r.err
}

func newTestRouter(runner QueryRunner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	v1 := engine.Group("/v1")
	RegisterRoutes(v1, NewHandlers(runner, nil))
	return engine
}

func postSearch(t *testing.T, engine *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch_Success(t *testing.T) {
	runner := &scriptedRunner{result: agent.Result{
		SessionID:  "sess-1",
		Outcome:    agent.OutcomeAnswer,
		Answer:     "삼성전자의 종가는 71,500원입니다.",
		RetryCount: 0,
	}}
	engine := newTestRouter(runner)

	rec := postSearch(t, engine, `{"question": "삼성전자 종가 알려줘"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID != "sess-1" || resp.Outcome != "answer" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Answer != "삼성전자의 종가는 71,500원입니다." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if runner.gotQuestion != "삼성전자 종가 알려줘" || runner.gotRetryCount != 0 {
		t.Errorf("runner saw question=%q retry=%d", runner.gotQuestion, runner.gotRetryCount)
	}
}

func TestHandleSearch_ClarificationRoundTrip(t *testing.T) {
	runner := &scriptedRunner{result: agent.Result{
		SessionID:  "sess-2",
		Outcome:    agent.OutcomeClarification,
		Answer:     "날짜 정보를 찾을 수 없습니다. 질문에 날짜를 포함해 주세요.",
		RetryCount: 1,
	}}
	engine := newTestRouter(runner)

	rec := postSearch(t, engine, `{"question": "시장 통계 알려줘", "retry_count": 0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Outcome != "clarification" || resp.RetryCount != 1 {
		t.Errorf("clarification response = %+v", resp)
	}

	// The caller's follow-up carries the returned count so the cap spans
	// the whole exchange.
	rec = postSearch(t, engine, `{"question": "11월 6일 시장 통계", "retry_count": 1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("follow-up status = %d", rec.Code)
	}
	if runner.gotRetryCount != 1 {
		t.Errorf("follow-up retry count = %d", runner.gotRetryCount)
	}
}

func TestHandleSearch_BadRequests(t *testing.T) {
	runner := &scriptedRunner{}
	engine := newTestRouter(runner)

	for name, body := range map[string]string{
		"empty body":     ``,
		"no question":    `{}`,
		"blank question": `{"question": "   "}`,
		"bad json":       `{"question": `,
	} {
		rec := postSearch(t, engine, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", name, rec.Code)
		}
	}
	if runner.calls != 0 {
		t.Errorf("runner invoked %d times on bad requests", runner.calls)
	}
}

func TestHandleSearch_NegativeRetryCountClamped(t *testing.T) {
	runner := &scriptedRunner{result: agent.Result{Outcome: agent.OutcomeAnswer}}
	engine := newTestRouter(runner)

	rec := postSearch(t, engine, `{"question": "삼성전자?", "retry_count": -3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if runner.gotRetryCount != 0 {
		t.Errorf("retry count = %d, want 0", runner.gotRetryCount)
	}
}

func TestHandleSearch_AbandonedSession(t *testing.T) {
	runner := &scriptedRunner{err: errors.New("session sess-3 abandoned: context canceled")}
	engine := newTestRouter(runner)

	rec := postSearch(t, engine, `{"question": "삼성전자?"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.Code != "SESSION_ABANDONED" {
		t.Errorf("error code = %q", resp.Code)
	}
}

func TestRequestID_EchoedAndMinted(t *testing.T) {
	runner := &scriptedRunner{result: agent.Result{Outcome: agent.OutcomeAnswer}}
	engine := newTestRouter(runner)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"question": "q"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("request id not echoed: %q", got)
	}

	rec = postSearch(t, engine, `{"question": "q"}`)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id not minted")
	}
}

func TestHandleHealth(t *testing.T) {
	engine := newTestRouter(&scriptedRunner{})

	req := httptest.NewRequest(http.MethodGet, "/v1/search/health", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

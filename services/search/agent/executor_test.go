// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Mock Collaborators for Testing
// =============================================================================

// stubTable implements CapabilityTable over a static map.
type stubTable struct {
	ops map[string]Operation
}

func (s *stubTable) Lookup(name string) (Operation, bool) {
	op, ok := s.ops[name]
	return op, ok
}

func (s *stubTable) Descriptions() string {
	var b strings.Builder
	for name := range s.ops {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}

func newStubTable(ops ...Operation) *stubTable {
	t := &stubTable{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		t.ops[op.Name] = op
	}
	return t
}

// echoOp returns a fixed payload for every question.
func echoOp(name, payload string) Operation {
	return Operation{
		Name: name,
		Handler: func(ctx context.Context, question string) (string, error) {
			return payload, nil
		},
	}
}

// memCache is a map-backed ResultCache.
type memCache struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newMemCache() *memCache { return &memCache{data: make(map[string]string)} }

func (c *memCache) Get(ctx context.Context, op, question string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[op+"|"+question]
	return v, ok
}

func (c *memCache) Set(ctx context.Context, op, question, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[op+"|"+question] = result
	c.sets++
}

// =============================================================================
// Operation Executor Tests
// =============================================================================

func TestExecuteBatch_UnknownOperation_ToolError(t *testing.T) {
	invoked := false
	table := newStubTable(Operation{
		Name: "get_stock_price",
		Handler: func(ctx context.Context, question string) (string, error) {
			invoked = true
			return "", nil
		},
	})
	exec := NewExecutor(table, nil, nil)
	sess := NewSession("테스트")

	verdict := exec.ExecuteBatch(context.Background(), sess, []Directive{NewDirective("get_weather", "내일 날씨는?")})
	if verdict != VerdictToolError {
		t.Fatalf("expected tool_error, got %q", verdict)
	}
	if invoked {
		t.Error("known handler was invoked for an unknown directive")
	}
	if len(sess.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sess.Records))
	}
	if !strings.Contains(sess.Records[0].Result, "알 수 없는 도구: get_weather") {
		t.Errorf("unexpected record payload: %q", sess.Records[0].Result)
	}
}

func TestExecuteBatch_HandlerError_ToolError(t *testing.T) {
	table := newStubTable(Operation{
		Name: "get_stock_price",
		Handler: func(ctx context.Context, question string) (string, error) {
			return "", errors.New("database is locked")
		},
	})
	exec := NewExecutor(table, nil, nil)
	sess := NewSession("삼성전자 종가는?")

	verdict := exec.ExecuteBatch(context.Background(), sess, []Directive{NewDirective("get_stock_price", "삼성전자 종가는?")})
	if verdict != VerdictToolError {
		t.Fatalf("expected tool_error, got %q", verdict)
	}
	if !strings.Contains(sess.Records[0].Result, "실행 중 오류") {
		t.Errorf("error not encoded in payload: %q", sess.Records[0].Result)
	}
}

func TestExecuteBatch_HandlerPanic_Recovered(t *testing.T) {
	table := newStubTable(Operation{
		Name: "get_rsi_signals",
		Handler: func(ctx context.Context, question string) (string, error) {
			panic("index out of range")
		},
	})
	exec := NewExecutor(table, nil, nil)
	sess := NewSession("RSI 과매수 종목은?")

	verdict := exec.ExecuteBatch(context.Background(), sess, []Directive{NewDirective("get_rsi_signals", "RSI 과매수 종목은?")})
	if verdict != VerdictToolError {
		t.Fatalf("expected tool_error after panic, got %q", verdict)
	}
	if len(sess.Records) != 1 || sess.Records[0].Verdict != VerdictToolError {
		t.Fatalf("panic not converted to a record: %+v", sess.Records)
	}
}

func TestExecuteBatch_EmissionOrderPreserved(t *testing.T) {
	// The first directive finishes last; history must still lead with it.
	table := newStubTable(
		Operation{
			Name: "slow_op",
			Handler: func(ctx context.Context, question string) (string, error) {
				time.Sleep(30 * time.Millisecond)
				return "slow 결과", nil
			},
		},
		echoOp("fast_op", "fast 결과"),
	)
	exec := NewExecutor(table, nil, nil)
	sess := NewSession("비교 질문")

	batch := []Directive{
		NewDirective("slow_op", "a"),
		NewDirective("fast_op", "b"),
	}
	if v := exec.ExecuteBatch(context.Background(), sess, batch); v != VerdictSuccess {
		t.Fatalf("expected success, got %q", v)
	}
	if sess.Records[0].Op != "slow_op" || sess.Records[1].Op != "fast_op" {
		t.Errorf("emission order not preserved: %q, %q", sess.Records[0].Op, sess.Records[1].Op)
	}
}

func TestExecuteBatch_VerdictPrecedence(t *testing.T) {
	table := newStubTable(
		echoOp("ok_op", "정상 결과"),
		echoOp("missing_op", "날짜 정보를 찾을 수 없습니다"),
		echoOp("error_op", "오류 발생: timeout"),
	)
	exec := NewExecutor(table, nil, nil)

	sess := NewSession("q")
	v := exec.ExecuteBatch(context.Background(), sess, []Directive{
		NewDirective("ok_op", "a"),
		NewDirective("error_op", "b"),
		NewDirective("missing_op", "c"),
	})
	if v != VerdictParamMissing {
		t.Errorf("param_missing should outrank tool_error, got %q", v)
	}

	sess = NewSession("q")
	v = exec.ExecuteBatch(context.Background(), sess, []Directive{
		NewDirective("ok_op", "a"),
		NewDirective("error_op", "b"),
	})
	if v != VerdictToolError {
		t.Errorf("tool_error should outrank success, got %q", v)
	}
}

func TestExecuteBatch_EmptyBatch_Success(t *testing.T) {
	exec := NewExecutor(newStubTable(), nil, nil)
	sess := NewSession("q")
	if v := exec.ExecuteBatch(context.Background(), sess, nil); v != VerdictSuccess {
		t.Errorf("empty batch should be success, got %q", v)
	}
	if len(sess.Records) != 0 {
		t.Errorf("empty batch appended records: %d", len(sess.Records))
	}
}

func TestExecutor_CachesSuccessOnly(t *testing.T) {
	calls := 0
	table := newStubTable(
		Operation{
			Name: "get_stock_price",
			Handler: func(ctx context.Context, question string) (string, error) {
				calls++
				return "삼성전자 종가: 71,500원", nil
			},
		},
		echoOp("missing_op", "날짜 정보를 찾을 수 없습니다"),
	)
	cache := newMemCache()
	exec := NewExecutor(table, cache, nil)

	d := NewDirective("get_stock_price", "삼성전자 종가는?")
	exec.ExecuteBatch(context.Background(), NewSession("q"), []Directive{d})
	exec.ExecuteBatch(context.Background(), NewSession("q"), []Directive{d})
	if calls != 1 {
		t.Errorf("expected 1 backend call with cache hit, got %d", calls)
	}

	exec.ExecuteBatch(context.Background(), NewSession("q"), []Directive{NewDirective("missing_op", "언제?")})
	if cache.sets != 1 {
		t.Errorf("param_missing result must not be cached; sets = %d", cache.sets)
	}
}

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClovaClient_Chat(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq clovaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(clovaResponse{
			Status: clovaStatus{Code: clovaOK, Message: "OK"},
			Result: clovaResult{Message: Message{Role: "assistant", Content: "삼성전자 종가는 71,500원입니다."}},
		})
	}))
	defer server.Close()

	client, err := NewClovaClient("test-key", "HCX-007", server.URL)
	if err != nil {
		t.Fatalf("NewClovaClient: %v", err)
	}

	got, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "도구 목록"},
		{Role: "user", Content: "삼성전자 종가는?"},
	}, ChatOptions{Temperature: 0.5, MaxTokens: 1024, TopP: 0.8})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "삼성전자 종가는 71,500원입니다." {
		t.Errorf("unexpected reply: %q", got)
	}
	if gotPath != "/HCX-007" {
		t.Errorf("model must be in the request path, got %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("messages not forwarded: %+v", gotReq.Messages)
	}
	if gotReq.MaxTokens == nil || *gotReq.MaxTokens != 1024 {
		t.Errorf("maxTokens not forwarded: %+v", gotReq.MaxTokens)
	}
}

func TestClovaClient_APIStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(clovaResponse{
			Status: clovaStatus{Code: "42901", Message: "Too many requests - rate exceeded"},
		})
	}))
	defer server.Close()

	client, _ := NewClovaClient("test-key", "HCX-007", server.URL)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, ChatOptions{})
	if err == nil || !strings.Contains(err.Error(), "42901") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestOpenAIClient_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", req.Model)
		}
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: Message{Role: "assistant", Content: "안녕하세요"}, FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-key", "gpt-4o-mini", server.URL)
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	got, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "인사해줘"}}, ChatOptions{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "안녕하세요" {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestOpenAIClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"invalid_request_error"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client, _ := NewOpenAIClient("bad-key", "gpt-4o-mini", server.URL)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, ChatOptions{})
	if err == nil || !strings.Contains(err.Error(), "returned 401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if classifyChatError(err) != "auth" {
		t.Errorf("401 should classify as auth, got %q", classifyChatError(err))
	}
}

func TestFactory_RejectsUnknownProvider(t *testing.T) {
	_, err := NewChatClient(RoleConfig{Provider: "llama-at-home", Model: "m", APIKey: "k"}, nil)
	if err == nil {
		t.Fatal("unknown provider must be rejected")
	}
}

// fakeClient counts calls for the limiter and oracle tests.
type fakeClient struct {
	calls    int
	lastMsgs []Message
}

func (f *fakeClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	f.calls++
	f.lastMsgs = messages
	return "ok", nil
}

func (f *fakeClient) Model() string { return "fake" }

func TestWithRateLimit_SpacesCalls(t *testing.T) {
	inner := &fakeClient{}
	client := WithRateLimit(inner, 20, 1) // 50ms spacing

	start := time.Now()
	for range 3 {
		if _, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, ChatOptions{}); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}
	// First call is free; the next two wait ~50ms each.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("calls not spaced by limiter: %v", elapsed)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d", inner.calls)
	}
}

func TestWithRateLimit_ZeroRPSPassthrough(t *testing.T) {
	inner := &fakeClient{}
	if WithRateLimit(inner, 0, 1) != ChatClient(inner) {
		t.Error("zero rps should return the client unchanged")
	}
}

func TestOracle_Complete(t *testing.T) {
	inner := &fakeClient{}
	oracle := NewOracle(inner, ChatOptions{Temperature: 0.1})

	if _, err := oracle.Complete(context.Background(), "시스템 지침", "질문"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(inner.lastMsgs) != 2 || inner.lastMsgs[0].Role != "system" || inner.lastMsgs[1].Content != "질문" {
		t.Errorf("messages wrong: %+v", inner.lastMsgs)
	}

	// Empty system context is omitted entirely.
	oracle.Complete(context.Background(), "", "질문만")
	if len(inner.lastMsgs) != 1 || inner.lastMsgs[0].Role != "user" {
		t.Errorf("empty system not omitted: %+v", inner.lastMsgs)
	}
}

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// =============================================================================
// HyperCLOVA X Wire Types
// =============================================================================

const defaultClovaBaseURL = "https://clovastudio.stream.ntruss.com/v3/chat-completions"

type clovaRequest struct {
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"maxTokens,omitempty"`
	TopP        *float64  `json:"topP,omitempty"`
}

type clovaResponse struct {
	Status clovaStatus `json:"status"`
	Result clovaResult `json:"result"`
}

type clovaStatus struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type clovaResult struct {
	Message    Message `json:"message"`
	StopReason string  `json:"stopReason"`
}

// clovaOK is the status code CLOVA Studio returns on success.
const clovaOK = "20000"

// =============================================================================
// Client Implementation
// =============================================================================

// ClovaClient implements ChatClient for HyperCLOVA X models using raw
// net/http against the CLOVA Studio chat-completions API.
//
// Thread Safety: ClovaClient is safe for concurrent use.
type ClovaClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewClovaClient creates a ClovaClient with explicit configuration. An empty
// baseURL selects the public CLOVA Studio endpoint.
func NewClovaClient(apiKey, model, baseURL string) (*ClovaClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("clova: api key is missing (CLOVASTUDIO_API_KEY)")
	}
	if model == "" {
		return nil, fmt.Errorf("clova: model is missing")
	}
	if baseURL == "" {
		baseURL = defaultClovaBaseURL
	}
	return &ClovaClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}, nil
}

// Model implements ChatClient.
func (c *ClovaClient) Model() string { return c.model }

// Chat implements ChatClient.Chat against CLOVA Studio. The model is part of
// the request path, not the body.
func (c *ClovaClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	ctx, span := otel.Tracer(chatTracerName).Start(ctx, "clova.Chat",
		oteltrace.WithAttributes(
			attribute.String("llm.provider", "clova"),
			attribute.String("llm.model", c.model),
			attribute.Int("llm.messages", len(messages)),
		),
	)
	defer span.End()

	start := time.Now()
	text, err := c.chat(ctx, messages, opts)
	recordChatMetrics("clova", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
	}
	return text, err
}

func (c *ClovaClient) chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	reqBody := clovaRequest{Messages: messages}
	if opts.Temperature >= 0 {
		reqBody.Temperature = &opts.Temperature
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = &opts.MaxTokens
	}
	if opts.TopP > 0 {
		reqBody.TopP = &opts.TopP
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("clova: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+c.model, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("clova: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("clova: sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("clova: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("clova: api returned %d: %.200s", resp.StatusCode, body)
	}

	var parsed clovaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("clova: decoding response: %w", err)
	}
	if parsed.Status.Code != clovaOK {
		return "", fmt.Errorf("clova: api status %s: %s", parsed.Status.Code, parsed.Status.Message)
	}
	return parsed.Result.Message.Content, nil
}

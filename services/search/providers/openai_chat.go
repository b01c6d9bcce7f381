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
)

// =============================================================================
// OpenAI Wire Types
// =============================================================================

const defaultOpenAIBaseURL = "https://api.openai.com/v1/chat/completions"

type openaiRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	MaxCompletionTokens *int      `json:"max_completion_tokens,omitempty"`
	TopP                *float64  `json:"top_p,omitempty"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openaiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// OpenAIClient implements ChatClient for OpenAI models using raw net/http.
// It serves as the fallback oracle when no CLOVA Studio key is configured.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewOpenAIClient creates an OpenAIClient with explicit configuration. An
// empty baseURL selects the public API endpoint.
func NewOpenAIClient(apiKey, model, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: api key is missing (OPENAI_API_KEY)")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model is missing")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}, nil
}

// Model implements ChatClient.
func (o *OpenAIClient) Model() string { return o.model }

// Chat implements ChatClient.Chat using the chat completions API.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	ctx, span := otel.Tracer(chatTracerName).Start(ctx, "openai.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", o.model),
		attribute.Int("llm.messages", len(messages)),
	)

	start := time.Now()
	text, err := o.chat(ctx, messages, opts)
	recordChatMetrics("openai", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
	}
	return text, err
}

func (o *OpenAIClient) chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	reqBody := openaiRequest{Model: o.model, Messages: messages}
	if opts.Temperature >= 0 {
		reqBody.Temperature = &opts.Temperature
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxCompletionTokens = &opts.MaxTokens
	}
	if opts.TopP > 0 {
		reqBody.TopP = &opts.TopP
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("openai: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: api returned %d: %.200s", resp.StatusCode, body)
	}

	var parsed openaiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("openai: decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai: api error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai: response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

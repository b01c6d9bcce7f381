// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package providers defines provider-agnostic chat clients for the oracle
// backends used by the search agent. It enables per-role provider
// configuration (planner, composer, extractor) so each role can use a
// different provider or model (HyperCLOVA, OpenAI).
//
// Thread Safety:
//
//	All interfaces in this package must be implemented as safe for
//	concurrent use.
package providers

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the turn's text.
	Content string `json:"content"`
}

// ChatOptions holds provider-agnostic options for a chat request.
type ChatOptions struct {
	// Temperature controls randomness (0.0-1.0). Set to a negative value
	// to omit from the request and use the provider's default.
	Temperature float64

	// MaxTokens limits the response length. Zero omits the field.
	MaxTokens int

	// TopP is the nucleus-sampling bound. Zero omits the field.
	TopP float64
}

// ChatClient is the minimal interface every oracle role needs: plain chat,
// no tool calls, no streaming.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	// Chat sends messages and returns the assistant's response text.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

	// Model reports the model identifier requests are sent to.
	Model() string
}

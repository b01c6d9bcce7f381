// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package providers

import "context"

// Oracle adapts a ChatClient to the single-exchange shape the agent
// consumes: one optional system context, one user message, one text reply.
//
// Thread Safety: Oracle is safe for concurrent use.
type Oracle struct {
	client ChatClient
	opts   ChatOptions
}

// NewOracle wraps a client with the role's default chat options.
func NewOracle(client ChatClient, opts ChatOptions) *Oracle {
	return &Oracle{client: client, opts: opts}
}

// Complete sends one exchange. An empty system context is omitted from the
// conversation.
func (o *Oracle) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: user})
	return o.client.Chat(ctx, messages, o.opts)
}

// Model reports the underlying client's model identifier.
func (o *Oracle) Model() string { return o.client.Model() }

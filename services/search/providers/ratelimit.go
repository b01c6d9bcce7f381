// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimited decorates a ChatClient with a token-bucket limiter. CLOVA
// Studio enforces per-key request rates; waiting here keeps 429 responses
// out of the session flow.
type rateLimited struct {
	inner   ChatClient
	limiter *rate.Limiter
}

// WithRateLimit caps a client at rps requests per second with the given
// burst. Non-positive rps returns the client unchanged.
func WithRateLimit(client ChatClient, rps float64, burst int) ChatClient {
	if rps <= 0 {
		return client
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimited) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return r.inner.Chat(ctx, messages, opts)
}

func (r *rateLimited) Model() string { return r.inner.Model() }

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kquant/stocksearch/services/search/agent"
)

// QueryRunner is the handler-facing slice of the Service. Tests substitute a
// scripted implementation.
type QueryRunner interface {
	Answer(ctx context.Context, question string, retryCount int) (agent.Result, error)
}

// Handlers holds the HTTP handlers for the search endpoints.
type Handlers struct {
	runner QueryRunner
	logger *slog.Logger
}

// NewHandlers creates handlers over a query runner. logger may be nil.
func NewHandlers(runner QueryRunner, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{runner: runner, logger: logger}
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	// Question is the natural-language query, e.g. "삼성전자 어제 종가는?".
	Question string `json:"question" binding:"required"`

	// RetryCount carries the clarification counter from a previous
	// response. Callers answering a clarification send it back unchanged.
	RetryCount int `json:"retry_count"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	SessionID  string `json:"session_id"`
	Outcome    string `json:"outcome"`
	Answer     string `json:"answer"`
	RetryCount int    `json:"retry_count"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HandleSearch handles POST /v1/search.
//
// Description:
//
//	Runs one question through the agent and returns the composed answer.
//	An outcome of "clarification" means the answer field holds a question
//	back to the user; the caller re-submits with the returned retry_count.
//
// Response:
//
//	200 OK: SearchResponse
//	400 Bad Request: missing or empty question
//	503 Service Unavailable: session abandoned (client disconnect, shutdown)
func (h *Handlers) HandleSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID))

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "question is required",
			Code:  "MISSING_QUESTION",
		})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "question must not be blank",
			Code:  "MISSING_QUESTION",
		})
		return
	}
	if req.RetryCount < 0 {
		req.RetryCount = 0
	}

	res, err := h.runner.Answer(c.Request.Context(), req.Question, req.RetryCount)
	if err != nil {
		// The router only errors on context cancellation; everything else
		// is absorbed into the session.
		logger.Warn("session abandoned", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "query was abandoned before completion",
			Code:  "SESSION_ABANDONED",
		})
		return
	}

	c.JSON(http.StatusOK, SearchResponse{
		SessionID:  res.SessionID,
		Outcome:    string(res.Outcome),
		Answer:     res.Answer,
		RetryCount: res.RetryCount,
	})
}

// HandleHealth handles GET /v1/search/health. Liveness only; it does not
// touch the databases or the oracle providers.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one, and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Header("X-Request-ID", id)
	return id
}

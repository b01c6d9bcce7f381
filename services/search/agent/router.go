// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Router State Machine
// =============================================================================

// Stage is one state of the session state machine.
type Stage int

const (
	StageStart Stage = iota
	StageAwaitingDirectives
	StageDispatching
	StageExecuting
	StageEscalating
	StageClarifying
	StageVolumeControlling
	StageComposing
	StageTerminal
)

var stageNames = map[Stage]string{
	StageStart:              "start",
	StageAwaitingDirectives: "awaiting_directives",
	StageDispatching:        "dispatching",
	StageExecuting:          "executing",
	StageEscalating:         "escalating_to_computation",
	StageClarifying:         "clarifying",
	StageVolumeControlling:  "volume_controlling",
	StageComposing:          "composing",
	StageTerminal:           "terminal",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Outcome is the terminal disposition of a session.
type Outcome string

const (
	// OutcomeAnswer means a final answer was composed from complete results.
	OutcomeAnswer Outcome = "answer"

	// OutcomeClarification means the session stopped to ask the caller for
	// missing information. A follow-up query starts a new session.
	OutcomeClarification Outcome = "clarification"

	// OutcomeDegraded means required information stayed missing past the
	// retry cap and the answer was composed from partial results.
	OutcomeDegraded Outcome = "degraded"
)

// Result is what a finished session hands back to the caller.
type Result struct {
	// SessionID identifies the session in logs and traces.
	SessionID string

	// Outcome is the terminal disposition.
	Outcome Outcome

	// Answer is the final answer or the clarification request text.
	Answer string

	// RetryCount is the session's final clarification counter. Callers that
	// re-ask after a clarification carry it into the follow-up session so
	// the cap spans the whole exchange.
	RetryCount int

	// Stages is the visited stage path in transition order, starting at
	// start and ending at terminal.
	Stages []Stage
}

// Config carries the router's tunable policy. Injected at construction, not
// ambient state.
type Config struct {
	// RetryCap bounds clarification requests. Once RetryCount reaches it
	// the session degrades to composition instead of clarifying again.
	RetryCap int

	// VolumeCeiling is the default row cap for volume control; <= 0 uses
	// DefaultVolumeCeiling.
	VolumeCeiling int
}

// DefaultRetryCap bounds clarification round-trips per query exchange.
const DefaultRetryCap = 2

// DefaultConfig returns the policy the service ships with.
func DefaultConfig() Config {
	return Config{RetryCap: DefaultRetryCap, VolumeCeiling: DefaultVolumeCeiling}
}

// Oracle is the language-model collaborator boundary: opaque text in, opaque
// text out. Two oracles are injected — a planning-grade model for directive
// selection and a lighter one for answer composition.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Router drives a query session through the state machine.
//
// Description:
//
//	The router owns all transition decisions. It never interprets oracle
//	text itself (the parser does), never touches backends directly (the
//	executor does), and never raises collaborator faults: a planner failure
//	is a zero-directive outcome, backend faults arrive as tool_error
//	records, and a composer failure falls back to the raw record payload.
//
// Thread Safety: safe for concurrent use; each Run call owns its session
// exclusively and the router's own fields are read-only after construction.
type Router struct {
	planner  Oracle
	composer Oracle
	table    CapabilityTable
	executor *Executor
	cfg      Config
	logger   *slog.Logger
}

// NewRouter wires a router from its collaborators. logger may be nil.
func NewRouter(planner, composer Oracle, table CapabilityTable, executor *Executor, cfg Config, logger *slog.Logger) *Router {
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = DefaultRetryCap
	}
	if cfg.VolumeCeiling <= 0 {
		cfg.VolumeCeiling = DefaultVolumeCeiling
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		planner:  planner,
		composer: composer,
		table:    table,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run processes a fresh query end to end.
func (r *Router) Run(ctx context.Context, query string) (Result, error) {
	return r.RunSession(ctx, NewSession(query))
}

// RunSession drives an explicitly constructed session to a terminal stage.
// Callers resuming a clarification exchange preset sess.RetryCount with the
// count returned by the previous Result.
//
// The only error it returns is context cancellation; every collaborator
// fault is absorbed into the session per the failure policy.
func (r *Router) RunSession(ctx context.Context, sess *Session) (Result, error) {
	ctx, span := tracer.Start(ctx, "router.run")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sess.ID))

	logger := r.logger.With(slog.String("session_id", sess.ID))
	logger.Info("session started", slog.String("query", sess.Query))

	res := Result{SessionID: sess.ID, Stages: []Stage{StageStart}}
	stage := StageStart
	goTo := func(next Stage) {
		stageTransitionsTotal.WithLabelValues(stage.String(), next.String()).Inc()
		logger.Debug("stage transition",
			slog.String("from", stage.String()),
			slog.String("to", next.String()),
		)
		stage = next
		res.Stages = append(res.Stages, next)
	}

	// Composition payload. Empty until volume control runs; composing then
	// falls back to the untrimmed combined history.
	trimmedPayload := ""

	for stage != StageTerminal {
		if err := ctx.Err(); err != nil {
			sessionsTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("session %s abandoned: %w", sess.ID, err)
		}

		switch stage {
		case StageStart:
			goTo(StageAwaitingDirectives)

		case StageAwaitingDirectives:
			text, err := r.planner.Complete(ctx, planningSystem(r.table.Descriptions(), time.Now()), sess.Query)
			if err != nil {
				// A malformed or failed oracle response is a zero-directive
				// outcome, never a session fault.
				logger.Warn("planner oracle failed", slog.Any("error", err))
				text = ""
			}
			for _, d := range ParseDirectives(text) {
				if d.IsComputation() {
					sess.Computation = append(sess.Computation, d)
				} else {
					sess.Ordinary = append(sess.Ordinary, d)
				}
			}
			if len(sess.Ordinary) == 0 && len(sess.Computation) == 0 {
				logger.Info("no actionable directives")
				goTo(StageComposing)
			} else {
				goTo(StageDispatching)
			}

		case StageDispatching:
			// Ordinary before computation; a computation-only batch skips
			// executing entirely.
			if len(sess.Ordinary) > 0 {
				goTo(StageExecuting)
			} else {
				goTo(StageEscalating)
			}

		case StageExecuting:
			batch := sess.Ordinary
			sess.Ordinary = nil
			verdict := r.executor.ExecuteBatch(ctx, sess, batch)
			goTo(r.afterExecution(sess, verdict, logger))

		case StageEscalating:
			batch := sess.Computation
			sess.Computation = nil
			verdict := r.executor.ExecuteBatch(ctx, sess, batch)
			goTo(r.afterExecution(sess, verdict, logger))

		case StageClarifying:
			sess.RetryCount++
			sess.ClarificationNeeded = true
			var hints []string
			for _, rec := range sess.Records {
				if rec.Verdict == VerdictParamMissing {
					hints = append(hints, MissingInfo(rec.Result))
				}
			}
			sess.Answer = clarificationMessage(hints)
			clarificationsTotal.Inc()
			logger.Info("clarification issued", slog.Int("retry_count", sess.RetryCount))
			goTo(StageTerminal)

		case StageVolumeControlling:
			trimmedPayload = r.applyVolume(sess, logger)
			goTo(StageComposing)

		case StageComposing:
			payload := trimmedPayload
			if payload == "" {
				payload = sess.CombinedResult()
			}
			answer, err := r.composer.Complete(ctx, compositionSystem(), compositionUser(sess.Query, payload, sess.Degraded))
			if err != nil || strings.TrimSpace(answer) == "" {
				// Composer faults degrade to the raw record payload so the
				// caller still sees what was found.
				logger.Warn("composer oracle failed", slog.Any("error", err))
				answer = payload
				if strings.TrimSpace(answer) == "" {
					answer = "죄송합니다. 질문에 대한 결과를 찾지 못했습니다."
				}
			}
			sess.Answer = answer
			goTo(StageTerminal)
		}
	}

	res.Answer = sess.Answer
	res.RetryCount = sess.RetryCount
	switch {
	case sess.ClarificationNeeded:
		res.Outcome = OutcomeClarification
	case sess.Degraded:
		res.Outcome = OutcomeDegraded
	default:
		res.Outcome = OutcomeAnswer
	}

	sessionsTotal.WithLabelValues(string(res.Outcome)).Inc()
	span.SetAttributes(
		attribute.String("session.outcome", string(res.Outcome)),
		attribute.Int("session.records", len(sess.Records)),
	)
	logger.Info("session finished",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("records", len(sess.Records)),
		slog.Duration("elapsed", time.Since(sess.CreatedAt)),
	)
	return res, nil
}

// afterExecution is the shared post-batch branch for executing and
// escalating.
//
// Order of consideration:
//  1. param_missing under the retry cap → clarifying;
//  2. param_missing at the cap → mark degraded and keep going;
//  3. deferred computation directives → escalating;
//  4. any volume-sensitive record → volume control;
//  5. otherwise → composing.
//
// tool_error never branches: it is forward progress with the verdict kept in
// history for composition to surface.
func (r *Router) afterExecution(sess *Session, verdict Verdict, logger *slog.Logger) Stage {
	if verdict == VerdictParamMissing {
		if sess.RetryCount < r.cfg.RetryCap {
			return StageClarifying
		}
		sess.Degraded = true
		logger.Warn("retry cap reached, degrading to partial composition",
			slog.Int("retry_count", sess.RetryCount),
		)
	}
	if len(sess.Computation) > 0 {
		return StageEscalating
	}
	if !sess.VolumeApplied && r.anyVolumeSensitive(sess) {
		return StageVolumeControlling
	}
	return StageComposing
}

// anyVolumeSensitive reports whether any executed record belongs to a
// volume-sensitive operation.
func (r *Router) anyVolumeSensitive(sess *Session) bool {
	for _, rec := range sess.Records {
		if op, ok := r.table.Lookup(rec.Op); ok && op.VolumeSensitive {
			return true
		}
	}
	return false
}

// applyVolume builds the composition payload with volume control applied to
// each successful volume-sensitive record. Records themselves stay untouched;
// only the payload handed to composition is trimmed. Runs at most once per
// session.
func (r *Router) applyVolume(sess *Session, logger *slog.Logger) string {
	sess.VolumeApplied = true

	parts := make([]string, 0, len(sess.Records))
	for _, rec := range sess.Records {
		body := rec.Result
		if op, ok := r.table.Lookup(rec.Op); ok && op.VolumeSensitive && rec.Verdict == VerdictSuccess {
			trimmed, decision := ApplyVolumeControl(sess.Query, rec.Result, r.cfg.VolumeCeiling)
			body = trimmed
			if decision.Truncated {
				volumeTruncationsTotal.Inc()
				logger.Info("result truncated",
					slog.String("op", rec.Op),
					slog.Int("rows", decision.MatchedRows),
					slog.Int("limit", decision.Limit),
				)
			}
		}
		parts = append(parts, fmt.Sprintf("%s 결과: %s", rec.Op, body))
	}
	return strings.Join(parts, "\n\n")
}

// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent implements the orchestration core of the stock search
// service: the session state machine that routes a natural-language query
// through directive parsing, operation execution, result-volume control,
// and answer composition.
//
// The package is deliberately free of I/O. All external collaborators (the
// oracle models, the market-data backends) are reached through interfaces
// injected at construction time, so the router itself stays pure and
// testable independent of oracle behavior.
//
// Thread Safety:
//
//	A Session is owned by exactly one Router.Run call for its lifetime and
//	must not be shared. Sessions are independent of each other; the Router
//	itself is safe for concurrent use across sessions.
package agent

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Verdict classifies the outcome of a single operation execution.
type Verdict string

const (
	// VerdictPending is the zero state before any operation has run.
	VerdictPending Verdict = "pending"

	// VerdictSuccess means the operation produced a usable payload.
	VerdictSuccess Verdict = "success"

	// VerdictParamMissing means the backend reported that required
	// information was absent from the query. Recoverable via clarification,
	// bounded by the session retry cap.
	VerdictParamMissing Verdict = "param_missing"

	// VerdictToolError means the backend failed or the directive named an
	// unknown operation. Non-fatal: the session proceeds and the verdict is
	// surfaced honestly at composition time.
	VerdictToolError Verdict = "tool_error"
)

// ComputationOp is the identifier of the computation operation: the path
// that asks the oracle to author a SQL query against the price store for
// aggregations the fixed operations cannot express.
const ComputationOp = "text2sql"

// Directive is a single operation request extracted from oracle text.
// Immutable once parsed.
type Directive struct {
	// Op is the operation identifier, one of the capability table's fixed
	// set or ComputationOp.
	Op string

	// Args is the argument mapping. The canonical key "query" carries the
	// natural-language question for the operation; structured directives
	// emitted by the oracle keep their additional keys alongside it.
	Args map[string]string
}

// NewDirective builds a directive whose only argument is the question text.
func NewDirective(op, question string) Directive {
	return Directive{Op: op, Args: map[string]string{"query": question}}
}

// Question returns the natural-language argument of the directive.
func (d Directive) Question() string {
	return d.Args["query"]
}

// IsComputation reports whether the directive targets the computation path.
func (d Directive) IsComputation() bool {
	return d.Op == ComputationOp
}

// key returns a canonical identity used for de-duplication: the operation
// name plus the sorted argument pairs.
func (d Directive) key() string {
	keys := make([]string, 0, len(d.Args))
	for k := range d.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(d.Op)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, d.Args[k])
	}
	return b.String()
}

// OperationRecord is the logged outcome of executing one directive.
// Records are append-only; once added to a session they are never mutated.
type OperationRecord struct {
	// Op is the operation identifier that was executed.
	Op string

	// Args are the arguments the operation was invoked with.
	Args map[string]string

	// Result is the raw payload exactly as the backend returned it.
	Result string

	// Verdict is the classification of Result (see Classifier).
	Verdict Verdict

	// Duration is the wall-clock execution time.
	Duration time.Duration

	// CompletedAt is when the record was created.
	CompletedAt time.Time
}

// Session holds one user query's lifetime state. Created on query receipt,
// destroyed on terminal transition. Owned exclusively by the Router.
type Session struct {
	// ID uniquely identifies the session in logs and traces.
	ID string

	// Query is the raw user query text.
	Query string

	// CreatedAt is when the session started.
	CreatedAt time.Time

	// Ordinary holds pending directives for fixed operations, in oracle
	// emission order.
	Ordinary []Directive

	// Computation holds pending computation directives, in oracle emission
	// order. Always executed after the ordinary subset.
	Computation []Directive

	// Records is the append-only execution history. Ordinary records always
	// precede computation records, and within each subset records keep
	// emission order regardless of completion timing.
	Records []OperationRecord

	// Verdict is the current batch-level validation verdict: param_missing
	// if any record in the last batch reported it, else tool_error if any
	// did, else success.
	Verdict Verdict

	// RetryCount counts param_missing clarifications issued. Strictly
	// increases only on a param_missing verdict and is capped; once at the
	// cap the session may no longer request clarification.
	RetryCount int

	// ClarificationNeeded is set when the session terminated by asking the
	// caller for more information.
	ClarificationNeeded bool

	// VolumeApplied records that volume control ran; it is applied at most
	// once per session.
	VolumeApplied bool

	// Degraded is set when param_missing recurred past the retry cap and
	// the session proceeded to composition with partial data.
	Degraded bool

	// Answer is the final composed answer, empty until composition.
	Answer string
}

// NewSession creates a session for the given query.
func NewSession(query string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Query:     query,
		CreatedAt: time.Now(),
		Verdict:   VerdictPending,
	}
}

// appendRecord adds a record to the history.
func (s *Session) appendRecord(rec OperationRecord) {
	s.Records = append(s.Records, rec)
}

// CombinedResult joins every recorded payload in history order, the shape
// handed to volume control and answer composition.
func (s *Session) CombinedResult() string {
	parts := make([]string, 0, len(s.Records))
	for _, rec := range s.Records {
		parts = append(parts, fmt.Sprintf("%s 결과: %s", rec.Op, rec.Result))
	}
	return strings.Join(parts, "\n\n")
}

// anyVerdict reports whether any record carries the given verdict.
func (s *Session) anyVerdict(v Verdict) bool {
	for _, rec := range s.Records {
		if rec.Verdict == v {
			return true
		}
	}
	return false
}

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
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Operation Executor
// =============================================================================

// Operation is one entry of the fixed capability table.
type Operation struct {
	// Name is the operation identifier directives refer to.
	Name string

	// Description is the user-facing capability summary, included in the
	// directive-planning prompt.
	Description string

	// VolumeSensitive marks operations whose results may be large enough
	// to require truncation by the Volume Controller.
	VolumeSensitive bool

	// Handler invokes the backend. It must encode failures in the returned
	// text or error; it is never invoked for unknown operations.
	Handler func(ctx context.Context, question string) (string, error)
}

// CapabilityTable is the process-wide operation lookup. Implementations are
// built once at startup and read-only afterwards, so no locking is needed.
type CapabilityTable interface {
	// Lookup resolves an operation identifier. ok is false for unknown
	// identifiers; the executor then records a tool_error without invoking
	// anything.
	Lookup(name string) (Operation, bool)

	// Descriptions renders the capability list for the directive prompt.
	Descriptions() string
}

// ResultCache caches operation results keyed by (operation, arguments).
// A nil cache disables caching. Misses and storage failures fall through
// silently; the cache is an optimization, never a correctness dependency.
type ResultCache interface {
	Get(ctx context.Context, op, question string) (string, bool)
	Set(ctx context.Context, op, question, result string)
}

// Executor invokes one directive at a time against the capability table and
// turns every outcome, including panics and backend faults, into an
// OperationRecord. It never returns an error to the router.
//
// Thread Safety: safe for concurrent use; all mutable state lives in the
// session passed to ExecuteBatch, which is single-owner.
type Executor struct {
	table  CapabilityTable
	cache  ResultCache
	logger *slog.Logger
}

// NewExecutor creates an executor over the given capability table.
// cache may be nil.
func NewExecutor(table CapabilityTable, cache ResultCache, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{table: table, cache: cache, logger: logger}
}

// ExecuteBatch executes one directive batch and appends records to the
// session in directive emission order.
//
// Description:
//
//	Directives within a batch are independent of each other, so they are
//	dispatched concurrently and joined before classification. Results are
//	written into a slice indexed by emission position, so history order is
//	the oracle's emission order regardless of completion timing.
//
// Inputs:
//   - ctx: Context for cancellation; handlers observe it on backend calls.
//   - sess: The owning session; records are appended to it.
//   - batch: Directives to execute, in emission order.
//
// Outputs:
//   - Verdict: The batch verdict — param_missing if any record reported it,
//     else tool_error if any did, else success.
func (e *Executor) ExecuteBatch(ctx context.Context, sess *Session, batch []Directive) Verdict {
	if len(batch) == 0 {
		return VerdictSuccess
	}

	records := make([]OperationRecord, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range batch {
		g.Go(func() error {
			records[i] = e.executeOne(gctx, d)
			return nil
		})
	}
	// Handlers never return errors through the group; the join is only a
	// completion barrier.
	_ = g.Wait()

	batchVerdict := VerdictSuccess
	for _, rec := range records {
		sess.appendRecord(rec)
		operationDuration.WithLabelValues(rec.Op, string(rec.Verdict)).Observe(rec.Duration.Seconds())
		switch rec.Verdict {
		case VerdictParamMissing:
			batchVerdict = VerdictParamMissing
		case VerdictToolError:
			if batchVerdict != VerdictParamMissing {
				batchVerdict = VerdictToolError
			}
		}
	}
	sess.Verdict = batchVerdict
	return batchVerdict
}

// executeOne runs a single directive and builds its record. Backend faults
// and panics are captured into the record's verdict, never propagated.
func (e *Executor) executeOne(ctx context.Context, d Directive) (rec OperationRecord) {
	start := time.Now()
	rec = OperationRecord{Op: d.Op, Args: d.Args}

	defer func() {
		if r := recover(); r != nil {
			rec.Result = fmt.Sprintf("%s 실행 중 오류: %v", d.Op, r)
			rec.Verdict = VerdictToolError
			e.logger.Error("operation handler panicked",
				slog.String("op", d.Op),
				slog.Any("panic", r),
			)
		}
		rec.Duration = time.Since(start)
		rec.CompletedAt = time.Now()
	}()

	op, ok := e.table.Lookup(d.Op)
	if !ok {
		rec.Result = fmt.Sprintf("알 수 없는 도구: %s", d.Op)
		rec.Verdict = VerdictToolError
		return rec
	}

	question := d.Question()
	if e.cache != nil {
		if cached, hit := e.cache.Get(ctx, d.Op, question); hit {
			rec.Result = cached
			rec.Verdict = Classify(cached)
			cacheHitsTotal.WithLabelValues(d.Op).Inc()
			return rec
		}
	}

	result, err := op.Handler(ctx, question)
	if err != nil {
		rec.Result = fmt.Sprintf("%s 실행 중 오류: %v", d.Op, err)
		rec.Verdict = VerdictToolError
		return rec
	}

	rec.Result = result
	rec.Verdict = Classify(result)
	if e.cache != nil && rec.Verdict == VerdictSuccess {
		e.cache.Set(ctx, d.Op, question, result)
	}
	return rec
}

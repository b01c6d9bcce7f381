// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// Directive Parser
// =============================================================================

// The oracle's free-form output is inherently unstructured. All pattern
// extraction brittleness is isolated here so the router never sees raw
// oracle text. Four pattern families are tried over the whole response:
//
//	(a) an explicit TOOL_CALL: marker followed by a JSON object
//	    (one level of nested braces supported, for structured args);
//	(b) a fenced ```json block, either a plain tool call or a
//	    computation object tagged "action": "text2sql", plus the
//	    backtick-inline variants the oracle sometimes emits;
//	(c) a bare computation object or a TEXT2SQL: marker;
//	(d) a generic {"name": ..., "args": ...} object.
//
// Every structural match yields a candidate at its source offset. Candidates
// are ordered by offset, overlapping spans resolved in pattern priority
// order, and duplicates removed by (operation, arguments). Unbalanced braces
// simply fail to match; parsing never panics and never returns an error for
// malformed text — no match means no directives.

var (
	// jsonObject matches a JSON object with at most one level of nesting.
	// Shared brace-balancing core of all four pattern families.
	jsonObjectSrc = `\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`

	toolCallPattern = regexp.MustCompile(`TOOL_CALL:\s*(` + jsonObjectSrc + `)`)

	fencedJSONPattern = regexp.MustCompile("```json\\s*(" + jsonObjectSrc + ")\\s*```")

	inlineJSONPattern = regexp.MustCompile("`(" + jsonObjectSrc + ")`")

	computationTagPattern = regexp.MustCompile(`TEXT2SQL:\s*(` + jsonObjectSrc + `)`)

	bareComputationPattern = regexp.MustCompile(`\{[^{}]*"action"[^{}]*"text2sql"[^{}]*\}`)

	genericCallPattern = regexp.MustCompile(`\{[^{}]*"name"[^{}]*"args"[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// candidate is a directive plus the source span it was extracted from.
type candidate struct {
	start, end int
	priority   int
	directive  Directive
}

// ParseDirectives extracts directives from raw oracle text.
//
// Description:
//
//	Runs the four pattern families over the whole text, keeps every span
//	that structurally matches and decodes to a valid invocation, and
//	returns directives in source order with duplicates removed. A result
//	of zero directives is an explicit "nothing actionable" outcome, not an
//	error; the router responds by going straight to answer composition.
//
// Inputs:
//   - text: The oracle's free-form response.
//
// Outputs:
//   - []Directive: Extracted directives in source order, possibly empty.
func ParseDirectives(text string) []Directive {
	var cands []candidate

	collect := func(re *regexp.Regexp, group, priority int, decode func(string) (Directive, bool)) {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			gs, ge := idx[2*group], idx[2*group+1]
			if gs < 0 {
				continue
			}
			d, ok := decode(text[gs:ge])
			if !ok {
				continue
			}
			cands = append(cands, candidate{start: idx[0], end: idx[1], priority: priority, directive: d})
		}
	}

	collect(toolCallPattern, 1, 0, decodeToolCall)
	collect(fencedJSONPattern, 1, 1, decodeAnyCall)
	collect(inlineJSONPattern, 1, 1, decodeAnyCall)
	collect(bareComputationPattern, 0, 2, decodeComputation)
	collect(computationTagPattern, 1, 2, decodeComputation)
	collect(genericCallPattern, 0, 3, decodeToolCall)

	// Source order first; on identical spans the higher-priority pattern wins.
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].start != cands[j].start {
			return cands[i].start < cands[j].start
		}
		return cands[i].priority < cands[j].priority
	})

	var out []Directive
	lastEnd := -1
	seen := make(map[string]struct{})
	for _, c := range cands {
		if c.start < lastEnd {
			continue // overlapping span already claimed by an earlier pattern
		}
		k := c.directive.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c.directive)
		lastEnd = c.end
	}
	return out
}

// decodeToolCall decodes a {"name": ..., "args": ...} object. Structured
// args objects are flattened back into a question string so every directive
// carries a natural-language argument for parameter extraction downstream.
func decodeToolCall(raw string) (Directive, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return Directive{}, false
	}
	name, _ := obj["name"].(string)
	args, hasArgs := obj["args"]
	if name == "" || !hasArgs {
		return Directive{}, false
	}

	d := NewDirective(name, "")
	switch v := args.(type) {
	case string:
		d.Args["query"] = v
	case map[string]any:
		d.Args["query"] = flattenArgs(v)
		for k, val := range v {
			if s, ok := val.(string); ok {
				d.Args[k] = s
			}
		}
	default:
		d.Args["query"] = fmt.Sprint(v)
	}
	return d, true
}

// decodeAnyCall handles fenced and inline JSON, which may hold either a
// computation object or a plain tool call.
func decodeAnyCall(raw string) (Directive, bool) {
	if d, ok := decodeComputation(raw); ok {
		return d, true
	}
	return decodeToolCall(raw)
}

// decodeComputation decodes an {"action": "text2sql", ...} object into a
// computation directive. The question is pulled from the first recognized
// field; when none exists the whole object is kept as the argument so the
// SQL-authoring prompt still sees the oracle's intent.
func decodeComputation(raw string) (Directive, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return Directive{}, false
	}
	if action, _ := obj["action"].(string); action != ComputationOp {
		return Directive{}, false
	}
	for _, field := range []string{"args", "query", "question"} {
		if q, ok := obj[field].(string); ok && q != "" {
			return NewDirective(ComputationOp, q), true
		}
	}
	compact, err := json.Marshal(obj)
	if err != nil {
		return Directive{}, false
	}
	return NewDirective(ComputationOp, string(compact)), true
}

// flattenArgs rebuilds a question string from a structured args object.
// The 종목명/날짜 pair is the shape the oracle most often emits for price
// lookups; anything else joins into "key: value" pairs.
func flattenArgs(args map[string]any) string {
	name, hasName := args["종목명"].(string)
	date, hasDate := args["날짜"].(string)
	if hasName && hasDate {
		return fmt.Sprintf("%s의 %s 시가는?", name, date)
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}

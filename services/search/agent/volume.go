// Copyright (C) 2025 KQuant Labs (dev@kquant.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Volume Controller
// =============================================================================

// DefaultVolumeCeiling is the row count above which list-shaped results are
// truncated when the user expressed no explicit size preference.
const DefaultVolumeCeiling = 100

// allIntentMarkers are query phrases that mean "show everything". Their
// presence disables truncation entirely.
var allIntentMarkers = []string{"모두", "전체", "모든"}

// explicitCountPattern extracts an explicit "N개" request from the query.
var explicitCountPattern = regexp.MustCompile(`(\d+)개`)

// Row-shaped line patterns, in the shapes the backends render:
// "삼성전자 (005930)", "1. 삼성전자", "삼성전자 | 50,000".
var rowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[\w가-힣]+\s*\([\w\d]+\)`),
	regexp.MustCompile(`^\d+\.\s*[\w가-힣]`),
	regexp.MustCompile(`[\w가-힣]+\s*\|\s*[\d,]+`),
}

// truncationFooterPattern recognizes a footer this controller previously
// appended, so re-application never counts it as a row or doubles it up.
var truncationFooterPattern = regexp.MustCompile(`^\.\.\. 등 총 \d+개 종목이 있습니다\.$`)

// VolumeDecision describes what the controller did to a payload.
type VolumeDecision struct {
	// Limit is the applied row cap; meaningless when Unbounded is true.
	Limit int

	// Unbounded is true when the user asked for everything or no
	// truncation was necessary.
	Unbounded bool

	// MatchedRows is the number of row-shaped lines detected.
	MatchedRows int

	// Truncated is true when rows were actually dropped.
	Truncated bool
}

// ApplyVolumeControl trims a list-shaped payload according to user intent.
//
// Description:
//
//	Decision policy, evaluated in order:
//	 1. query contains an all-intent marker → unbounded, payload unchanged;
//	 2. query contains an explicit "N개" count → limit N;
//	 3. more row-shaped lines than the ceiling → limit = ceiling;
//	 4. otherwise pass through unchanged.
//
//	Truncation walks lines in their original order: non-row lines (headers,
//	separators) are always kept, row lines are kept until the limit is
//	reached and dropped afterwards, so the cut always falls on a line
//	boundary and never splits an entry. A footer states the full count.
//
//	The operation is idempotent: a payload already truncated to the limit
//	has exactly limit row lines, so a second application is a no-op.
//
// Inputs:
//   - query: The original user query (carries the size intent).
//   - payload: Line-oriented result text.
//   - ceiling: Default row cap; <= 0 uses DefaultVolumeCeiling.
//
// Outputs:
//   - string: The possibly-truncated payload.
//   - VolumeDecision: What was decided and why.
func ApplyVolumeControl(query, payload string, ceiling int) (string, VolumeDecision) {
	if ceiling <= 0 {
		ceiling = DefaultVolumeCeiling
	}

	lines := strings.Split(payload, "\n")
	rowCount := 0
	for _, line := range lines {
		if isRowLine(strings.TrimSpace(line)) {
			rowCount++
		}
	}

	decision := VolumeDecision{MatchedRows: rowCount, Unbounded: true}

	for _, marker := range allIntentMarkers {
		if strings.Contains(query, marker) {
			return payload, decision
		}
	}

	limit := 0
	if m := explicitCountPattern.FindStringSubmatch(query); m != nil {
		limit, _ = strconv.Atoi(m[1])
	} else if rowCount > ceiling {
		limit = ceiling
	}
	if limit <= 0 || rowCount <= limit {
		return payload, decision
	}

	decision.Unbounded = false
	decision.Limit = limit
	decision.Truncated = true

	kept := make([]string, 0, len(lines))
	rows := 0
	for _, line := range lines {
		if isRowLine(strings.TrimSpace(line)) {
			rows++
			if rows > limit {
				continue
			}
		}
		kept = append(kept, line)
	}
	out := strings.TrimRight(strings.Join(kept, "\n"), "\n")
	out += fmt.Sprintf("\n\n... 등 총 %d개 종목이 있습니다.", rowCount)
	return out, decision
}

// isRowLine reports whether a trimmed line looks like one result entry.
func isRowLine(line string) bool {
	if line == "" || truncationFooterPattern.MatchString(line) {
		return false
	}
	for _, re := range rowPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

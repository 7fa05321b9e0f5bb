package search

import (
	"encoding/json"
	"strings"
)

// maxResponseBytesCeiling is the hard ceiling from spec §4.6 — 25,000
// estimated "tokens" (bytes/3) — expressed directly in bytes since every
// caller here already measures in bytes. It binds even when a caller's own
// max_response_bytes request (itself capped at 100 KiB) asks for more.
const maxResponseBytesCeiling = hardTokenCeiling * 3

// applyBudget shrinks results until their serialized size fits within
// maxBytes: first by dropping lowest-ranked results from the tail, then —
// once a single result remains and is still too large — by shortening that
// result's code_preview at a line boundary. The final result is always
// returned even if it alone exceeds the budget; there is nothing left to
// drop.
func applyBudget(results []Result, maxBytes int) []Result {
	if maxBytes <= 0 || maxBytes > maxResponseBytesCeiling {
		maxBytes = maxResponseBytesCeiling
	}

	for len(results) > 0 && responseSize(results) > maxBytes {
		if len(results) > 1 {
			results = results[:len(results)-1]
			continue
		}

		last := &results[0]
		if len(last.CodePreview) == 0 {
			break
		}
		preview, truncated := truncateToLineBoundary(last.CodePreview, len(last.CodePreview)/2)
		last.CodePreview = preview
		last.IsTruncated = last.IsTruncated || truncated
	}
	return results
}

func responseSize(results []Result) int {
	b, err := json.Marshal(results)
	if err != nil {
		return 0
	}
	return len(b)
}

// truncateToLineBoundary cuts code at or before maxChars, backing up to the
// preceding newline so a preview never ends mid-line, and appends an
// ellipsis marker. Returns the original string unchanged (and false) when it
// already fits.
func truncateToLineBoundary(code string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return "", true
	}
	if len(code) <= maxChars {
		return code, false
	}
	cut := strings.LastIndexByte(code[:maxChars], '\n')
	if cut <= 0 {
		cut = maxChars
	}
	return code[:cut] + "…", true
}

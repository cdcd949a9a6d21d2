// Package telemetry implements the decay-weighted tool telemetry store and
// the scoring procedures built on top of it.
//
// The package tracks which tool was used in which situational context and how
// well it performed, then answers "which tool should I reach for here?" three
// ways:
//
//   - SuggestTool ranks tools by an exponentially time-decayed average of
//     their historical scores in a context (half-life weighting, 7 days by
//     default). Contexts with no qualifying data borrow from related
//     contexts that share the same key prefix.
//   - RecordGroupComparison scores two or more tools that competed on the
//     same task, ranks them, and records each one's advantage relative to
//     the group mean. Each comparison folds into a cumulative per-context
//     per-tool score.
//   - SuggestToolCandidates blends both signals into one ranked candidate
//     list, with explicit cold-start handling.
//
// # Persistence
//
// All state lives in a single versioned document held in an in-process cache
// owned by the Manager. Mutating calls mark the cache dirty and schedule one
// coalesced deferred write a few seconds later; Flush forces a synchronous
// write and cancels the pending timer. A failure during the deferred write is
// carried forward and surfaced to the next explicit Flush.
//
// # Context keys
//
// Contexts are colon-delimited strings of normalized segments, e.g.
// "search:file" or "edit:config:project". Two contexts sharing the first
// segment are considered related for borrowing purposes.
package telemetry

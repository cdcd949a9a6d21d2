// Package patterns extracts behavioral patterns from batches of collected
// experiences and tracks their confidence over repeated learning rounds.
//
// A learning round groups experiences by (type, category), scores each one
// with a type-specific composite, and extracts a pattern for a group only
// when its best performer beats the group mean by more than an acceptance
// epsilon. Extracted patterns are merged into per-type persisted
// collections: a pattern seen again keeps its firstSeen timestamp and
// tracks streaks of consecutive confidence improvements or regressions.
// Every round, productive or not, appends an entry to an append-only
// learning log used for trend analysis.
package patterns

// Package experience normalizes heterogeneous session facts into uniform
// typed experience records and stores them for batch pattern learning.
//
// A session reports tool usage tallies, errors, completed tasks, and
// optionally its team configuration. The Collector turns each fact into one
// Experience with a type, a category (the grouping key for learning), and a
// typed data payload. Payloads are a tagged union (ToolData, ErrorData,
// SuccessData, TeamData) so downstream scoring dispatches on the variant
// instead of probing loosely-typed fields.
//
// The Store keeps the most recent experiences in a capped FIFO collection
// backed by one JSON document, with the same cache-and-deferred-flush model
// as the telemetry store.
package experience

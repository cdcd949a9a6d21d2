// Package storage provides the key-addressed document store backing the
// learning engine.
//
// Each logical collection (telemetry history, per-type pattern sets, the
// experience list, the learning log) is one JSON document addressed by a
// string key. The engine reads a document, mutates its in-memory form, and
// writes the whole document back; there are no partial updates.
//
// Three drivers are provided:
//   - FileStore: one JSON file per key under a data directory, written
//     atomically via a temp file and rename.
//   - SQLiteStore: a single documents(key, value) table, for installs that
//     prefer one artifact on disk.
//   - MemStore: in-memory, for tests.
//
// Missing documents are reported via the ok return, not an error, so callers
// can fall back to empty defaults without error plumbing.
package storage

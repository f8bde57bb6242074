// Package storage persists the channel registry as a single document.
//
// Drivers:
//   - "file":   one JSON document, replaced atomically (temp file + rename)
//   - "sqlite": one table, replaced inside a single transaction
//
// A missing document is an empty registry. A document that exists but does
// not decode into the expected shape is reported as corrupt state.
package storage

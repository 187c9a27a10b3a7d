// Package storage persists the engine's records.
//
// It currently supports:
//   - SQLite (default, single writer connection, WAL)
//   - An in-memory driver for tests and no-setup runs
package storage

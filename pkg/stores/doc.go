// Package stores provides the persistence layer for Stratus.
// It includes SQLite-based storage with WAL mode, connection pooling,
// the node registry table, and the append-only usage journal.
package stores

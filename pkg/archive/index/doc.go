// Package index provides the archive catalog backends.
//
// MemoryIndex keeps catalog entries in a map and is used in tests and
// ephemeral runs. SQLiteIndex persists them with mattn/go-sqlite3 in WAL
// mode. Both order listings newest first (created_at, then id, descending)
// and apply archive.Mutation inside a single critical section, so
// conditional updates such as "move to deleting unless held" are atomic.
package index

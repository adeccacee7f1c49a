// Package storage implements the durable local message mirror on
// SQLite.
//
// The mirror is not an evicting cache: everything saved stays until an
// explicit delete, and FetchAll returns a conversation's full history
// in send order. Saves are upserts keyed by message id, matching the
// engine's idempotent retry semantics.
//
// Schema changes append to the migrations list and apply through
// PRAGMA user_version inside one transaction. The database runs in WAL
// mode.
package storage

// Package interfaces defines the collaborator contracts the delivery
// engine is built against.
//
// The engine never talks to a concrete backend: the remote store, the
// durable local mirror, and the connectivity signal are all consumed
// through the narrow interfaces in this package, which is what lets the
// same engine code run against the websocket client in package remote,
// the SQLite mirror in package storage, or the in-process fakes used by
// tests and simulations.
//
// # Contracts
//
// [RemoteStore] must be upsert-idempotent by message id: retrying
// Create after a partial failure may never produce a duplicate remote
// record. Event delivery is at-least-once and unordered; the engine's
// reconciler re-establishes order and deduplicates.
//
// [LocalStore] is a durable mirror, not an evicting cache: FetchAll
// returns everything ever saved for a conversation, in send order.
//
// [Connectivity] is an observable boolean. The engine reacts only to
// false→true edges.
//
// [Clock] follows the TimeProvider pattern: production code uses
// [SystemClock], tests inject a fake to make debounce and backoff
// deadlines deterministic.
package interfaces

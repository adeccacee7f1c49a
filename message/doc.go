// Package message provides the data model for the delivery engine.
//
// # Overview
//
// The message package defines the core entities tracked by the engine —
// [Message], [Conversation], [QueuedEntry] — together with the [Status]
// lifecycle and its pure transition rules. It holds no I/O and no
// synchronization of its own; concurrency control belongs to the owners
// of these values (the engine facade and the offline queue).
//
// # Message Lifecycle
//
// A message moves through a fixed set of states:
//
//	Pending → Sent → Delivered → Read
//	   ↘ Queued ↗          (transient failures)
//	      ↓
//	    Failed             (retries exhausted)
//
// Transitions are validated by [CanTransition]; [Advance] applies a
// transition and returns the current state unchanged when the requested
// transition is illegal, so stale or duplicated events can never regress
// a message's effective state.
//
// # Receipt Sets
//
// DeliveredTo and ReadBy are union-only sets: ids are added, never
// removed, and the companion DeliveredAt/ReadAt instants are stamped
// exactly once, on the first transition into a non-empty set.
package message

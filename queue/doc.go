// Package queue implements the offline retry queue for messages whose
// send failed or was created while disconnected.
//
// # Processing Model
//
// Entries are held in arrival order. A drain pass walks the queue and
// attempts the remote upsert for each eligible entry; entries belonging
// to the same conversation are strictly ordered, so a failed or
// not-yet-eligible entry blocks the rest of its conversation for that
// pass while other conversations continue to interleave.
//
// Exactly one drain pass runs at a time. A trigger arriving while a
// pass is in flight is coalesced into a no-op — it is neither queued
// nor run in parallel.
//
// # Retry Policy
//
// Failed attempts reschedule with capped exponential backoff
// (cenkalti/backoff). After the retry budget is exhausted the entry is
// removed from automatic processing and reported as terminally failed;
// only an explicit user retry resumes it.
package queue

// Package reconcile merges remote message events into the local
// ordered list.
//
// The remote store promises at-least-once, unordered delivery, so every
// merge here is idempotent and regression-free: applying the same event
// twice yields the same state as applying it once, and a stale event can
// never move a message backwards in its lifecycle or shrink a receipt
// set.
//
// Remote is authoritative for status, receipt sets, and timestamp. The
// payload of a message the local user is still sending is retained
// until the remote record carries a confirmed payload, so an in-flight
// send is never visually replaced by a transient placeholder.
package reconcile

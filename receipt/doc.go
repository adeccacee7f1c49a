// Package receipt computes human-readable delivery status for the
// sender's most recent message.
//
// Aggregation is deliberately scoped: only the latest message sent by
// the current user carries a receipt line, older own messages and other
// senders' messages never do. One-on-one conversations report
// Delivered / "Read at {time}"; groups report Delivered, "Read by some
// users", or "Read by all users" against the full recipient set.
//
// The package is pure computation over the message model; set mutation
// lives on [message.Message] and is idempotent there, so duplicated
// delivery of the same receipt event cannot double-count.
package receipt

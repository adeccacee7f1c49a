package message

// Status represents the delivery state of a message.
type Status uint8

const (
	// StatusPending means the message was created while online and is
	// waiting for local persistence and the first remote send attempt.
	StatusPending Status = iota
	// StatusQueued means the message is held by the offline queue for a
	// later send attempt.
	StatusQueued
	// StatusSent means the message is durably persisted and handed to the
	// remote store, but not yet acknowledged.
	StatusSent
	// StatusDelivered means the remote store acknowledged delivery to at
	// least the required recipients.
	StatusDelivered
	// StatusRead means every required recipient has read the message.
	StatusRead
	// StatusFailed means the automatic retry budget is exhausted; only an
	// explicit user retry resumes the message.
	StatusFailed
)

// String returns the wire/storage name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusQueued:
		return "queued"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseStatus converts a storage/wire name back into a Status.
func ParseStatus(name string) (Status, bool) {
	switch name {
	case "pending":
		return StatusPending, true
	case "queued":
		return StatusQueued, true
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	case "failed":
		return StatusFailed, true
	default:
		return StatusPending, false
	}
}

// rank orders states by delivery progress. Queued and Failed sit below
// Sent so that an explicit retry can re-enter the pipeline, while a
// Delivered or Read message can never fall back into the queue.
func (s Status) rank() int {
	switch s {
	case StatusFailed:
		return 0
	case StatusQueued:
		return 1
	case StatusPending:
		return 2
	case StatusSent:
		return 3
	case StatusDelivered:
		return 4
	case StatusRead:
		return 5
	default:
		return -1
	}
}

// Terminal reports whether the status ends automatic processing.
func (s Status) Terminal() bool {
	return s == StatusRead || s == StatusFailed
}

// CanTransition reports whether moving from one status to another is a
// legal lifecycle transition.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusPending:
		// Only an explicit user retry re-enters the pipeline.
		return from == StatusFailed || from == StatusQueued
	case StatusQueued:
		// Any send failure before retries are exhausted.
		return from == StatusPending || from == StatusSent
	case StatusSent:
		return from == StatusPending || from == StatusQueued
	case StatusDelivered:
		return from == StatusPending || from == StatusQueued || from == StatusSent
	case StatusRead:
		return from == StatusDelivered
	case StatusFailed:
		return from == StatusQueued
	default:
		return false
	}
}

// Advance returns the new status if the transition is legal, or the
// current status unchanged otherwise. Stale events therefore never
// regress a message: Advance(StatusRead, StatusQueued) == StatusRead.
func Advance(current, to Status) Status {
	if CanTransition(current, to) {
		return to
	}
	return current
}

// Merge resolves a locally held status against a remote-authoritative
// one. The remote value wins unless accepting it would regress delivery
// progress, which happens when an out-of-order event arrives after a
// newer one was already applied.
func Merge(local, remote Status) Status {
	if remote.rank() >= local.rank() {
		return remote
	}
	return local
}

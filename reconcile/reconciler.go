package reconcile

import (
	"github.com/sirupsen/logrus"

	"github.com/fakero0t/messageAI-sub004/message"
)

// Outcome describes what a merge changed, so the owner can recompute
// receipts, unread counts, and typing state for exactly the affected
// pieces.
type Outcome struct {
	// Changed is true when the list or a message mutated.
	Changed bool
	// Inserted is true when a previously unknown id was added.
	Inserted bool
	// FromOther is true when the event's sender is not the local user.
	FromOther bool
	// SenderID is the event message's sender, for typing cleanup.
	SenderID string
}

// Reconciler merges remote events for one conversation. It does not
// lock; the owning engine serializes calls.
type Reconciler struct {
	selfID string
}

// New creates a reconciler for the given local user.
func New(selfID string) *Reconciler {
	return &Reconciler{selfID: selfID}
}

// ApplyUpsert merges a remote create or update event into the ordered
// list and returns the (possibly reallocated) list plus an outcome.
func (r *Reconciler) ApplyUpsert(list []*message.Message, remote *message.Message) ([]*message.Message, Outcome) {
	out := Outcome{
		FromOther: remote.SenderID != r.selfID,
		SenderID:  remote.SenderID,
	}

	local := find(list, remote.ID)
	if local == nil {
		inserted := remote.Clone()
		// Remote records default to Sent when the backend carries no
		// explicit status for a freshly created message.
		list = insertByTimestamp(list, inserted)
		out.Changed = true
		out.Inserted = true
		logrus.WithFields(logrus.Fields{
			"message_id":      remote.ID,
			"conversation_id": remote.ConversationID,
			"sender_id":       remote.SenderID,
		}).Debug("Inserted remote message")
		return list, out
	}

	out.Changed = r.mergeInto(local, remote)
	return list, out
}

// ApplyDelete removes the id from the list if present.
func (r *Reconciler) ApplyDelete(list []*message.Message, messageID string) ([]*message.Message, Outcome) {
	for i, m := range list {
		if m.ID == messageID {
			list = append(list[:i], list[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"message_id": messageID,
			}).Debug("Removed remotely deleted message")
			return list, Outcome{Changed: true, FromOther: m.SenderID != r.selfID, SenderID: m.SenderID}
		}
	}
	return list, Outcome{}
}

// mergeInto applies remote-authoritative fields onto the local message.
// Returns true when anything changed.
func (r *Reconciler) mergeInto(local, remote *message.Message) bool {
	changed := false

	if next := message.Merge(local.Status, remote.Status); next != local.Status {
		local.Status = next
		changed = true
	}

	for id := range remote.DeliveredTo {
		at := local.Timestamp
		if remote.DeliveredAt != nil {
			at = *remote.DeliveredAt
		}
		if local.AddDeliveredTo(id, at) {
			changed = true
		}
	}
	for id := range remote.ReadBy {
		if id == local.SenderID {
			continue
		}
		at := local.Timestamp
		if remote.ReadAt != nil {
			at = *remote.ReadAt
		}
		if local.AddReadBy(id, at) {
			changed = true
		}
	}

	if !remote.Timestamp.IsZero() && !remote.Timestamp.Equal(local.Timestamp) {
		local.Timestamp = remote.Timestamp
		changed = true
	}

	// The remote payload replaces the optimistic one only once the
	// record actually carries it; an in-flight send keeps its local text.
	if remote.Text != "" && remote.Text != local.Text {
		local.Text = remote.Text
		changed = true
	}
	if remote.MediaRef != "" && remote.MediaRef != local.MediaRef {
		local.MediaRef = remote.MediaRef
		changed = true
	}

	return changed
}

func find(list []*message.Message, id string) *message.Message {
	for _, m := range list {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// insertByTimestamp inserts msg keeping the list ordered by timestamp,
// placing equal timestamps after existing entries to preserve arrival
// order.
func insertByTimestamp(list []*message.Message, msg *message.Message) []*message.Message {
	i := len(list)
	for i > 0 && list[i-1].Timestamp.After(msg.Timestamp) {
		i--
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}

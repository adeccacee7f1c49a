package receipt

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fakero0t/messageAI-sub004/message"
)

// Status classifies the aggregate delivery state of one own message.
type Status uint8

const (
	// StatusNone means the message is not eligible for a receipt (not
	// the latest own message, or no message at all).
	StatusNone Status = iota
	// StatusNotDelivered means at least one required recipient has not
	// received the message yet.
	StatusNotDelivered
	// StatusDelivered means all required recipients received it and none
	// has read it.
	StatusDelivered
	// StatusRead means the 1:1 recipient read the message.
	StatusRead
	// StatusReadBySome means some, but not all, group recipients read it.
	StatusReadBySome
	// StatusReadByAll means every group recipient read it.
	StatusReadByAll
)

// Receipt is the display-ready aggregation result. Text is empty for
// StatusNone and StatusNotDelivered.
type Receipt struct {
	MessageID string
	Status    Status
	Text      string
}

// readAtLayout formats the 1:1 read timestamp in local time.
const readAtLayout = "3:04 PM"

// LatestOwn returns the most recent message in the ordered list sent by
// selfID, or nil when the user has not sent anything.
func LatestOwn(ordered []*message.Message, selfID string) *message.Message {
	for i := len(ordered) - 1; i >= 0; i-- {
		if ordered[i].SenderID == selfID {
			return ordered[i]
		}
	}
	return nil
}

// ForLatestOwn aggregates the receipt for the latest own message in the
// ordered list. Returns a StatusNone receipt when there is none.
func ForLatestOwn(conv *message.Conversation, ordered []*message.Message, selfID string) Receipt {
	msg := LatestOwn(ordered, selfID)
	if msg == nil {
		return Receipt{Status: StatusNone}
	}
	return ForMessage(conv, msg)
}

// ForMessage aggregates the receipt for a single own message against
// the conversation's other participants.
func ForMessage(conv *message.Conversation, msg *message.Message) Receipt {
	recipients := conv.Recipients(msg.SenderID)
	if len(recipients) == 0 {
		return Receipt{MessageID: msg.ID, Status: StatusNone}
	}
	if conv.IsGroup {
		return groupReceipt(msg, recipients)
	}
	return directReceipt(msg, recipients[0])
}

func directReceipt(msg *message.Message, recipient string) Receipt {
	if _, read := msg.ReadBy[recipient]; read {
		text := "Read"
		if msg.ReadAt != nil {
			text = fmt.Sprintf("Read at %s", msg.ReadAt.Local().Format(readAtLayout))
		}
		return Receipt{MessageID: msg.ID, Status: StatusRead, Text: text}
	}
	if _, delivered := msg.DeliveredTo[recipient]; delivered {
		return Receipt{MessageID: msg.ID, Status: StatusDelivered, Text: "Delivered"}
	}
	return Receipt{MessageID: msg.ID, Status: StatusNotDelivered}
}

func groupReceipt(msg *message.Message, recipients []string) Receipt {
	if !msg.DeliveredToAll(recipients) {
		return Receipt{MessageID: msg.ID, Status: StatusNotDelivered}
	}
	switch n := msg.ReadCount(recipients); {
	case n == 0:
		return Receipt{MessageID: msg.ID, Status: StatusDelivered, Text: "Delivered"}
	case n < len(recipients):
		return Receipt{MessageID: msg.ID, Status: StatusReadBySome, Text: "Read by some users"}
	default:
		return Receipt{MessageID: msg.ID, Status: StatusReadByAll, Text: "Read by all users"}
	}
}

// MarkDelivered records that userID received the message at the given
// instant. Idempotent; returns true when the set changed. The first
// addition stamps DeliveredAt.
func MarkDelivered(msg *message.Message, userID string, at time.Time) bool {
	changed := msg.AddDeliveredTo(userID, at)
	if changed {
		logrus.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"user_id":    userID,
			"delivered":  len(msg.DeliveredTo),
		}).Debug("Marked message delivered")
	}
	return changed
}

// MarkRead records that userID read the message. The sender's own id is
// never inserted into ReadBy; such calls are ignored with a warning.
// Idempotent; returns true when the set changed.
func MarkRead(msg *message.Message, userID string, at time.Time) bool {
	if userID == msg.SenderID {
		logrus.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"user_id":    userID,
		}).Warn("Ignoring read receipt from message sender")
		return false
	}
	// A read implies delivery even if the delivery event was lost.
	msg.AddDeliveredTo(userID, at)
	changed := msg.AddReadBy(userID, at)
	if changed {
		logrus.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"user_id":    userID,
			"read_by":    len(msg.ReadBy),
		}).Debug("Marked message read")
	}
	return changed
}

package message

import "time"

// Conversation describes the fixed-membership chat a message belongs to.
// Membership never changes for the lifetime of an engine instance.
type Conversation struct {
	ID              string
	ParticipantIDs  []string
	IsGroup         bool
	GroupName       string
	LastMessageTime time.Time
	UnreadCount     int
}

// Recipients returns the participants other than the given sender, in
// participant order.
func (c *Conversation) Recipients(senderID string) []string {
	out := make([]string, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != senderID {
			out = append(out, id)
		}
	}
	return out
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// QueuedEntry is the offline queue's snapshot of a message awaiting a
// retried send. It exists only while the message status is Queued and is
// removed on success or terminal failure.
type QueuedEntry struct {
	MessageID        string
	ConversationID   string
	SenderID         string
	Text             string
	MediaRef         string
	Timestamp        time.Time
	RetryCount       int
	NextEligibleTime time.Time
}

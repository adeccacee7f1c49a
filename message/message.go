package message

import (
	"strings"
	"time"
)

// Message represents one chat message tracked by the engine.
//
// DeliveredTo and ReadBy are union-only: ids are added and never removed.
// DeliveredAt and ReadAt are stamped exactly once, on the first addition
// to the corresponding set.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	MediaRef       string
	Timestamp      time.Time
	Status         Status
	DeliveredTo    map[string]struct{}
	DeliveredAt    *time.Time
	ReadBy         map[string]struct{}
	ReadAt         *time.Time
}

// New creates a message in the given initial status with empty receipt
// sets. The caller supplies the sender-generated id.
func New(id, conversationID, senderID, text string, status Status, now time.Time) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		Timestamp:      now,
		Status:         status,
		DeliveredTo:    make(map[string]struct{}),
		ReadBy:         make(map[string]struct{}),
	}
}

// AddDeliveredTo adds userID to the delivered set. The first successful
// addition stamps DeliveredAt. Returns true if the set changed.
func (m *Message) AddDeliveredTo(userID string, at time.Time) bool {
	if m.DeliveredTo == nil {
		m.DeliveredTo = make(map[string]struct{})
	}
	if _, ok := m.DeliveredTo[userID]; ok {
		return false
	}
	m.DeliveredTo[userID] = struct{}{}
	if m.DeliveredAt == nil {
		t := at
		m.DeliveredAt = &t
	}
	return true
}

// AddReadBy adds userID to the read set. The first successful addition
// stamps ReadAt. Returns true if the set changed.
func (m *Message) AddReadBy(userID string, at time.Time) bool {
	if m.ReadBy == nil {
		m.ReadBy = make(map[string]struct{})
	}
	if _, ok := m.ReadBy[userID]; ok {
		return false
	}
	m.ReadBy[userID] = struct{}{}
	if m.ReadAt == nil {
		t := at
		m.ReadAt = &t
	}
	return true
}

// DeliveredToAll reports whether every id in recipients is in the
// delivered set.
func (m *Message) DeliveredToAll(recipients []string) bool {
	for _, id := range recipients {
		if _, ok := m.DeliveredTo[id]; !ok {
			return false
		}
	}
	return true
}

// ReadCount returns how many of the given recipients have read the
// message.
func (m *Message) ReadCount(recipients []string) int {
	n := 0
	for _, id := range recipients {
		if _, ok := m.ReadBy[id]; ok {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand to observers.
func (m *Message) Clone() *Message {
	c := *m
	c.DeliveredTo = make(map[string]struct{}, len(m.DeliveredTo))
	for id := range m.DeliveredTo {
		c.DeliveredTo[id] = struct{}{}
	}
	c.ReadBy = make(map[string]struct{}, len(m.ReadBy))
	for id := range m.ReadBy {
		c.ReadBy[id] = struct{}{}
	}
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}

// ValidText reports whether text is acceptable message content. Empty
// and whitespace-only strings are rejected at the send boundary.
func ValidText(text string) bool {
	return strings.TrimSpace(text) != ""
}

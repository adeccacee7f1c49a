package remote

import (
	"time"

	"github.com/fakero0t/messageAI-sub004/interfaces"
	"github.com/fakero0t/messageAI-sub004/message"
)

// Frame types exchanged with the backend.
const (
	frameCreate  = "create"
	frameUpdate  = "update"
	frameDelete  = "delete"
	frameTyping  = "typing"
	frameAck     = "ack"
	frameCreated = "message_created"
	frameUpdated = "message_updated"
	frameDeleted = "message_deleted"
)

// Ack error codes.
const ackCodeConversationGone = "conversation_gone"

// frame is the single envelope for every websocket message in either
// direction. Unused fields stay empty on the wire.
type frame struct {
	Type           string       `json:"type"`
	Seq            uint64       `json:"seq,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	MessageID      string       `json:"message_id,omitempty"`
	Message        *wireMessage `json:"message,omitempty"`
	Fields         *wireFields  `json:"fields,omitempty"`
	Typing         *wireTyping  `json:"typing,omitempty"`
	OK             bool         `json:"ok,omitempty"`
	Code           string       `json:"code,omitempty"`
	Error          string       `json:"error,omitempty"`
}

type wireMessage struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id"`
	SenderID       string   `json:"sender_id"`
	Text           string   `json:"text,omitempty"`
	MediaRef       string   `json:"media_ref,omitempty"`
	Timestamp      int64    `json:"timestamp"`
	Status         string   `json:"status"`
	DeliveredTo    []string `json:"delivered_to,omitempty"`
	DeliveredAt    int64    `json:"delivered_at,omitempty"`
	ReadBy         []string `json:"read_by,omitempty"`
	ReadAt         int64    `json:"read_at,omitempty"`
}

type wireFields struct {
	Status      string   `json:"status,omitempty"`
	DeliveredTo []string `json:"delivered_to,omitempty"`
	ReadBy      []string `json:"read_by,omitempty"`
}

type wireTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name,omitempty"`
	Typing         bool   `json:"typing"`
	ExpiresAt      int64  `json:"expires_at,omitempty"`
}

func toWireMessage(m *message.Message) *wireMessage {
	w := &wireMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		MediaRef:       m.MediaRef,
		Timestamp:      m.Timestamp.UnixMilli(),
		Status:         m.Status.String(),
		DeliveredTo:    setToSlice(m.DeliveredTo),
		ReadBy:         setToSlice(m.ReadBy),
	}
	if m.DeliveredAt != nil {
		w.DeliveredAt = m.DeliveredAt.UnixMilli()
	}
	if m.ReadAt != nil {
		w.ReadAt = m.ReadAt.UnixMilli()
	}
	return w
}

func fromWireMessage(w *wireMessage) *message.Message {
	status, _ := message.ParseStatus(w.Status)
	m := message.New(w.ID, w.ConversationID, w.SenderID, w.Text, status, time.UnixMilli(w.Timestamp))
	m.MediaRef = w.MediaRef
	for _, id := range w.DeliveredTo {
		m.DeliveredTo[id] = struct{}{}
	}
	for _, id := range w.ReadBy {
		m.ReadBy[id] = struct{}{}
	}
	if w.DeliveredAt != 0 {
		t := time.UnixMilli(w.DeliveredAt)
		m.DeliveredAt = &t
	}
	if w.ReadAt != 0 {
		t := time.UnixMilli(w.ReadAt)
		m.ReadAt = &t
	}
	return m
}

func toWireFields(f interfaces.UpdateFields) *wireFields {
	w := &wireFields{
		DeliveredTo: f.DeliveredTo,
		ReadBy:      f.ReadBy,
	}
	if f.Status != nil {
		w.Status = f.Status.String()
	}
	return w
}

func setToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

package interfaces

import (
	"context"
	"time"

	"github.com/fakero0t/messageAI-sub004/message"
)

// EventKind identifies the kind of remote event delivered to a
// subscription.
type EventKind uint8

const (
	// EventMessageCreated signals a message record newly visible remotely.
	EventMessageCreated EventKind = iota
	// EventMessageUpdated signals remote-authoritative field changes
	// (status, receipt sets, timestamp).
	EventMessageUpdated
	// EventMessageDeleted signals remote removal of a message.
	EventMessageDeleted
	// EventTyping signals a typing start/stop for a participant.
	EventTyping
)

// Event is one remote notification. Message is set for the message
// kinds; Typing is set for EventTyping. Delivery is at-least-once and
// unordered.
type Event struct {
	Kind    EventKind
	Message *message.Message
	Typing  *TypingEvent
}

// TypingEvent carries a participant's typing signal.
type TypingEvent struct {
	ConversationID string
	UserID         string
	DisplayName    string
	Typing         bool
	ExpiresAt      time.Time
}

// RemoteStore is the remote backend collaborator. Create and Update are
// upserts keyed by message id: applying either twice yields the same
// remote state as applying it once.
type RemoteStore interface {
	// Create upserts the full message record.
	Create(ctx context.Context, msg *message.Message) error

	// Update upserts a partial field change for an existing id.
	Update(ctx context.Context, messageID string, fields UpdateFields) error

	// Delete removes the remote record. Best effort; callers fire and
	// forget.
	Delete(ctx context.Context, messageID string) error

	// SendTyping broadcasts a typing start or stop for the conversation.
	SendTyping(ctx context.Context, conversationID, userID, displayName string, typing bool) error

	// Subscribe registers onEvent for a conversation's event stream and
	// returns a cancel function that tears the subscription down.
	Subscribe(conversationID string, onEvent func(Event)) (cancel func(), err error)
}

// UpdateFields is the partial update payload for RemoteStore.Update.
// Nil/absent fields are left untouched remotely.
type UpdateFields struct {
	Status      *message.Status
	DeliveredTo []string
	ReadBy      []string
}

// LocalStore is the durable local mirror collaborator.
type LocalStore interface {
	Save(msg *message.Message) error
	UpdateStatus(messageID string, status message.Status) error
	FetchAll(conversationID string) ([]*message.Message, error)
	Delete(messageID string) error
}

// Connectivity is the observable online/offline signal. Subscribe
// callbacks fire on every edge; the engine acts only on false→true.
type Connectivity interface {
	Online() bool
	Subscribe(onChange func(online bool)) (cancel func())
}

// Timer is a cancellable scheduled task handle.
type Timer interface {
	// Stop cancels the task if it has not fired. Reports whether the
	// call prevented the task from firing.
	Stop() bool
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the production Clock backed by package time.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// AfterFunc schedules f after d on a runtime timer.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

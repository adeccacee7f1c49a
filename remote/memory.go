package remote

import (
	"context"
	"sync"
	"time"

	"github.com/fakero0t/messageAI-sub004/interfaces"
	"github.com/fakero0t/messageAI-sub004/message"
)

// Memory is an in-process RemoteStore with the same upsert and event
// semantics as a real backend, plus failure injection and recipient
// simulation. It backs engine tests and local simulations.
type Memory struct {
	mu sync.Mutex

	records map[string]*message.Message
	order   map[string][]string // conversation id -> confirmed arrival order

	subs    map[string]map[int]func(interfaces.Event)
	nextSub int

	gone map[string]bool // conversations deleted remotely

	failErr   error
	failCount int // remaining injected failures; negative means unlimited
}

// NewMemory creates an empty in-process remote store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*message.Message),
		order:   make(map[string][]string),
		subs:    make(map[string]map[int]func(interfaces.Event)),
		gone:    make(map[string]bool),
	}
}

// FailNext makes the next n Create/Update calls fail with err.
func (m *Memory) FailNext(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
	m.failCount = n
}

// FailAlways makes every Create/Update call fail with err until
// ClearFailures.
func (m *Memory) FailAlways(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
	m.failCount = -1
}

// ClearFailures removes injected failures.
func (m *Memory) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = nil
	m.failCount = 0
}

// RemoveConversation marks a conversation as deleted remotely; further
// sends into it fail with ErrConversationGone.
func (m *Memory) RemoveConversation(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gone[conversationID] = true
}

func (m *Memory) takeFailureLocked() error {
	if m.failErr == nil || m.failCount == 0 {
		return nil
	}
	err := m.failErr
	if m.failCount > 0 {
		m.failCount--
		if m.failCount == 0 {
			m.failErr = nil
		}
	}
	return err
}

// Create upserts the full record. Creating an existing id emits an
// update event instead of a duplicate create.
func (m *Memory) Create(ctx context.Context, msg *message.Message) error {
	m.mu.Lock()
	if err := m.takeFailureLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.gone[msg.ConversationID] {
		m.mu.Unlock()
		return interfaces.ErrConversationGone
	}

	_, existed := m.records[msg.ID]
	stored := msg.Clone()
	if !existed {
		// The backend stamps a fresh record as sent; delivery events
		// come from recipient devices.
		stored.Status = message.Advance(stored.Status, message.StatusSent)
		m.order[msg.ConversationID] = append(m.order[msg.ConversationID], msg.ID)
	} else {
		prev := m.records[msg.ID]
		stored.Status = message.Merge(stored.Status, prev.Status)
		for id := range prev.DeliveredTo {
			stored.AddDeliveredTo(id, timeOrNow(prev.DeliveredAt))
		}
		for id := range prev.ReadBy {
			stored.AddReadBy(id, timeOrNow(prev.ReadAt))
		}
	}
	m.records[msg.ID] = stored
	ev := interfaces.Event{Kind: interfaces.EventMessageCreated, Message: stored.Clone()}
	if existed {
		ev.Kind = interfaces.EventMessageUpdated
	}
	handlers := m.handlersLocked(msg.ConversationID)
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// Update upserts a partial field change for an existing id. Updating an
// unknown id in a live conversation is a silent no-op, matching upsert
// semantics.
func (m *Memory) Update(ctx context.Context, messageID string, fields interfaces.UpdateFields) error {
	m.mu.Lock()
	if err := m.takeFailureLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	stored, ok := m.records[messageID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if m.gone[stored.ConversationID] {
		m.mu.Unlock()
		return interfaces.ErrConversationGone
	}

	now := time.Now()
	if fields.Status != nil {
		stored.Status = message.Merge(stored.Status, *fields.Status)
	}
	for _, id := range fields.DeliveredTo {
		stored.AddDeliveredTo(id, now)
	}
	for _, id := range fields.ReadBy {
		stored.AddReadBy(id, now)
	}
	ev := interfaces.Event{Kind: interfaces.EventMessageUpdated, Message: stored.Clone()}
	handlers := m.handlersLocked(stored.ConversationID)
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// Delete removes the record and notifies subscribers.
func (m *Memory) Delete(ctx context.Context, messageID string) error {
	m.mu.Lock()
	stored, ok := m.records[messageID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.records, messageID)
	convID := stored.ConversationID
	ids := m.order[convID]
	for i, id := range ids {
		if id == messageID {
			m.order[convID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	tomb := &message.Message{ID: messageID, ConversationID: convID, SenderID: stored.SenderID}
	handlers := m.handlersLocked(convID)
	m.mu.Unlock()

	for _, h := range handlers {
		h(interfaces.Event{Kind: interfaces.EventMessageDeleted, Message: tomb})
	}
	return nil
}

// SendTyping fans a typing signal out to the conversation's
// subscribers, stamping a server-side expiry.
func (m *Memory) SendTyping(ctx context.Context, conversationID, userID, displayName string, typing bool) error {
	m.mu.Lock()
	handlers := m.handlersLocked(conversationID)
	m.mu.Unlock()

	ev := interfaces.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
		DisplayName:    displayName,
		Typing:         typing,
		ExpiresAt:      time.Now().Add(5 * time.Second),
	}
	for _, h := range handlers {
		h(interfaces.Event{Kind: interfaces.EventTyping, Typing: &ev})
	}
	return nil
}

// Subscribe registers onEvent for a conversation.
func (m *Memory) Subscribe(conversationID string, onEvent func(interfaces.Event)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subs[conversationID] == nil {
		m.subs[conversationID] = make(map[int]func(interfaces.Event))
	}
	id := m.nextSub
	m.nextSub++
	m.subs[conversationID][id] = onEvent

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if handlers, ok := m.subs[conversationID]; ok {
			delete(handlers, id)
		}
	}, nil
}

// MarkDelivered simulates a recipient device acknowledging delivery and
// emits the resulting update event.
func (m *Memory) MarkDelivered(messageID, userID string) {
	m.mutateAndNotify(messageID, func(stored *message.Message) {
		stored.AddDeliveredTo(userID, time.Now())
		stored.Status = message.Merge(stored.Status, message.StatusDelivered)
	})
}

// MarkRead simulates a recipient device reporting a read and emits the
// resulting update event.
func (m *Memory) MarkRead(messageID, userID string) {
	m.mutateAndNotify(messageID, func(stored *message.Message) {
		stored.AddDeliveredTo(userID, time.Now())
		stored.AddReadBy(userID, time.Now())
	})
}

// Redeliver re-emits the current state of every record in the
// conversation, simulating at-least-once event duplication.
func (m *Memory) Redeliver(conversationID string) {
	m.mu.Lock()
	events := make([]interfaces.Event, 0, len(m.order[conversationID]))
	for _, id := range m.order[conversationID] {
		if stored, ok := m.records[id]; ok {
			events = append(events, interfaces.Event{Kind: interfaces.EventMessageUpdated, Message: stored.Clone()})
		}
	}
	handlers := m.handlersLocked(conversationID)
	m.mu.Unlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}

// ConfirmedOrder returns the remote-confirmed arrival order of message
// ids for a conversation.
func (m *Memory) ConfirmedOrder(conversationID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order[conversationID]))
	copy(out, m.order[conversationID])
	return out
}

// Record returns a copy of the stored record, if present.
func (m *Memory) Record(messageID string) (*message.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[messageID]
	if !ok {
		return nil, false
	}
	return stored.Clone(), true
}

// RecordCount returns how many records exist for a conversation.
func (m *Memory) RecordCount(conversationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order[conversationID])
}

func (m *Memory) mutateAndNotify(messageID string, mutate func(*message.Message)) {
	m.mu.Lock()
	stored, ok := m.records[messageID]
	if !ok {
		m.mu.Unlock()
		return
	}
	mutate(stored)
	ev := interfaces.Event{Kind: interfaces.EventMessageUpdated, Message: stored.Clone()}
	handlers := m.handlersLocked(stored.ConversationID)
	m.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (m *Memory) handlersLocked(conversationID string) []func(interfaces.Event) {
	handlers := make([]func(interfaces.Event), 0, len(m.subs[conversationID]))
	for _, h := range m.subs[conversationID] {
		handlers = append(handlers, h)
	}
	return handlers
}

func timeOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now()
}

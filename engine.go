package chatengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fakero0t/messageAI-sub004/config"
	"github.com/fakero0t/messageAI-sub004/interfaces"
	"github.com/fakero0t/messageAI-sub004/message"
	"github.com/fakero0t/messageAI-sub004/queue"
	"github.com/fakero0t/messageAI-sub004/receipt"
	"github.com/fakero0t/messageAI-sub004/reconcile"
	"github.com/fakero0t/messageAI-sub004/typing"
)

var (
	// ErrEmptyMessage is returned when SendMessage receives empty or
	// whitespace-only text. No state is created.
	ErrEmptyMessage = errors.New("message text cannot be empty")
	// ErrMessageNotFound is returned for operations on unknown ids.
	ErrMessageNotFound = errors.New("message not found")
	// ErrClosed is returned for operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

// sendTimeout bounds a single remote send attempt.
const sendTimeout = 15 * time.Second

// outboundBuffer bounds the in-flight send pipeline; overflow falls
// back to the offline queue rather than blocking the caller.
const outboundBuffer = 256

// Engine coordinates message delivery and synchronization for one
// conversation.
type Engine struct {
	mu sync.Mutex

	cfg      config.Config
	conv     *message.Conversation
	selfID   string
	selfName string

	remote interfaces.RemoteStore
	local  interfaces.LocalStore
	conn   interfaces.Connectivity
	clock  interfaces.Clock

	list []*message.Message

	queue      *queue.Queue
	reconciler *reconcile.Reconciler
	typing     *typing.Coordinator

	outbound chan string
	workerWG sync.WaitGroup

	cancelSub  func()
	cancelConn func()

	onMessages func([]*message.Message)
	onReceipt  func(receipt.Receipt)

	closed bool
}

// New creates an engine for one conversation, restores local history
// from the mirror, re-queues unsent messages, and subscribes to the
// remote event stream. A nil clock falls back to the system clock.
func New(cfg config.Config, conv *message.Conversation, selfID, selfName string,
	remote interfaces.RemoteStore, local interfaces.LocalStore,
	conn interfaces.Connectivity, clock interfaces.Clock) (*Engine, error) {

	if conv == nil || conv.ID == "" {
		return nil, errors.New("conversation is required")
	}
	if remote == nil || local == nil || conn == nil {
		return nil, errors.New("remote, local, and connectivity collaborators are required")
	}
	if clock == nil {
		clock = interfaces.SystemClock{}
	}

	e := &Engine{
		cfg:        cfg,
		conv:       conv,
		selfID:     selfID,
		selfName:   selfName,
		remote:     remote,
		local:      local,
		conn:       conn,
		clock:      clock,
		reconciler: reconcile.New(selfID),
		outbound:   make(chan string, outboundBuffer),
	}

	e.queue = queue.New((*queueDelegate)(e), clock)
	e.queue.SetRetryPolicy(cfg.MaxRetries, cfg.InitialBackoff, cfg.MaxBackoff)

	e.typing = typing.NewCoordinator(conv.ID, selfID, selfName, remote, clock)
	if cfg.TypingDebounce > 0 {
		e.typing.SetDebounce(cfg.TypingDebounce)
	}
	if cfg.TypingEntryTTL > 0 {
		e.typing.SetEntryTTL(cfg.TypingEntryTTL)
	}

	if err := e.restore(); err != nil {
		return nil, err
	}

	cancelSub, err := remote.Subscribe(conv.ID, e.handleEvent)
	if err != nil {
		return nil, err
	}
	e.cancelSub = cancelSub

	e.cancelConn = conn.Subscribe(func(online bool) {
		if online {
			// Reconnect makes every queued entry eligible immediately.
			go e.queue.Drain(context.Background(), true)
		}
	})

	e.workerWG.Add(1)
	go e.outboundWorker()

	e.queue.StartAutoDrain(cfg.QueueTick)

	logrus.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"participants":    len(conv.ParticipantIDs),
		"is_group":        conv.IsGroup,
		"restored":        len(e.list),
	}).Info("Engine started")

	return e, nil
}

// restore loads the mirror and re-queues anything that never reached
// the remote store. A message still pending from a previous run lost
// its in-flight send, so it re-enters as queued.
func (e *Engine) restore() error {
	msgs, err := e.local.FetchAll(e.conv.ID)
	if err != nil {
		return err
	}
	e.list = msgs

	for _, m := range e.list {
		if m.SenderID != e.selfID {
			continue
		}
		switch m.Status {
		case message.StatusPending, message.StatusQueued:
			m.Status = message.StatusQueued
			e.queue.Enqueue(&message.QueuedEntry{
				MessageID:      m.ID,
				ConversationID: m.ConversationID,
				SenderID:       m.SenderID,
				Text:           m.Text,
				MediaRef:       m.MediaRef,
				Timestamp:      m.Timestamp,
			})
		}
	}
	return nil
}

// SendMessage creates an optimistic entry and starts the asynchronous
// delivery pipeline. It never blocks on I/O. Empty or whitespace-only
// text is rejected with ErrEmptyMessage and no state change.
func (e *Engine) SendMessage(text string) (string, error) {
	if !message.ValidText(text) {
		return "", ErrEmptyMessage
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}

	id := uuid.NewString()
	status := message.StatusPending
	online := e.conn.Online()
	if !online {
		status = message.StatusQueued
	}

	msg := message.New(id, e.conv.ID, e.selfID, text, status, e.clock.Now())
	e.list = append(e.list, msg)
	e.conv.LastMessageTime = msg.Timestamp
	snapshot := msg.Clone()

	// Enqueue to the pipeline while still serialized so a concurrent
	// Close cannot shut the channel mid-send.
	saturated := false
	if online {
		select {
		case e.outbound <- id:
		default:
			saturated = true
		}
	}
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"message_id":      id,
		"conversation_id": e.conv.ID,
		"status":          status,
	}).Debug("Message created")

	// Sending implies the local user stopped typing.
	e.typing.StopTyping()

	if online {
		if saturated {
			// Pipeline saturated; treat like a transient failure.
			e.toQueue(id)
		}
	} else {
		go func() {
			if err := e.local.Save(snapshot); err != nil {
				logrus.WithFields(logrus.Fields{
					"message_id": id,
					"error":      err,
				}).Error("Failed to persist queued message")
			}
		}()
		e.queue.Enqueue(&message.QueuedEntry{
			MessageID:      id,
			ConversationID: e.conv.ID,
			SenderID:       e.selfID,
			Text:           text,
			Timestamp:      snapshot.Timestamp,
		})
	}

	e.notifyMessages()
	return id, nil
}

// RetryMessage re-enters the send flow for a failed or queued message
// using its original payload.
func (e *Engine) RetryMessage(messageID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	msg := e.findLocked(messageID)
	if msg == nil {
		e.mu.Unlock()
		return ErrMessageNotFound
	}
	if msg.Status != message.StatusFailed && msg.Status != message.StatusQueued {
		e.mu.Unlock()
		return nil
	}
	msg.Status = message.Advance(msg.Status, message.StatusPending)
	saturated := false
	select {
	case e.outbound <- messageID:
	default:
		saturated = true
	}
	e.mu.Unlock()

	// Drop any stale queue entry; the outbound pipeline owns it now.
	e.queue.Remove(messageID)
	e.updateMirrorStatus(messageID, message.StatusPending)
	if saturated {
		e.toQueue(messageID)
	}

	e.notifyMessages()
	return nil
}

// DeleteMessage removes the entry locally at once and issues a
// best-effort remote delete without waiting for it.
func (e *Engine) DeleteMessage(messageID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	found := false
	for i, m := range e.list {
		if m.ID == messageID {
			e.list = append(e.list[:i], e.list[i+1:]...)
			found = true
			break
		}
	}
	e.mu.Unlock()

	if !found {
		return ErrMessageNotFound
	}

	e.queue.Remove(messageID)
	if err := e.local.Delete(messageID); err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"error":      err,
		}).Warn("Failed to delete message from mirror")
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := e.remote.Delete(ctx, messageID); err != nil {
			logrus.WithFields(logrus.Fields{
				"message_id": messageID,
				"error":      err,
			}).Warn("Best-effort remote delete failed")
		}
	}()

	e.notifyMessages()
	return nil
}

// MarkDelivered records that userID received the message. Idempotent
// under duplicate events from any source.
func (e *Engine) MarkDelivered(messageID, userID string) error {
	e.mu.Lock()
	msg := e.findLocked(messageID)
	if msg == nil {
		e.mu.Unlock()
		return ErrMessageNotFound
	}
	changed := receipt.MarkDelivered(msg, userID, e.clock.Now())
	e.advanceFromReceiptsLocked(msg)
	snapshot := msg.Clone()
	e.mu.Unlock()

	if !changed {
		return nil
	}

	e.saveMirror(snapshot)
	if userID == e.selfID && snapshot.SenderID != e.selfID {
		e.pushReceiptUpdate(messageID, interfaces.UpdateFields{DeliveredTo: []string{userID}})
	}
	e.notifyMessages()
	e.notifyReceipt()
	return nil
}

// MarkRead records that userID read the message. When the local user
// reads an incoming message the read is pushed to the remote store and
// the conversation's unread count drops.
func (e *Engine) MarkRead(messageID, userID string) error {
	e.mu.Lock()
	msg := e.findLocked(messageID)
	if msg == nil {
		e.mu.Unlock()
		return ErrMessageNotFound
	}
	changed := receipt.MarkRead(msg, userID, e.clock.Now())
	e.advanceFromReceiptsLocked(msg)
	ownRead := changed && userID == e.selfID && msg.SenderID != e.selfID
	if ownRead && e.conv.UnreadCount > 0 {
		e.conv.UnreadCount--
	}
	snapshot := msg.Clone()
	e.mu.Unlock()

	if !changed {
		return nil
	}

	e.saveMirror(snapshot)
	if ownRead {
		e.pushReceiptUpdate(messageID, interfaces.UpdateFields{
			DeliveredTo: []string{userID},
			ReadBy:      []string{userID},
		})
	}
	e.notifyMessages()
	e.notifyReceipt()
	return nil
}

// ForceRetry triggers an immediate queue drain, ignoring backoff
// eligibility. A drain already in flight absorbs the trigger.
func (e *Engine) ForceRetry() {
	go e.queue.Drain(context.Background(), true)
}

// StartTyping records a local keystroke.
func (e *Engine) StartTyping() { e.typing.StartTyping() }

// StopTyping broadcasts immediate typing cessation.
func (e *Engine) StopTyping() { e.typing.StopTyping() }

// TypingText returns the display text for remote users currently
// typing in this conversation.
func (e *Engine) TypingText() string { return e.typing.Text() }

// Messages returns an ordered snapshot of the conversation.
func (e *Engine) Messages() []*message.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Receipt returns the display status for the latest own message.
func (e *Engine) Receipt() receipt.Receipt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return receipt.ForLatestOwn(e.conv, e.list, e.selfID)
}

// Conversation returns a copy of the conversation metadata, including
// the current unread count.
func (e *Engine) Conversation() message.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := *e.conv
	c.ParticipantIDs = append([]string(nil), e.conv.ParticipantIDs...)
	return c
}

// QueueDepth returns how many messages await automatic retry.
func (e *Engine) QueueDepth() int { return e.queue.Len() }

// OnMessagesChanged registers the ordered-list observer. The callback
// receives a snapshot copy.
func (e *Engine) OnMessagesChanged(fn func([]*message.Message)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMessages = fn
}

// OnReceiptChanged registers the display-status observer for the
// latest own message.
func (e *Engine) OnReceiptChanged(fn func(receipt.Receipt)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onReceipt = fn
}

// OnTypingChanged registers the typing display text observer.
func (e *Engine) OnTypingChanged(fn func(text string)) {
	e.typing.OnChange(fn)
}

// Close tears down the engine: the remote subscription is cancelled
// and a typing-stop is broadcast, but in-flight sends and an
// in-progress queue drain run to completion.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.outbound)
	e.mu.Unlock()

	if e.cancelSub != nil {
		e.cancelSub()
	}
	if e.cancelConn != nil {
		e.cancelConn()
	}
	e.typing.StopTyping()
	e.queue.Stop()

	e.workerWG.Wait()

	logrus.WithFields(logrus.Fields{
		"conversation_id": e.conv.ID,
	}).Info("Engine closed")
	return nil
}

// outboundWorker drains the send pipeline one message at a time, which
// preserves per-conversation send order end to end.
func (e *Engine) outboundWorker() {
	defer e.workerWG.Done()
	for id := range e.outbound {
		e.processOutbound(id)
	}
}

// processOutbound runs the asynchronous half of a send: persist
// locally, advance to sent, attempt the remote upsert, and hand off to
// the offline queue on failure.
func (e *Engine) processOutbound(messageID string) {
	e.mu.Lock()
	msg := e.findLocked(messageID)
	if msg == nil || msg.Status != message.StatusPending {
		e.mu.Unlock()
		return
	}
	snapshot := msg.Clone()
	e.mu.Unlock()

	if err := e.local.Save(snapshot); err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"error":      err,
		}).Error("Local persistence failed, queueing message")
		e.toQueue(messageID)
		return
	}

	e.mu.Lock()
	msg = e.findLocked(messageID)
	if msg == nil {
		e.mu.Unlock()
		return
	}
	msg.Status = message.Advance(msg.Status, message.StatusSent)
	sent := msg.Clone()
	e.mu.Unlock()
	e.updateMirrorStatus(messageID, message.StatusSent)
	e.notifyMessages()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	err := e.remote.Create(ctx, sent)
	switch {
	case err == nil:
		// Delivery progress arrives through the event stream.
	case errors.Is(err, interfaces.ErrConversationGone):
		e.dropLocal(messageID)
	default:
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"error":      err,
		}).Warn("Remote send failed, queueing message")
		e.toQueue(messageID)
	}
}

// toQueue moves a message into the offline queue.
func (e *Engine) toQueue(messageID string) {
	e.mu.Lock()
	msg := e.findLocked(messageID)
	if msg == nil {
		e.mu.Unlock()
		return
	}
	msg.Status = message.Advance(msg.Status, message.StatusQueued)
	entry := &message.QueuedEntry{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		MediaRef:       msg.MediaRef,
		Timestamp:      msg.Timestamp,
	}
	e.mu.Unlock()

	e.updateMirrorStatus(messageID, message.StatusQueued)
	e.queue.Enqueue(entry)
	e.notifyMessages()
}

// dropLocal silently removes a message whose remote target is gone.
func (e *Engine) dropLocal(messageID string) {
	e.mu.Lock()
	for i, m := range e.list {
		if m.ID == messageID {
			e.list = append(e.list[:i], e.list[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	if err := e.local.Delete(messageID); err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"error":      err,
		}).Warn("Failed to remove dropped message from mirror")
	}
	logrus.WithFields(logrus.Fields{
		"message_id": messageID,
	}).Info("Dropped local message, remote target gone")
	e.notifyMessages()
}

// handleEvent is the remote subscription callback. Events re-enter the
// serialized context before touching shared state.
func (e *Engine) handleEvent(ev interfaces.Event) {
	switch ev.Kind {
	case interfaces.EventTyping:
		if ev.Typing != nil {
			e.typing.HandleEvent(*ev.Typing)
		}
	case interfaces.EventMessageCreated, interfaces.EventMessageUpdated:
		if ev.Message != nil {
			e.applyRemoteUpsert(ev.Message)
		}
	case interfaces.EventMessageDeleted:
		if ev.Message != nil {
			e.applyRemoteDelete(ev.Message.ID)
		}
	}
}

func (e *Engine) applyRemoteUpsert(remoteMsg *message.Message) {
	e.mu.Lock()
	list, out := e.reconciler.ApplyUpsert(e.list, remoteMsg)
	e.list = list
	if !out.Changed {
		e.mu.Unlock()
		return
	}

	msg := e.findLocked(remoteMsg.ID)
	var snapshot *message.Message
	if msg != nil {
		e.advanceFromReceiptsLocked(msg)
		if msg.Timestamp.After(e.conv.LastMessageTime) {
			e.conv.LastMessageTime = msg.Timestamp
		}
		if out.Inserted && out.FromOther {
			e.conv.UnreadCount++
		}
		snapshot = msg.Clone()
	}
	e.mu.Unlock()

	if snapshot != nil {
		e.saveMirror(snapshot)
	}
	if out.FromOther {
		// A message from a sender implies that sender stopped typing.
		e.typing.ClearUser(out.SenderID)
	}
	e.notifyMessages()
	e.notifyReceipt()
}

func (e *Engine) applyRemoteDelete(messageID string) {
	e.mu.Lock()
	list, out := e.reconciler.ApplyDelete(e.list, messageID)
	e.list = list
	e.mu.Unlock()

	if !out.Changed {
		return
	}
	e.queue.Remove(messageID)
	if err := e.local.Delete(messageID); err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"error":      err,
		}).Warn("Failed to mirror remote delete")
	}
	e.notifyMessages()
	e.notifyReceipt()
}

// advanceFromReceiptsLocked moves an own message's status forward when
// its receipt sets satisfy the conversation's requirements.
func (e *Engine) advanceFromReceiptsLocked(msg *message.Message) {
	if msg.SenderID != e.selfID {
		return
	}
	if len(msg.DeliveredTo) > 0 {
		msg.Status = message.Advance(msg.Status, message.StatusDelivered)
	}
	recipients := e.conv.Recipients(e.selfID)
	if len(recipients) > 0 && msg.ReadCount(recipients) == len(recipients) {
		msg.Status = message.Advance(msg.Status, message.StatusRead)
	}
}

func (e *Engine) findLocked(messageID string) *message.Message {
	for _, m := range e.list {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (e *Engine) snapshotLocked() []*message.Message {
	out := make([]*message.Message, len(e.list))
	for i, m := range e.list {
		out[i] = m.Clone()
	}
	return out
}

func (e *Engine) notifyMessages() {
	e.mu.Lock()
	fn := e.onMessages
	var snapshot []*message.Message
	if fn != nil {
		snapshot = e.snapshotLocked()
	}
	e.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

func (e *Engine) notifyReceipt() {
	e.mu.Lock()
	fn := e.onReceipt
	var r receipt.Receipt
	if fn != nil {
		r = receipt.ForLatestOwn(e.conv, e.list, e.selfID)
	}
	e.mu.Unlock()

	if fn != nil {
		fn(r)
	}
}

func (e *Engine) saveMirror(msg *message.Message) {
	if err := e.local.Save(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": msg.ID,
			"error":      err,
		}).Warn("Failed to update mirror")
	}
}

// updateMirrorStatus is best effort: a not-yet-saved row converges on
// the next full Save.
func (e *Engine) updateMirrorStatus(messageID string, status message.Status) {
	if err := e.local.UpdateStatus(messageID, status); err != nil {
		logrus.WithFields(logrus.Fields{
			"message_id": messageID,
			"status":     status,
			"error":      err,
		}).Debug("Mirror status update skipped")
	}
}

// pushReceiptUpdate sends a receipt-set change to the remote store in
// the background.
func (e *Engine) pushReceiptUpdate(messageID string, fields interfaces.UpdateFields) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := e.remote.Update(ctx, messageID, fields); err != nil {
			logrus.WithFields(logrus.Fields{
				"message_id": messageID,
				"error":      err,
			}).Warn("Failed to push receipt update")
		}
	}()
}

// queueDelegate adapts Engine to the queue.Delegate interface without
// widening the engine's public API.
type queueDelegate Engine

func (d *queueDelegate) engine() *Engine { return (*Engine)(d) }

// SendEntry rebuilds the message from its queued snapshot and attempts
// the idempotent remote upsert.
func (d *queueDelegate) SendEntry(ctx context.Context, entry *message.QueuedEntry) error {
	e := d.engine()

	msg := message.New(entry.MessageID, entry.ConversationID, entry.SenderID, entry.Text, message.StatusSent, entry.Timestamp)
	msg.MediaRef = entry.MediaRef

	if err := e.local.Save(msg); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return e.remote.Create(sendCtx, msg)
}

func (d *queueDelegate) EntrySent(messageID string) {
	e := d.engine()
	e.mu.Lock()
	if msg := e.findLocked(messageID); msg != nil {
		msg.Status = message.Advance(msg.Status, message.StatusSent)
	}
	e.mu.Unlock()

	e.updateMirrorStatus(messageID, message.StatusSent)
	e.notifyMessages()
}

func (d *queueDelegate) EntryFailed(messageID string) {
	e := d.engine()
	e.mu.Lock()
	if msg := e.findLocked(messageID); msg != nil {
		msg.Status = message.Advance(msg.Status, message.StatusFailed)
	}
	e.mu.Unlock()

	e.updateMirrorStatus(messageID, message.StatusFailed)
	e.notifyMessages()
}

func (d *queueDelegate) EntryDropped(messageID string) {
	d.engine().dropLocal(messageID)
}

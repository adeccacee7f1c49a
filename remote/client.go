package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fakero0t/messageAI-sub004/interfaces"
	"github.com/fakero0t/messageAI-sub004/message"
)

// ErrClosed is returned for operations on a closed client.
var ErrClosed = errors.New("remote client closed")

const dialTimeout = 10 * time.Second

// Client is a websocket-backed RemoteStore. Create, Update, and Delete
// are sequence-numbered requests matched to server acks; events fan out
// to per-conversation subscribers from a single read loop.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex // the connection allows one concurrent writer

	mu      sync.Mutex
	nextSeq uint64
	pending map[uint64]chan frame
	subs    map[string]map[int]func(interfaces.Event)
	nextSub int
	closed  bool

	done chan struct{}
}

// Dial connects to the backend and starts the read loop.
func Dial(url string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial remote store %q: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan frame),
		subs:    make(map[string]map[int]func(interfaces.Event)),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	logrus.WithFields(logrus.Fields{
		"url": url,
	}).Info("Connected to remote store")

	return c, nil
}

// Create upserts the full message record, waiting for the server ack.
func (c *Client) Create(ctx context.Context, msg *message.Message) error {
	return c.request(ctx, frame{
		Type:           frameCreate,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Message:        toWireMessage(msg),
	})
}

// Update upserts a partial field change for the message id.
func (c *Client) Update(ctx context.Context, messageID string, fields interfaces.UpdateFields) error {
	return c.request(ctx, frame{
		Type:      frameUpdate,
		MessageID: messageID,
		Fields:    toWireFields(fields),
	})
}

// Delete removes the remote record. Best effort: callers treat failures
// as advisory.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	return c.request(ctx, frame{
		Type:      frameDelete,
		MessageID: messageID,
	})
}

// SendTyping broadcasts a typing signal. Fire and forget: no ack is
// awaited.
func (c *Client) SendTyping(ctx context.Context, conversationID, userID, displayName string, typing bool) error {
	return c.write(frame{
		Type: frameTyping,
		Typing: &wireTyping{
			ConversationID: conversationID,
			UserID:         userID,
			DisplayName:    displayName,
			Typing:         typing,
		},
	})
}

// Subscribe registers onEvent for a conversation's event stream.
func (c *Client) Subscribe(conversationID string, onEvent func(interfaces.Event)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if c.subs[conversationID] == nil {
		c.subs[conversationID] = make(map[int]func(interfaces.Event))
	}
	id := c.nextSub
	c.nextSub++
	c.subs[conversationID][id] = onEvent

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if handlers, ok := c.subs[conversationID]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(c.subs, conversationID)
			}
		}
	}
	return cancel, nil
}

// Close tears down the connection and fails all pending requests.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

// request writes a sequence-numbered frame and waits for its ack.
func (c *Client) request(ctx context.Context, f frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.nextSeq++
	f.Seq = c.nextSeq
	ackCh := make(chan frame, 1)
	c.pending[f.Seq] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.Seq)
		c.mu.Unlock()
	}()

	if err := c.write(f); err != nil {
		return err
	}

	select {
	case ack := <-ackCh:
		if ack.OK {
			return nil
		}
		if ack.Code == ackCodeConversationGone {
			return interfaces.ErrConversationGone
		}
		return fmt.Errorf("remote %s rejected: %s", f.Type, ack.Error)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("write %s frame: %w", f.Type, err)
	}
	return nil
}

// readLoop dispatches inbound frames until the connection dies.
func (c *Client) readLoop() {
	defer close(c.done)

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithFields(logrus.Fields{
					"error": err,
				}).Warn("Remote store connection lost")
			}
			c.failPending()
			return
		}

		switch f.Type {
		case frameAck:
			c.mu.Lock()
			ackCh, ok := c.pending[f.Seq]
			c.mu.Unlock()
			if ok {
				ackCh <- f
			}
		case frameCreated, frameUpdated:
			if f.Message == nil {
				continue
			}
			kind := interfaces.EventMessageCreated
			if f.Type == frameUpdated {
				kind = interfaces.EventMessageUpdated
			}
			msg := fromWireMessage(f.Message)
			c.dispatch(msg.ConversationID, interfaces.Event{Kind: kind, Message: msg})
		case frameDeleted:
			if f.MessageID == "" {
				continue
			}
			tomb := &message.Message{ID: f.MessageID, ConversationID: f.ConversationID}
			c.dispatch(f.ConversationID, interfaces.Event{Kind: interfaces.EventMessageDeleted, Message: tomb})
		case frameTyping:
			if f.Typing == nil {
				continue
			}
			ev := interfaces.TypingEvent{
				ConversationID: f.Typing.ConversationID,
				UserID:         f.Typing.UserID,
				DisplayName:    f.Typing.DisplayName,
				Typing:         f.Typing.Typing,
			}
			if f.Typing.ExpiresAt != 0 {
				ev.ExpiresAt = time.UnixMilli(f.Typing.ExpiresAt)
			}
			c.dispatch(ev.ConversationID, interfaces.Event{Kind: interfaces.EventTyping, Typing: &ev})
		default:
			logrus.WithFields(logrus.Fields{
				"type": f.Type,
			}).Debug("Ignoring unknown frame type")
		}
	}
}

func (c *Client) dispatch(conversationID string, ev interfaces.Event) {
	c.mu.Lock()
	handlers := make([]func(interfaces.Event), 0, len(c.subs[conversationID]))
	for _, h := range c.subs[conversationID] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// failPending unblocks requests waiting on a dead connection.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for seq, ackCh := range c.pending {
		select {
		case ackCh <- frame{Type: frameAck, Seq: seq, OK: false, Error: "connection lost"}:
		default:
		}
	}
}

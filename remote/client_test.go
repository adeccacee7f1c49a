package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakero0t/messageAI-sub004/interfaces"
	"github.com/fakero0t/messageAI-sub004/message"
)

// newTestServer runs handle on each websocket connection and returns
// the ws:// URL.
func newTestServer(t *testing.T, handle func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// ackingServer acks every request; mutateAck can rewrite the ack first.
func ackingServer(t *testing.T, mutateAck func(req frame, ack *frame)) string {
	t.Helper()
	return newTestServer(t, func(conn *websocket.Conn) {
		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Seq == 0 {
				continue // fire-and-forget frames carry no sequence
			}
			ack := frame{Type: frameAck, Seq: req.Seq, OK: true}
			if mutateAck != nil {
				mutateAck(req, &ack)
			}
			if err := conn.WriteJSON(ack); err != nil {
				return
			}
		}
	})
}

func dialTest(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestClient_CreateAcked(t *testing.T) {
	url := ackingServer(t, nil)
	c := dialTest(t, url)

	msg := message.New("m1", "c1", "alice", "hello", message.StatusSent, time.Now())
	assert.NoError(t, c.Create(context.Background(), msg))
}

func TestClient_ConversationGoneAck(t *testing.T) {
	url := ackingServer(t, func(req frame, ack *frame) {
		ack.OK = false
		ack.Code = ackCodeConversationGone
	})
	c := dialTest(t, url)

	msg := message.New("m1", "gone", "alice", "hello", message.StatusSent, time.Now())
	err := c.Create(context.Background(), msg)
	assert.ErrorIs(t, err, interfaces.ErrConversationGone)
}

func TestClient_RejectedAckSurfacesError(t *testing.T) {
	url := ackingServer(t, func(req frame, ack *frame) {
		ack.OK = false
		ack.Error = "payload too large"
	})
	c := dialTest(t, url)

	err := c.Update(context.Background(), "m1", interfaces.UpdateFields{ReadBy: []string{"bob"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload too large")
}

func TestClient_EventDispatch(t *testing.T) {
	// The server echoes each create back as a broadcast event before the
	// ack, the order a fan-out backend produces.
	url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Type != frameCreate {
				continue
			}
			_ = conn.WriteJSON(frame{Type: frameCreated, Message: req.Message})
			_ = conn.WriteJSON(frame{Type: frameAck, Seq: req.Seq, OK: true})
		}
	})
	c := dialTest(t, url)

	events := make(chan interfaces.Event, 1)
	cancel, err := c.Subscribe("c1", func(ev interfaces.Event) {
		events <- ev
	})
	require.NoError(t, err)
	defer cancel()

	sent := message.New("m1", "c1", "alice", "hello", message.StatusSent, time.Now())
	sent.AddDeliveredTo("bob", time.Now())
	require.NoError(t, c.Create(context.Background(), sent))

	select {
	case ev := <-events:
		assert.Equal(t, interfaces.EventMessageCreated, ev.Kind)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "m1", ev.Message.ID)
		assert.Equal(t, message.StatusSent, ev.Message.Status)
		assert.Contains(t, ev.Message.DeliveredTo, "bob")
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for dispatched event")
	}
}

func TestClient_TypingIsFireAndForget(t *testing.T) {
	received := make(chan frame, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Type == frameTyping {
				received <- req
			}
		}
	})
	c := dialTest(t, url)

	// Returns without waiting for any server response.
	require.NoError(t, c.SendTyping(context.Background(), "c1", "alice", "Alice", true))

	select {
	case f := <-received:
		require.NotNil(t, f.Typing)
		assert.Equal(t, "alice", f.Typing.UserID)
		assert.True(t, f.Typing.Typing)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for typing frame")
	}
}

func TestClient_ContextDeadlineUnblocksRequest(t *testing.T) {
	// A server that never acks.
	url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
		}
	})
	c := dialTest(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	msg := message.New("m1", "c1", "alice", "hello", message.StatusSent, time.Now())
	err := c.Create(ctx, msg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_CloseRejectsFurtherRequests(t *testing.T) {
	url := ackingServer(t, nil)
	c, err := Dial(url)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")

	msg := message.New("m1", "c1", "alice", "hello", message.StatusSent, time.Now())
	assert.ErrorIs(t, c.Create(context.Background(), msg), ErrClosed)

	_, err = c.Subscribe("c1", func(interfaces.Event) {})
	assert.ErrorIs(t, err, ErrClosed)
}

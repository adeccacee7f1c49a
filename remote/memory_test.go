package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakero0t/messageAI-sub004/interfaces"
	"github.com/fakero0t/messageAI-sub004/message"
)

func newMsg(id string) *message.Message {
	return message.New(id, "c1", "alice", "hello", message.StatusPending, time.Now())
}

func collectEvents(t *testing.T, m *Memory, conversationID string) (*[]interfaces.Event, func()) {
	t.Helper()
	events := &[]interfaces.Event{}
	cancel, err := m.Subscribe(conversationID, func(ev interfaces.Event) {
		*events = append(*events, ev)
	})
	require.NoError(t, err)
	return events, cancel
}

func TestCreate_EmitsCreateAndStampsSent(t *testing.T) {
	m := NewMemory()
	events, cancel := collectEvents(t, m, "c1")
	defer cancel()

	require.NoError(t, m.Create(context.Background(), newMsg("m1")))

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, interfaces.EventMessageCreated, ev.Kind)
	assert.Equal(t, message.StatusSent, ev.Message.Status)

	stored, ok := m.Record("m1")
	require.True(t, ok)
	assert.Equal(t, message.StatusSent, stored.Status)
}

func TestCreate_ExistingIDEmitsUpdate(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Create(context.Background(), newMsg("m1")))

	events, cancel := collectEvents(t, m, "c1")
	defer cancel()

	// An idempotent re-create must not duplicate the record.
	require.NoError(t, m.Create(context.Background(), newMsg("m1")))

	require.Len(t, *events, 1)
	assert.Equal(t, interfaces.EventMessageUpdated, (*events)[0].Kind)
	assert.Equal(t, 1, m.RecordCount("c1"))
}

func TestCreate_RecordsConfirmedOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, newMsg("m1")))
	require.NoError(t, m.Create(ctx, newMsg("m2")))
	require.NoError(t, m.Create(ctx, newMsg("m3")))

	assert.Equal(t, []string{"m1", "m2", "m3"}, m.ConfirmedOrder("c1"))
}

func TestFailureInjection(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	ctx := context.Background()

	m.FailNext(boom, 2)
	assert.ErrorIs(t, m.Create(ctx, newMsg("m1")), boom)
	assert.ErrorIs(t, m.Create(ctx, newMsg("m1")), boom)
	assert.NoError(t, m.Create(ctx, newMsg("m1")))

	m.FailAlways(boom)
	assert.ErrorIs(t, m.Create(ctx, newMsg("m2")), boom)
	assert.ErrorIs(t, m.Create(ctx, newMsg("m2")), boom)
	m.ClearFailures()
	assert.NoError(t, m.Create(ctx, newMsg("m2")))
}

func TestRemovedConversationRejectsSends(t *testing.T) {
	m := NewMemory()
	m.RemoveConversation("c1")

	err := m.Create(context.Background(), newMsg("m1"))
	assert.ErrorIs(t, err, interfaces.ErrConversationGone)
}

func TestMarkDeliveredAndRead_EmitUpdates(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Create(context.Background(), newMsg("m1")))

	events, cancel := collectEvents(t, m, "c1")
	defer cancel()

	m.MarkDelivered("m1", "bob")
	m.MarkRead("m1", "bob")

	require.Len(t, *events, 2)
	delivered := (*events)[0].Message
	assert.Contains(t, delivered.DeliveredTo, "bob")
	assert.Equal(t, message.StatusDelivered, delivered.Status)

	read := (*events)[1].Message
	assert.Contains(t, read.ReadBy, "bob")
}

func TestDelete_EmitsTombstone(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, newMsg("m1")))

	events, cancel := collectEvents(t, m, "c1")
	defer cancel()

	require.NoError(t, m.Delete(ctx, "m1"))

	require.Len(t, *events, 1)
	assert.Equal(t, interfaces.EventMessageDeleted, (*events)[0].Kind)
	assert.Equal(t, "m1", (*events)[0].Message.ID)
	assert.Equal(t, 0, m.RecordCount("c1"))

	// Deleting an unknown id is silent.
	require.NoError(t, m.Delete(ctx, "m1"))
	assert.Len(t, *events, 1)
}

func TestSendTyping_FansOutWithExpiry(t *testing.T) {
	m := NewMemory()
	events, cancel := collectEvents(t, m, "c1")
	defer cancel()

	require.NoError(t, m.SendTyping(context.Background(), "c1", "bob", "Bob", true))

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, interfaces.EventTyping, ev.Kind)
	require.NotNil(t, ev.Typing)
	assert.Equal(t, "bob", ev.Typing.UserID)
	assert.True(t, ev.Typing.Typing)
	assert.True(t, ev.Typing.ExpiresAt.After(time.Now()))
}

func TestRedeliver_ReplaysCurrentState(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, newMsg("m1")))
	require.NoError(t, m.Create(ctx, newMsg("m2")))

	events, cancel := collectEvents(t, m, "c1")
	defer cancel()

	m.Redeliver("c1")

	require.Len(t, *events, 2)
	assert.Equal(t, "m1", (*events)[0].Message.ID)
	assert.Equal(t, "m2", (*events)[1].Message.ID)
	for _, ev := range *events {
		assert.Equal(t, interfaces.EventMessageUpdated, ev.Kind)
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	m := NewMemory()
	events, cancel := collectEvents(t, m, "c1")

	require.NoError(t, m.Create(context.Background(), newMsg("m1")))
	require.Len(t, *events, 1)

	cancel()
	require.NoError(t, m.Create(context.Background(), newMsg("m2")))
	assert.Len(t, *events, 1)
}

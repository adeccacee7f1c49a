package receipt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakero0t/messageAI-sub004/message"
)

func directConversation() *message.Conversation {
	return &message.Conversation{
		ID:             "c1",
		ParticipantIDs: []string{"alice", "bob"},
	}
}

func groupConversation() *message.Conversation {
	return &message.Conversation{
		ID:             "g1",
		ParticipantIDs: []string{"alice", "bob", "carol", "dave"},
		IsGroup:        true,
	}
}

func ownMessage(conv *message.Conversation) *message.Message {
	return message.New("m1", conv.ID, "alice", "hello", message.StatusSent, time.Now())
}

func TestDirect_LifecycleText(t *testing.T) {
	conv := directConversation()
	msg := ownMessage(conv)

	// Before any event there is no receipt text.
	r := ForMessage(conv, msg)
	assert.Equal(t, StatusNotDelivered, r.Status)
	assert.Empty(t, r.Text)

	MarkDelivered(msg, "bob", time.Now())
	r = ForMessage(conv, msg)
	assert.Equal(t, StatusDelivered, r.Status)
	assert.Equal(t, "Delivered", r.Text)

	MarkRead(msg, "bob", time.Now())
	r = ForMessage(conv, msg)
	assert.Equal(t, StatusRead, r.Status)
	assert.True(t, strings.HasPrefix(r.Text, "Read at "), "got %q", r.Text)
}

func TestGroup_LifecycleText(t *testing.T) {
	conv := groupConversation()
	msg := ownMessage(conv)
	now := time.Now()

	// Partial delivery reports nothing.
	MarkDelivered(msg, "bob", now)
	MarkDelivered(msg, "carol", now)
	r := ForMessage(conv, msg)
	assert.Equal(t, StatusNotDelivered, r.Status)
	assert.Empty(t, r.Text)

	MarkDelivered(msg, "dave", now)
	r = ForMessage(conv, msg)
	assert.Equal(t, StatusDelivered, r.Status)
	assert.Equal(t, "Delivered", r.Text)

	MarkRead(msg, "bob", now)
	r = ForMessage(conv, msg)
	assert.Equal(t, StatusReadBySome, r.Status)
	assert.Equal(t, "Read by some users", r.Text)

	MarkRead(msg, "carol", now)
	MarkRead(msg, "dave", now)
	r = ForMessage(conv, msg)
	assert.Equal(t, StatusReadByAll, r.Status)
	assert.Equal(t, "Read by all users", r.Text)
}

func TestGroup_ReadByAllRequiresFullDelivery(t *testing.T) {
	conv := groupConversation()
	msg := ownMessage(conv)
	now := time.Now()

	// Reads without full delivery coverage must never report readByAll.
	MarkRead(msg, "bob", now)
	MarkRead(msg, "carol", now)
	MarkRead(msg, "dave", now)

	// MarkRead implies delivery per reader, so full reads imply full
	// delivery. Roll back to a sparse artificial state to verify the
	// precondition directly.
	sparse := ownMessage(conv)
	sparse.ReadBy["bob"] = struct{}{}
	sparse.ReadBy["carol"] = struct{}{}
	sparse.ReadBy["dave"] = struct{}{}
	sparse.DeliveredTo["bob"] = struct{}{}

	r := ForMessage(conv, sparse)
	assert.Equal(t, StatusNotDelivered, r.Status, "readByAll must not be reported before delivery covers all recipients")
}

func TestMark_Idempotence(t *testing.T) {
	conv := directConversation()
	msg := ownMessage(conv)
	now := time.Now()

	require.True(t, MarkDelivered(msg, "bob", now))
	require.False(t, MarkDelivered(msg, "bob", now.Add(time.Minute)))
	require.True(t, MarkRead(msg, "bob", now))
	require.False(t, MarkRead(msg, "bob", now.Add(time.Minute)))

	assert.Len(t, msg.DeliveredTo, 1)
	assert.Len(t, msg.ReadBy, 1)
}

func TestMarkRead_IgnoresSender(t *testing.T) {
	conv := directConversation()
	msg := ownMessage(conv)

	assert.False(t, MarkRead(msg, "alice", time.Now()))
	assert.Empty(t, msg.ReadBy)
}

func TestMarkRead_ImpliesDelivery(t *testing.T) {
	conv := directConversation()
	msg := ownMessage(conv)

	MarkRead(msg, "bob", time.Now())
	_, delivered := msg.DeliveredTo["bob"]
	assert.True(t, delivered, "a read receipt implies the message was delivered")
}

func TestLatestOwn_ScopedToNewestOwnMessage(t *testing.T) {
	conv := directConversation()
	base := time.Now()

	older := message.New("m1", conv.ID, "alice", "first", message.StatusSent, base)
	theirs := message.New("m2", conv.ID, "bob", "reply", message.StatusSent, base.Add(time.Second))
	newest := message.New("m3", conv.ID, "alice", "second", message.StatusSent, base.Add(2*time.Second))
	list := []*message.Message{older, theirs, newest}

	got := LatestOwn(list, "alice")
	require.NotNil(t, got)
	assert.Equal(t, "m3", got.ID)

	// Receipts on the older own message do not surface.
	MarkRead(older, "bob", time.Now())
	r := ForLatestOwn(conv, list, "alice")
	assert.Equal(t, "m3", r.MessageID)
	assert.Equal(t, StatusNotDelivered, r.Status)
}

func TestForLatestOwn_NoOwnMessages(t *testing.T) {
	conv := directConversation()
	theirs := message.New("m1", conv.ID, "bob", "hi", message.StatusSent, time.Now())

	r := ForLatestOwn(conv, []*message.Message{theirs}, "alice")
	assert.Equal(t, StatusNone, r.Status)
	assert.Empty(t, r.Text)
}

package message

import (
	"testing"
	"time"
)

func TestAddDeliveredTo_StampsOnce(t *testing.T) {
	msg := New("m1", "c1", "alice", "hi", StatusSent, time.Now())

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	if !msg.AddDeliveredTo("bob", first) {
		t.Fatal("Expected first addition to change the set")
	}
	if msg.DeliveredAt == nil || !msg.DeliveredAt.Equal(first) {
		t.Fatalf("Expected DeliveredAt %v, got %v", first, msg.DeliveredAt)
	}

	if !msg.AddDeliveredTo("carol", second) {
		t.Fatal("Expected second user to change the set")
	}
	if !msg.DeliveredAt.Equal(first) {
		t.Errorf("DeliveredAt must be set exactly once, got %v", msg.DeliveredAt)
	}
}

func TestAddDeliveredTo_Idempotent(t *testing.T) {
	msg := New("m1", "c1", "alice", "hi", StatusSent, time.Now())

	msg.AddDeliveredTo("bob", time.Now())
	if msg.AddDeliveredTo("bob", time.Now()) {
		t.Error("Repeated addition of the same user must be a no-op")
	}
	if len(msg.DeliveredTo) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(msg.DeliveredTo))
	}
}

func TestAddReadBy_StampsOnceAndIdempotent(t *testing.T) {
	msg := New("m1", "c1", "alice", "hi", StatusDelivered, time.Now())

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !msg.AddReadBy("bob", first) {
		t.Fatal("Expected first read to change the set")
	}
	if msg.AddReadBy("bob", first.Add(time.Minute)) {
		t.Error("Repeated read must be a no-op")
	}
	if msg.ReadAt == nil || !msg.ReadAt.Equal(first) {
		t.Errorf("Expected ReadAt %v, got %v", first, msg.ReadAt)
	}
}

func TestDeliveredToAllAndReadCount(t *testing.T) {
	msg := New("m1", "c1", "alice", "hi", StatusSent, time.Now())
	recipients := []string{"bob", "carol", "dave"}

	if msg.DeliveredToAll(recipients) {
		t.Error("Empty set must not cover recipients")
	}

	now := time.Now()
	msg.AddDeliveredTo("bob", now)
	msg.AddDeliveredTo("carol", now)
	if msg.DeliveredToAll(recipients) {
		t.Error("Partial coverage must not count as all")
	}
	msg.AddDeliveredTo("dave", now)
	if !msg.DeliveredToAll(recipients) {
		t.Error("Full coverage expected")
	}

	msg.AddReadBy("bob", now)
	msg.AddReadBy("alice", now) // sender id is not a recipient
	if got := msg.ReadCount(recipients); got != 1 {
		t.Errorf("Expected read count 1, got %d", got)
	}
}

func TestClone_Independence(t *testing.T) {
	msg := New("m1", "c1", "alice", "hi", StatusSent, time.Now())
	msg.AddDeliveredTo("bob", time.Now())

	clone := msg.Clone()
	clone.AddDeliveredTo("carol", time.Now())
	clone.Text = "changed"

	if len(msg.DeliveredTo) != 1 {
		t.Errorf("Clone mutation leaked into original: %d entries", len(msg.DeliveredTo))
	}
	if msg.Text != "hi" {
		t.Errorf("Clone text mutation leaked: %q", msg.Text)
	}
}

func TestValidText(t *testing.T) {
	if ValidText("") || ValidText("   ") || ValidText("\n\t ") {
		t.Error("Whitespace-only text must be invalid")
	}
	if !ValidText("hi") || !ValidText(" x ") {
		t.Error("Non-empty text must be valid")
	}
}

func TestConversationRecipients(t *testing.T) {
	conv := &Conversation{
		ID:             "c1",
		ParticipantIDs: []string{"alice", "bob", "carol"},
		IsGroup:        true,
	}

	got := conv.Recipients("alice")
	if len(got) != 2 || got[0] != "bob" || got[1] != "carol" {
		t.Errorf("Unexpected recipients: %v", got)
	}
	if !conv.HasParticipant("bob") || conv.HasParticipant("mallory") {
		t.Error("Participant membership check failed")
	}
}

package message

import "testing"

func TestCanTransition_LegalPaths(t *testing.T) {
	legal := []struct {
		from, to Status
	}{
		{StatusPending, StatusSent},
		{StatusPending, StatusQueued},
		{StatusPending, StatusDelivered},
		{StatusSent, StatusDelivered},
		{StatusSent, StatusQueued},
		{StatusQueued, StatusSent},
		{StatusQueued, StatusFailed},
		{StatusQueued, StatusPending},
		{StatusDelivered, StatusRead},
		{StatusFailed, StatusPending},
	}

	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be legal", tc.from, tc.to)
		}
	}
}

func TestCanTransition_IllegalPaths(t *testing.T) {
	illegal := []struct {
		from, to Status
	}{
		{StatusRead, StatusQueued},
		{StatusRead, StatusDelivered},
		{StatusDelivered, StatusQueued},
		{StatusDelivered, StatusPending},
		{StatusFailed, StatusSent},
		{StatusPending, StatusRead},
		{StatusSent, StatusRead},
		{StatusPending, StatusFailed},
		{StatusSent, StatusPending},
	}

	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("Expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestAdvance_IllegalTransitionIsNoOp(t *testing.T) {
	if got := Advance(StatusRead, StatusQueued); got != StatusRead {
		t.Errorf("Expected read to stay read, got %s", got)
	}
	if got := Advance(StatusDelivered, StatusPending); got != StatusDelivered {
		t.Errorf("Expected delivered to stay delivered, got %s", got)
	}
}

func TestAdvance_SelfTransitionIsNoOp(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusQueued, StatusSent, StatusDelivered, StatusRead, StatusFailed} {
		if got := Advance(s, s); got != s {
			t.Errorf("Expected %s -> %s to be a no-op", s, s)
		}
	}
}

func TestMerge_NeverRegresses(t *testing.T) {
	if got := Merge(StatusRead, StatusSent); got != StatusRead {
		t.Errorf("Expected stale sent event to keep read, got %s", got)
	}
	if got := Merge(StatusDelivered, StatusSent); got != StatusDelivered {
		t.Errorf("Expected stale sent event to keep delivered, got %s", got)
	}
	if got := Merge(StatusSent, StatusDelivered); got != StatusDelivered {
		t.Errorf("Expected progression to delivered, got %s", got)
	}
	if got := Merge(StatusQueued, StatusSent); got != StatusSent {
		t.Errorf("Expected queued to progress to sent, got %s", got)
	}
}

func TestParseStatus_RoundTrip(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusQueued, StatusSent, StatusDelivered, StatusRead, StatusFailed} {
		parsed, ok := ParseStatus(s.String())
		if !ok || parsed != s {
			t.Errorf("Round trip failed for %s: got %s, ok=%v", s, parsed, ok)
		}
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Error("Expected unknown name to fail parsing")
	}
}

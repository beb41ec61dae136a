package roster

import (
	"testing"
	"time"

	"github.com/nguyenlm11/staychat/internal/bus"
	"github.com/nguyenlm11/staychat/internal/chat"
)

const localUser = "guest-1"

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func conv(id string, lastAt time.Time) chat.Conversation {
	return chat.Conversation{
		ConversationID:   id,
		CounterpartyID:   "host-" + id,
		CounterpartyName: "Host " + id,
		LastMessage: &chat.MessageSummary{
			MessageID: "last-" + id,
			SenderID:  "host-" + id,
			Content:   "latest in " + id,
			SentAt:    lastAt,
		},
	}
}

func msgFor(convID, msgID, senderID string, at time.Time) *chat.Message {
	return &chat.Message{
		MessageID:      msgID,
		ConversationID: convID,
		SenderID:       senderID,
		Content:        "m",
		SentAt:         at,
	}
}

func order(l *List) []string {
	convs := l.Conversations()
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ConversationID
	}
	return out
}

func assertOrder(t *testing.T, l *List, want ...string) {
	t.Helper()
	got := order(l)
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestBulkLoadSortsByRecency(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{
		conv("old", now.Add(-time.Hour)),
		conv("new", now.Add(-time.Minute)),
		conv("mid", now.Add(-10*time.Minute)),
	})
	assertOrder(t, l, "new", "mid", "old")
}

// TestBulkLoadNoLastMessageSinks verifies that a conversation with no
// activity yet sorts to the bottom, as if its timestamp were the epoch.
func TestBulkLoadNoLastMessageSinks(t *testing.T) {
	l := NewList(localUser, nil)
	empty := chat.Conversation{ConversationID: "empty", CounterpartyID: "h", CounterpartyName: "H"}
	l.BulkLoad([]chat.Conversation{
		empty,
		conv("active", now.Add(-time.Hour)),
	})
	assertOrder(t, l, "active", "empty")
}

func TestNewConversationInsertsAtFront(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{conv("a", now)})

	fresh := conv("b", now.Add(time.Minute))
	l.OnNewConversation(&fresh)
	assertOrder(t, l, "b", "a")
}

// TestNoDuplicateConversations verifies that a new-conversation event
// for an id already present leaves the list length unchanged.
func TestNoDuplicateConversations(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{conv("a", now), conv("b", now.Add(-time.Hour))})

	dup := conv("a", now.Add(time.Minute))
	l.OnNewConversation(&dup)

	if got := len(l.Conversations()); got != 2 {
		t.Fatalf("list length = %d, want 2", got)
	}
	assertOrder(t, l, "a", "b")
}

// TestMoveToFrontStability verifies that promoting C in [A, B, C] yields
// [C, A, B] with A and B's relative order unchanged.
func TestMoveToFrontStability(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{
		conv("a", now),
		conv("b", now.Add(-time.Minute)),
		conv("c", now.Add(-2*time.Minute)),
	})

	l.OnMessage(msgFor("c", "m-new", "host-c", now.Add(time.Second)))
	assertOrder(t, l, "c", "a", "b")
}

func TestMessageAlreadyAtFront(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{conv("a", now), conv("b", now.Add(-time.Minute))})

	l.OnMessage(msgFor("a", "m-new", "host-a", now.Add(time.Second)))
	assertOrder(t, l, "a", "b")

	convs := l.Conversations()
	if convs[0].LastMessage.MessageID != "m-new" {
		t.Errorf("summary id = %s, want m-new", convs[0].LastMessage.MessageID)
	}
}

// TestOwnMessageSummaryIsRead verifies that a message sent by the local
// user shows as already read on the list view.
func TestOwnMessageSummaryIsRead(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{conv("a", now)})

	l.OnMessage(msgFor("a", "mine", localUser, now.Add(time.Second)))

	convs := l.Conversations()
	if !convs[0].LastMessage.IsRead {
		t.Error("own message summary not marked read")
	}

	l.OnMessage(msgFor("a", "theirs", "host-a", now.Add(2*time.Second)))
	convs = l.Conversations()
	if convs[0].LastMessage.IsRead {
		t.Error("inbound message summary marked read")
	}
}

// TestUnknownConversationSynthesized verifies that an inbound message
// for a conversation not in the list creates a front entry from the
// sender metadata.
func TestUnknownConversationSynthesized(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{conv("a", now)})

	l.OnMessage(msgFor("fresh", "m1", "host-9", now.Add(time.Second)))

	assertOrder(t, l, "fresh", "a")
	convs := l.Conversations()
	if convs[0].CounterpartyID != "host-9" {
		t.Errorf("counterparty = %s, want host-9", convs[0].CounterpartyID)
	}
	if convs[0].LastMessage == nil || convs[0].LastMessage.MessageID != "m1" {
		t.Errorf("summary = %+v", convs[0].LastMessage)
	}
}

// TestOwnMessageUnknownConversationSignalsReload verifies the asymmetry:
// the engine cannot synthesize counterpart metadata for its own outbound
// message and asks for a full reload instead.
func TestOwnMessageUnknownConversationSignalsReload(t *testing.T) {
	l := NewList(localUser, nil)
	var reloads int
	l.SetOnReloadNeeded(func() { reloads++ })

	l.OnMessage(msgFor("unknown", "m1", localUser, now))

	if reloads != 1 {
		t.Errorf("reload signals = %d, want 1", reloads)
	}
	if got := len(l.Conversations()); got != 0 {
		t.Errorf("list length = %d, want 0 (nothing synthesized)", got)
	}
}

func TestOnMessageRead(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{conv("a", now), conv("b", now.Add(-time.Hour))})

	l.OnMessageRead("last-a", "a")

	convs := l.Conversations()
	if !convs[0].LastMessage.IsRead {
		t.Error("matching summary not marked read")
	}
	if convs[1].LastMessage.IsRead {
		t.Error("unrelated conversation affected")
	}

	// An old message id does not touch the current summary.
	l.OnMessageRead("stale-id", "b")
	convs = l.Conversations()
	if convs[1].LastMessage.IsRead {
		t.Error("summary marked read for a non-matching message id")
	}
}

func TestUnreadCount(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{
		conv("a", now),
		conv("b", now.Add(-time.Minute)),
		{ConversationID: "empty", CounterpartyID: "h", CounterpartyName: "H"},
	})

	if got := l.UnreadCount(); got != 2 {
		t.Fatalf("unread = %d, want 2", got)
	}

	l.OnMessageRead("last-a", "a")
	if got := l.UnreadCount(); got != 1 {
		t.Fatalf("unread = %d after read, want 1", got)
	}
}

// TestRecencyScenario walks the §8-style scenario: bulk load A (10m ago)
// and B (1h ago), then a live message for B, then its read receipt.
func TestRecencyScenario(t *testing.T) {
	l := NewList(localUser, nil)
	l.BulkLoad([]chat.Conversation{
		conv("B", now.Add(-time.Hour)),
		conv("A", now.Add(-10*time.Minute)),
	})
	assertOrder(t, l, "A", "B")

	l.OnMessage(msgFor("B", "m-live", "host-B", now.Add(-time.Second)))
	assertOrder(t, l, "B", "A")

	l.OnMessageRead("m-live", "B")
	convs := l.Conversations()
	if !convs[0].LastMessage.IsRead {
		t.Error("B's summary not marked read")
	}
	if convs[1].LastMessage.IsRead {
		t.Error("A's summary affected")
	}
}

func TestHandleEventRouting(t *testing.T) {
	l := NewList(localUser, nil)

	fresh := conv("a", now)
	l.HandleEvent(bus.Event{Category: bus.NewConversation, Payload: &fresh})
	l.HandleEvent(bus.Event{Category: bus.MessageReceived, Payload: msgFor("a", "m1", "host-a", now.Add(time.Second))})
	l.HandleEvent(bus.Event{Category: bus.MessageRead, Payload: bus.ReadReceipt{MessageID: "m1", ConversationID: "a"}})

	convs := l.Conversations()
	if len(convs) != 1 || convs[0].LastMessage.MessageID != "m1" || !convs[0].LastMessage.IsRead {
		t.Errorf("conversations = %+v", convs)
	}
}

func TestOnChangeFires(t *testing.T) {
	l := NewList(localUser, nil)
	var changes int
	l.SetOnChange(func() { changes++ })

	l.BulkLoad([]chat.Conversation{conv("a", now)})
	l.OnMessage(msgFor("a", "m1", "host-a", now.Add(time.Second)))
	l.OnMessageRead("m1", "a")

	if changes != 3 {
		t.Errorf("onChange fired %d times, want 3", changes)
	}
}

package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nguyenlm11/staychat/internal/api"
	"github.com/nguyenlm11/staychat/internal/bus"
	"github.com/nguyenlm11/staychat/internal/chat"
	"github.com/nguyenlm11/staychat/internal/session"
)

type fixedCreds struct{ user chat.User }

func (c fixedCreds) User() (chat.User, error) { return c.user, nil }

func threadsFixture(t *testing.T) (*Threads, *bus.Registry) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"messageId":"m1","conversationId":"conv-1","senderId":"user-2",
			 "content":"hi","sentAt":"2025-06-01T10:00:00Z"}
		]`))
	}))
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	registry := bus.New(logger)
	creds := fixedCreds{user: chat.User{ID: "user-1", Name: "Alice"}}
	client := api.NewClient(srv.URL, nil, logger)
	mgr := session.NewManager("ws://unused", nil, registry, session.DefaultRetryPolicy(), creds, logger)
	return NewThreads(client, mgr, creds, logger), registry
}

func TestOpenLoadsHistoryAndSubscribes(t *testing.T) {
	threads, registry := threadsFixture(t)

	th, err := threads.Open(context.Background(), "conv-1", "user-2")
	if err != nil {
		t.Fatal(err)
	}
	if got := len(th.Messages()); got != 1 {
		t.Fatalf("history len = %d, want 1", got)
	}

	registry.Publish(bus.Event{
		Category:  bus.MessageReceived,
		Timestamp: time.Now(),
		Payload: &chat.Message{
			MessageID:      "m2",
			ConversationID: "conv-1",
			SenderID:       "user-2",
			Content:        "again",
			SentAt:         time.Date(2025, 6, 1, 10, 1, 0, 0, time.UTC),
		},
	})
	if got := len(th.Messages()); got != 2 {
		t.Errorf("len after live event = %d, want 2", got)
	}
}

func TestOpenTwiceReturnsSameThread(t *testing.T) {
	threads, _ := threadsFixture(t)

	a, err := threads.Open(context.Background(), "conv-1", "user-2")
	if err != nil {
		t.Fatal(err)
	}
	b, err := threads.Open(context.Background(), "conv-1", "user-2")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second Open returned a different thread")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	threads, registry := threadsFixture(t)

	th, err := threads.Open(context.Background(), "conv-1", "user-2")
	if err != nil {
		t.Fatal(err)
	}
	threads.Close("conv-1")

	registry.Publish(bus.Event{
		Category:  bus.MessageReceived,
		Timestamp: time.Now(),
		Payload: &chat.Message{
			MessageID:      "m9",
			ConversationID: "conv-1",
			SenderID:       "user-2",
			SentAt:         time.Now(),
		},
	})
	if got := len(th.Messages()); got != 1 {
		t.Errorf("len after Close = %d, want 1 (event must not be delivered)", got)
	}

	// Closing again is a no-op.
	threads.Close("conv-1")
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nguyenlm11/staychat/internal/chat"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	token := func() (string, error) { return "tok-1", nil }
	return NewClient(srv.URL, token, zap.NewNop())
}

func TestListConversations(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/users/user-1/conversations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"conversationId":"conv-1","counterpartyId":"user-2","counterpartyName":"Bob",
			 "lastMessage":{"messageId":"m1","conversationId":"conv-1","senderId":"user-2",
			  "content":"hello","sentAt":"2025-06-01T10:00:00Z","isRead":false}},
			{"conversationId":"conv-2","counterpartyId":"user-3","counterpartyName":"Carol"}
		]`))
	})

	convs, err := c.ListConversations(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("len = %d, want 2", len(convs))
	}
	if convs[0].LastMessage == nil || convs[0].LastMessage.MessageID != "m1" {
		t.Errorf("first lastMessage = %+v", convs[0].LastMessage)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !convs[0].LastMessage.SentAt.Equal(want) {
		t.Errorf("SentAt = %v, want %v", convs[0].LastMessage.SentAt, want)
	}
	if convs[1].LastMessage != nil {
		t.Errorf("conversation without activity should have nil lastMessage")
	}
}

func TestListMessages(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversations/conv-1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"messageId":"m1","conversationId":"conv-1","senderId":"user-2",
			 "receiverId":"user-1","content":"hi","attachments":["https://cdn/a.jpg"],
			 "sentAt":"2025-06-01T10:00:00Z","isRead":true}
		]`))
	})

	msgs, err := c.ListMessages(context.Background(), "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1", len(msgs))
	}
	m := msgs[0]
	if m.MessageID != "m1" || m.SenderID != "user-2" || !m.IsRead {
		t.Errorf("message = %+v", m)
	}
	if len(m.Attachments) != 1 || m.Attachments[0] != "https://cdn/a.jpg" {
		t.Errorf("attachments = %v", m.Attachments)
	}
}

func TestMarkRead(t *testing.T) {
	var called bool
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/api/conversations/conv-1/read" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.MarkRead(context.Background(), "conv-1"); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("server was not called")
	}
}

func TestSendMessageWithAttachments(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req["receiverId"] != "user-2" || req["content"] != "hello" {
			t.Errorf("request = %v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messageId":"srv-9"}`))
	})

	id, err := c.SendMessageWithAttachments(context.Background(), chat.OutboundMessage{
		ReceiverID:     "user-2",
		SenderName:     "Alice",
		SenderID:       "user-1",
		ConversationID: "conv-1",
		Content:        "hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != "srv-9" {
		t.Errorf("messageId = %q, want srv-9", id)
	}
}

func TestSendEmptyMessageIDIsError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.SendMessageWithAttachments(context.Background(), chat.OutboundMessage{ReceiverID: "user-2"})
	if err == nil || !strings.Contains(err.Error(), "empty messageId") {
		t.Errorf("err = %v, want empty messageId error", err)
	}
}

func TestErrorResponseSurfacesMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"not a participant"}`))
	})

	err := c.MarkRead(context.Background(), "conv-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "not a participant") {
		t.Errorf("err = %v", err)
	}
}

package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nguyenlm11/staychat/internal/bus"
	"github.com/nguyenlm11/staychat/internal/chat"
	"github.com/nguyenlm11/staychat/internal/hub"
	"go.uber.org/zap"
)

// Sender is the slice of the REST API the reconciler needs.
type Sender interface {
	SendMessageWithAttachments(ctx context.Context, msg chat.OutboundMessage) (messageID string, err error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Realtime is the live-session invoke surface, satisfied by the session
// manager. Invocations are best-effort alongside the REST calls.
type Realtime interface {
	Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error)
}

// Thread reconciles the message list of one open conversation: inbound
// events are deduplicated against it, optimistic sends are placed in it
// immediately and confirmed or rolled back, read receipts mutate it in
// place. The list is kept sorted by SentAt ascending.
type Thread struct {
	conversationID string
	self           chat.User
	counterpartyID string
	api            Sender
	rt             Realtime
	logger         *zap.Logger

	mu   sync.Mutex
	msgs []chat.Message
}

// NewThread creates a reconciler for one open conversation. rt and
// logger may be nil.
func NewThread(conversationID string, self chat.User, counterpartyID string, api Sender, rt Realtime, logger *zap.Logger) *Thread {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Thread{
		conversationID: conversationID,
		self:           self,
		counterpartyID: counterpartyID,
		api:            api,
		rt:             rt,
		logger:         logger,
	}
}

// BulkLoad replaces the working list with the server's message history,
// sorted by SentAt ascending. Ties keep the server-provided order.
func (t *Thread) BulkLoad(msgs []chat.Message) {
	list := make([]chat.Message, len(msgs))
	copy(list, msgs)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].SentAt.Before(list[j].SentAt)
	})

	t.mu.Lock()
	t.msgs = list
	t.mu.Unlock()
}

// Messages returns a copy of the current list.
func (t *Thread) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chat.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// OnInbound merges one inbound message. Messages for other conversations
// and duplicate ids are ignored, so at-least-once delivery never
// duplicates the list. Accepted messages are appended at the tail: the
// transport is trusted to deliver in order and an out-of-order arrival
// is kept at the end rather than inserted positionally.
func (t *Thread) OnInbound(msg *chat.Message) {
	if msg == nil || msg.ConversationID != t.conversationID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.indexOfLocked(msg.MessageID) >= 0 {
		t.logger.Debug("duplicate inbound message ignored",
			zap.String("message_id", msg.MessageID))
		return
	}
	t.msgs = append(t.msgs, *msg)
}

// Send places an optimistic message with a temporary id in the list,
// issues the outbound call, and on success replaces the temporary id in
// place with the server-issued one. On failure the optimistic message is
// removed and the error surfaced to the caller.
func (t *Thread) Send(ctx context.Context, content string, attachments []string) (chat.Message, error) {
	optimistic := chat.Message{
		MessageID:      chat.NewTempID(),
		ConversationID: t.conversationID,
		SenderID:       t.self.ID,
		ReceiverID:     t.counterpartyID,
		Content:        content,
		Attachments:    attachments,
		SentAt:         time.Now(),
		IsRead:         false,
	}

	t.mu.Lock()
	t.msgs = append(t.msgs, optimistic)
	t.mu.Unlock()

	serverID, err := t.api.SendMessageWithAttachments(ctx, chat.OutboundMessage{
		ReceiverID:     t.counterpartyID,
		SenderName:     t.self.Name,
		SenderID:       t.self.ID,
		ConversationID: t.conversationID,
		Content:        content,
		Attachments:    attachments,
	})
	if err != nil {
		t.remove(optimistic.MessageID)
		return chat.Message{}, &SendError{Cause: err}
	}

	confirmed := t.confirm(optimistic.MessageID, serverID)

	// Best effort: push the message over the live channel too, so the
	// counterpart sees it without polling. Failure here does not undo
	// the confirmed send.
	if t.rt != nil {
		if _, err := t.rt.Invoke(ctx, hub.MethodSendMessage,
			t.self.ID, t.counterpartyID, content, t.self.Name, t.conversationID, ""); err != nil {
			t.logger.Debug("realtime send notification skipped", zap.Error(err))
		}
	}

	return confirmed, nil
}

// confirm swaps the temporary id for the server id, keeping the list
// position. If the server's copy already arrived over the live channel
// the optimistic entry is dropped instead, so the id stays unique.
func (t *Thread) confirm(tempID, serverID string) chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOfLocked(tempID)
	if idx < 0 {
		// Rolled back or already reconciled.
		return chat.Message{MessageID: serverID}
	}
	if existing := t.indexOfLocked(serverID); existing >= 0 {
		t.msgs = append(t.msgs[:idx], t.msgs[idx+1:]...)
		return t.msgs[t.indexOfLocked(serverID)]
	}
	t.msgs[idx].MessageID = serverID
	return t.msgs[idx]
}

func (t *Thread) remove(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx := t.indexOfLocked(messageID); idx >= 0 {
		t.msgs = append(t.msgs[:idx], t.msgs[idx+1:]...)
	}
}

// MarkRead acknowledges the conversation as read through both channels.
// Each channel is attempted regardless of the other's outcome; the local
// read flags are set as soon as either acknowledgement lands. Both
// failing surfaces the joined error.
func (t *Thread) MarkRead(ctx context.Context) error {
	restErr := t.api.MarkRead(ctx, t.conversationID)
	if restErr != nil {
		t.logger.Warn("mark read over REST failed", zap.Error(restErr))
	}

	var rtErr error
	if t.rt != nil {
		_, rtErr = t.rt.Invoke(ctx, hub.MethodMarkAllRead, t.conversationID, t.self.ID)
		if rtErr != nil {
			t.logger.Debug("mark read over realtime skipped", zap.Error(rtErr))
		}
	} else {
		rtErr = errors.New("no realtime channel")
	}

	if restErr != nil && rtErr != nil {
		return errors.Join(restErr, rtErr)
	}

	t.mu.Lock()
	for i := range t.msgs {
		t.msgs[i].IsRead = true
	}
	t.mu.Unlock()
	return nil
}

// HandleEvent consumes session events for this conversation. Meant to be
// registered via the session manager's Subscribe.
func (t *Thread) HandleEvent(evt bus.Event) {
	switch evt.Category {
	case bus.MessageReceived:
		msg, ok := evt.Payload.(*chat.Message)
		if !ok {
			return
		}
		t.OnInbound(msg)
	case bus.MessageRead:
		rec, ok := evt.Payload.(bus.ReadReceipt)
		if !ok || rec.ConversationID != t.conversationID {
			return
		}
		t.mu.Lock()
		if idx := t.indexOfLocked(rec.MessageID); idx >= 0 {
			t.msgs[idx].IsRead = true
		}
		t.mu.Unlock()
	}
}

// indexOfLocked returns the position of messageID, or -1. Caller holds t.mu.
func (t *Thread) indexOfLocked(messageID string) int {
	for i := range t.msgs {
		if t.msgs[i].MessageID == messageID {
			return i
		}
	}
	return -1
}

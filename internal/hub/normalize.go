package hub

import (
	"fmt"
	"time"

	"github.com/nguyenlm11/staychat/internal/chat"
)

// NormalizeMessage converts a raw inbound message payload into the
// canonical Message shape. Payloads arrive with variable shapes: string
// or numeric timestamps, absent optional fields. A payload without a
// message id cannot be deduplicated downstream and is rejected; a missing
// or malformed timestamp is defaulted to now.
func NormalizeMessage(payload map[string]any, now time.Time) (*chat.Message, error) {
	id := stringField(payload, "messageId")
	if id == "" {
		return nil, fmt.Errorf("inbound message payload has no messageId")
	}

	msg := &chat.Message{
		MessageID:      id,
		ConversationID: stringField(payload, "conversationId"),
		SenderID:       stringField(payload, "senderId"),
		ReceiverID:     stringField(payload, "receiverId"),
		Content:        stringField(payload, "content"),
		SentAt:         timeField(payload, "sentAt", now),
		IsRead:         boolField(payload, "isRead"),
	}
	if raw, ok := payload["attachments"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				msg.Attachments = append(msg.Attachments, s)
			}
		}
	}
	return msg, nil
}

// NormalizeConversation converts a raw new-conversation payload into a
// Conversation. A payload without a conversation id is rejected.
func NormalizeConversation(payload map[string]any, now time.Time) (*chat.Conversation, error) {
	id := stringField(payload, "conversationId")
	if id == "" {
		return nil, fmt.Errorf("inbound conversation payload has no conversationId")
	}
	conv := &chat.Conversation{
		ConversationID:   id,
		CounterpartyID:   stringField(payload, "counterpartyId"),
		CounterpartyName: stringField(payload, "counterpartyName"),
	}
	if raw, ok := payload["lastMessage"].(map[string]any); ok {
		if msg, err := NormalizeMessage(raw, now); err == nil {
			summary := msg.Summary()
			conv.LastMessage = &summary
		}
	}
	return conv, nil
}

// NormalizeReadReceipt extracts the ids from a message-read payload.
func NormalizeReadReceipt(payload map[string]any) (messageID, conversationID string, err error) {
	messageID = stringField(payload, "messageId")
	conversationID = stringField(payload, "conversationId")
	if messageID == "" {
		return "", "", fmt.Errorf("read receipt payload has no messageId")
	}
	return messageID, conversationID, nil
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func boolField(payload map[string]any, key string) bool {
	b, _ := payload[key].(bool)
	return b
}

// timeField accepts RFC 3339 strings and unix-millisecond numbers, the two
// shapes the backend is known to emit. Anything else falls back to now.
func timeField(payload map[string]any, key string, now time.Time) time.Time {
	switch v := payload[key].(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	case float64:
		if v > 0 {
			return time.UnixMilli(int64(v))
		}
	}
	return now
}

package bus

import "time"

// Category names one of the session event streams a subscriber can join.
type Category string

const (
	// MessageReceived events carry a *chat.Message payload.
	MessageReceived Category = "message_received"
	// StatusChanged events carry a bool payload: true while connected.
	StatusChanged Category = "status_changed"
	// NewConversation events carry a *chat.Conversation payload.
	NewConversation Category = "new_conversation"
	// MessageRead events carry a ReadReceipt payload.
	MessageRead Category = "message_read"
)

// Event is a single fanned-out session event.
type Event struct {
	Category  Category
	Timestamp time.Time
	Payload   any
}

// ReadReceipt is the payload of MessageRead events.
type ReadReceipt struct {
	MessageID      string
	ConversationID string
}

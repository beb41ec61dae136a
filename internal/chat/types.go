package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User identifies the locally signed-in account.
type User struct {
	ID   string
	Name string
}

// Message is the canonical message shape used across the client.
// MessageID may be a client-generated temporary id until the server
// confirms the send, at which point it is replaced in place.
type Message struct {
	MessageID      string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	Attachments    []string
	SentAt         time.Time
	IsRead         bool
}

// MessageSummary is the last-message view carried by a conversation entry.
type MessageSummary struct {
	MessageID string
	SenderID  string
	Content   string
	SentAt    time.Time
	IsRead    bool
}

// Summary derives the conversation-list summary for this message.
func (m *Message) Summary() MessageSummary {
	return MessageSummary{
		MessageID: m.MessageID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		SentAt:    m.SentAt,
		IsRead:    m.IsRead,
	}
}

// Conversation is one entry in the conversation list.
// LastMessage is nil for a conversation with no activity yet.
type Conversation struct {
	ConversationID   string
	CounterpartyID   string
	CounterpartyName string
	LastMessage      *MessageSummary
}

// OutboundMessage is the shape of a send request as the backend expects
// it: addressed to the counterparty, tagged with the sending user and
// the conversation it belongs to.
type OutboundMessage struct {
	ReceiverID     string
	SenderName     string
	SenderID       string
	ConversationID string
	Content        string
	Attachments    []string
}

const tempIDPrefix = "tmp-"

// NewTempID generates a client-side temporary message id for optimistic sends.
func NewTempID() string {
	return tempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id is a client-generated temporary id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

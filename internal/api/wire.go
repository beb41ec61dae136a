package api

import (
	"time"

	"github.com/nguyenlm11/staychat/internal/chat"
)

// Wire shapes mirror the backend's JSON field names.

type conversationDTO struct {
	ConversationID   string      `json:"conversationId"`
	CounterpartyID   string      `json:"counterpartyId"`
	CounterpartyName string      `json:"counterpartyName"`
	LastMessage      *messageDTO `json:"lastMessage"`
}

type messageDTO struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	Attachments    []string  `json:"attachments"`
	SentAt         time.Time `json:"sentAt"`
	IsRead         bool      `json:"isRead"`
}

type sendRequest struct {
	ReceiverID     string   `json:"receiverId"`
	SenderName     string   `json:"senderName"`
	SenderID       string   `json:"senderId"`
	ConversationID string   `json:"conversationId"`
	Content        string   `json:"content"`
	Attachments    []string `json:"attachments"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

func (d conversationDTO) toConversation() chat.Conversation {
	conv := chat.Conversation{
		ConversationID:   d.ConversationID,
		CounterpartyID:   d.CounterpartyID,
		CounterpartyName: d.CounterpartyName,
	}
	if d.LastMessage != nil {
		msg := d.LastMessage.toMessage()
		summary := msg.Summary()
		conv.LastMessage = &summary
	}
	return conv
}

func (d messageDTO) toMessage() chat.Message {
	return chat.Message{
		MessageID:      d.MessageID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		Content:        d.Content,
		Attachments:    d.Attachments,
		SentAt:         d.SentAt,
		IsRead:         d.IsRead,
	}
}

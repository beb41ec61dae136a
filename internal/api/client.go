// Package api talks to the backend's REST surface: bulk retrieval of
// conversations and message history, send, and read acknowledgements.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/nguyenlm11/staychat/internal/chat"
)

// TokenProvider yields the current access token for request authentication.
type TokenProvider func() (string, error)

// Client is an HTTP client for the backend REST API.
type Client struct {
	baseURL string
	token   TokenProvider
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a REST client rooted at baseURL. The token provider may
// be nil for unauthenticated endpoints.
func NewClient(baseURL string, token TokenProvider, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// ListConversations fetches every conversation the user participates in.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	var out []conversationDTO
	path := "/api/users/" + url.PathEscape(userID) + "/conversations"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	convs := make([]chat.Conversation, 0, len(out))
	for _, dto := range out {
		convs = append(convs, dto.toConversation())
	}
	return convs, nil
}

// ListMessages fetches the full message history of one conversation in
// server order.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var out []messageDTO
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]chat.Message, 0, len(out))
	for _, dto := range out {
		msgs = append(msgs, dto.toMessage())
	}
	return msgs, nil
}

// MarkRead acknowledges every message in the conversation as read.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/read"
	if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// SendMessageWithAttachments posts a new message and returns the
// server-issued message id.
func (c *Client) SendMessageWithAttachments(ctx context.Context, msg chat.OutboundMessage) (string, error) {
	req := sendRequest{
		ReceiverID:     msg.ReceiverID,
		SenderName:     msg.SenderName,
		SenderID:       msg.SenderID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Attachments:    msg.Attachments,
	}
	var out sendResponse
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &out); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("send message: server returned empty messageId")
	}
	return out.MessageID, nil
}

// do issues one JSON request. A non-nil body is marshaled as the request
// payload; a non-nil out receives the decoded response payload.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token()
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorFromResponse extracts a message from a non-2xx response body.
func (c *Client) errorFromResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("api status %d: %s", resp.StatusCode, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("api status %d: %s", resp.StatusCode, apiErr.Error)
		}
	}
	return fmt.Errorf("api status %d: %s", resp.StatusCode, string(data))
}

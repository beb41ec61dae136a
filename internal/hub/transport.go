package hub

import (
	"context"
	"encoding/json"
)

// Inbound event names pushed by the hub.
const (
	EventMessageReceived = "ReceiveMessage"
	EventNewConversation = "NewConversation"
	EventMessageRead     = "MessageRead"
)

// Remote method names invoked on the hub.
const (
	MethodRegisterUser = "RegisterUser"
	MethodSendMessage  = "SendMessage"
	MethodMarkAllRead  = "MarkAllRead"
)

// TokenProvider supplies the bearer token used to authenticate a dial.
// It is called again on every transport-level reconnect attempt.
type TokenProvider func() (string, error)

// Connection is one live bidirectional channel to the messaging hub.
// Inbound events are delivered one at a time by the connection's own
// dispatch loop; handlers must not assume concurrent delivery.
type Connection interface {
	// Invoke calls a named remote method and waits for its completion.
	Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error)
	// On registers the handler for a named inbound event, replacing any
	// previous handler for that event.
	On(event string, handler func(payload map[string]any))
	// Off removes the handler for a named inbound event.
	Off(event string)
	// OnClose is called once when the connection is gone for good because
	// the transport gave up on reconnecting. Not called for an explicit
	// Close, which the caller already knows about.
	OnClose(fn func(err error))
	// OnReconnecting is called when the transport loses the link and
	// starts its own reconnect attempts.
	OnReconnecting(fn func(err error))
	// OnReconnected is called when a transport-level reconnect succeeds.
	// The logical session resumes; no new connection object is created.
	OnReconnected(fn func())
	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer establishes hub connections.
type Dialer interface {
	Dial(ctx context.Context, url string, token TokenProvider) (Connection, error)
}

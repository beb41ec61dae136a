package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frame is the JSON envelope exchanged with the hub. Outbound invocations
// carry an id the hub echoes back on the matching completion; inbound
// events carry an event name and a single object payload.
type frame struct {
	Type    string          `json:"type"` // invocation, completion, event
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Args    []any           `json:"args,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload map[string]any  `json:"payload,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type completion struct {
	result json.RawMessage
	err    error
}

// WebsocketDialer dials hub connections over a websocket.
type WebsocketDialer struct {
	Logger    *zap.Logger
	Reconnect ReconnectConfig
}

// Dial opens a websocket to the hub URL, authenticating with the token
// provider, and starts the connection's read loop.
func (d *WebsocketDialer) Dial(ctx context.Context, url string, token TokenProvider) (Connection, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := d.Reconnect
	if rc.MaxAttempts == 0 {
		rc = DefaultReconnectConfig()
	}

	ws, err := dialWebsocket(ctx, url, token)
	if err != nil {
		return nil, err
	}

	c := &Client{
		url:      url,
		token:    token,
		logger:   logger,
		rc:       rc,
		ws:       ws,
		handlers: make(map[string]func(map[string]any)),
		pending:  make(map[string]chan completion),
	}
	go c.readLoop()
	return c, nil
}

func dialWebsocket(ctx context.Context, url string, token TokenProvider) (*websocket.Conn, error) {
	tok, err := token()
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return ws, nil
}

// Client is the websocket-backed hub connection.
type Client struct {
	url    string
	token  TokenProvider
	logger *zap.Logger
	rc     ReconnectConfig

	writeMu sync.Mutex // serializes writes to ws

	mu       sync.Mutex
	ws       *websocket.Conn
	handlers map[string]func(map[string]any)
	pending  map[string]chan completion
	closed   bool

	onClose        func(error)
	onReconnecting func(error)
	onReconnected  func()
}

// Invoke calls a named remote method and waits for the hub's completion.
func (c *Client) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	id := uuid.New().String()
	ch := make(chan completion, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("invoke %s: connection closed", method)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeJSON(frame{Type: "invocation", ID: id, Method: method, Args: args}); err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("invoke %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("invoke %s: %w", method, res.err)
		}
		return res.result, nil
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	}
}

// On registers the handler for a named inbound event.
func (c *Client) On(event string, handler func(payload map[string]any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Off removes the handler for a named inbound event.
func (c *Client) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// OnClose sets the observer called when the connection is gone for good.
// Not called for an explicit Close.
func (c *Client) OnClose(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// OnReconnecting sets the observer called when the link drops and the
// transport starts its own reconnect attempts.
func (c *Client) OnReconnecting(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnecting = fn
}

// OnReconnected sets the observer called when a transport-level reconnect
// succeeds.
func (c *Client) OnReconnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnected = fn
}

// Close tears the connection down. Idempotent; does not fire OnClose.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	c.mu.Unlock()

	c.failPending(fmt.Errorf("connection closed"))
	return ws.Close()
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()

		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			if c.isClosed() {
				return
			}
			if !c.reconnect(err) {
				c.failPending(err)
				if fn := c.closeFn(); fn != nil {
					fn(err)
				}
				return
			}
			continue
		}
		c.dispatch(f)
	}
}

// reconnect runs the transport-level reconnect loop after a dropped link.
// Returns false once the attempts are exhausted or Close was called.
func (c *Client) reconnect(cause error) bool {
	c.mu.Lock()
	fn := c.onReconnecting
	c.mu.Unlock()
	if fn != nil {
		fn(cause)
	}

	// In-flight invocations cannot complete across the drop.
	c.failPending(cause)

	for attempt := 1; attempt <= c.rc.MaxAttempts; attempt++ {
		time.Sleep(nextBackoffDelay(c.rc, attempt))
		if c.isClosed() {
			return false
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.rc.DialTimeout)
		ws, err := dialWebsocket(ctx, c.url, c.token)
		cancel()
		if err != nil {
			c.logger.Warn("hub reconnect attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		c.writeMu.Lock()
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			c.writeMu.Unlock()
			_ = ws.Close()
			return false
		}
		c.ws = ws
		reconnected := c.onReconnected
		c.mu.Unlock()
		c.writeMu.Unlock()

		c.logger.Info("hub link reestablished", zap.Int("attempt", attempt))
		if reconnected != nil {
			reconnected()
		}
		return true
	}
	c.logger.Warn("hub reconnect attempts exhausted", zap.Int("attempts", c.rc.MaxAttempts))
	return false
}

func (c *Client) dispatch(f frame) {
	switch f.Type {
	case "completion":
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.mu.Unlock()
		if !ok {
			return
		}
		if f.Error != "" {
			ch <- completion{err: fmt.Errorf("%s", f.Error)}
			return
		}
		ch <- completion{result: f.Result}
	case "event":
		c.mu.Lock()
		handler := c.handlers[f.Event]
		c.mu.Unlock()
		if handler != nil {
			handler(f.Payload)
		}
	default:
		c.logger.Warn("unknown hub frame type", zap.String("type", f.Type))
	}
}

func (c *Client) writeJSON(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	ws := c.ws
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("connection closed")
	}
	return ws.WriteJSON(f)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) closeFn() func(error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onClose
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- completion{err: err}
		delete(c.pending, id)
	}
}

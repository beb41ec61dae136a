package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nguyenlm11/staychat/internal/bus"
	"github.com/nguyenlm11/staychat/internal/chat"
	"github.com/nguyenlm11/staychat/internal/hub"
	"github.com/nguyenlm11/staychat/internal/status"
	"go.uber.org/zap"
)

const (
	dialTimeout      = 15 * time.Second
	handshakeTimeout = 10 * time.Second
)

// CredentialSource yields the locally stored identity, used for the
// post-connect registration handshake.
type CredentialSource interface {
	// User returns the signed-in user, or ErrAuthMissing when absent.
	User() (chat.User, error)
}

// Manager owns the one logical hub session of the process: connection
// lifecycle, application-level retry, and the fan-out of inbound events
// to subscribers. A fresh connect is accepted only while Disconnected or
// Failed; concurrent callers share a single in-flight attempt.
type Manager struct {
	hubURL   string
	dialer   hub.Dialer
	registry *bus.Registry
	machine  *status.Machine
	policy   RetryPolicy
	creds    CredentialSource
	logger   *zap.Logger

	mu         sync.Mutex
	conn       hub.Connection
	inflight   *attempt
	retryTimer *time.Timer
	retries    int
}

// attempt is one logical connect call. All retries scheduled for it
// resolve the same done channel exactly once.
type attempt struct {
	token    string
	done     chan struct{}
	conn     hub.Connection
	err      error
	finished bool // guarded by Manager.mu
}

// NewManager creates a session manager. logger may be nil.
func NewManager(hubURL string, dialer hub.Dialer, registry *bus.Registry, policy RetryPolicy, creds CredentialSource, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		hubURL:   hubURL,
		dialer:   dialer,
		registry: registry,
		machine:  status.NewMachine(),
		policy:   policy,
		creds:    creds,
		logger:   logger,
	}
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Subscribe registers a callback for one event category and returns its
// unsubscribe function. Never blocked by an in-flight connect.
func (m *Manager) Subscribe(cat bus.Category, fn func(bus.Event)) func() {
	return m.registry.Subscribe(cat, fn)
}

// Connect establishes the hub session. If an attempt is already in
// flight the caller joins it instead of starting a second one; if the
// session is already connected the existing connection is returned
// immediately. A failed attempt is retried per the RetryPolicy before
// the call resolves with a RetriesExhaustedError.
//
// ctx bounds only this caller's wait: a cancelled caller detaches while
// the shared attempt keeps running.
func (m *Manager) Connect(ctx context.Context, token string) (hub.Connection, error) {
	if token == "" {
		return nil, fmt.Errorf("connect: %w", ErrAuthMissing)
	}

	m.mu.Lock()
	if m.machine.Current() == status.Connected && m.conn != nil {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}
	if a := m.inflight; a != nil {
		m.mu.Unlock()
		return m.await(ctx, a)
	}

	// Tear down any stale connection object before dialing fresh.
	if m.conn != nil {
		stale := m.conn
		m.conn = nil
		go func() { _ = stale.Close() }()
	}

	a := &attempt{token: token, done: make(chan struct{})}
	m.inflight = a
	m.retries = 0
	if err := m.machine.Transition(status.Connecting); err != nil {
		m.inflight = nil
		m.mu.Unlock()
		return nil, fmt.Errorf("connect: %w", err)
	}
	m.mu.Unlock()

	go m.tryConnect(a)
	return m.await(ctx, a)
}

func (m *Manager) await(ctx context.Context, a *attempt) (hub.Connection, error) {
	select {
	case <-a.done:
		return a.conn, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// tryConnect performs one physical connection attempt for a.
func (m *Manager) tryConnect(a *attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, err := m.dialer.Dial(ctx, m.hubURL, func() (string, error) { return a.token, nil })
	cancel()
	if err != nil {
		m.scheduleRetry(a, err)
		return
	}

	m.mu.Lock()
	if m.inflight != a {
		// Disconnected while dialing; the attempt was already resolved.
		// No handshake traffic on a connection about to be discarded.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.mu.Unlock()

	// Handlers are installed exactly once per connection instance,
	// before the attempt resolves, so no early event is lost.
	m.install(conn)
	m.handshake(conn)

	m.mu.Lock()
	if m.inflight != a {
		// Disconnected during the handshake.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.inflight = nil
	m.retries = 0
	m.conn = conn
	_ = m.machine.Transition(status.Connected)
	m.finishLocked(a, conn, nil)
	m.mu.Unlock()

	m.logger.Info("session connected", zap.String("hub", m.hubURL))
	m.notifyStatus(true)
}

// scheduleRetry counts the failure and either arms the retry timer or
// resolves the original attempt with a terminal error.
func (m *Manager) scheduleRetry(a *attempt, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inflight != a {
		return
	}
	m.retries++
	if m.retries >= m.policy.MaxRetries {
		m.inflight = nil
		_ = m.machine.Transition(status.Failed)
		m.logger.Error("connect retries exhausted",
			zap.Int("attempts", m.retries), zap.Error(cause))
		m.finishLocked(a, nil, &RetriesExhaustedError{Attempts: m.retries, Last: cause})
		return
	}

	delay := m.policy.Delay(m.retries)
	m.logger.Warn("connect attempt failed, retrying",
		zap.Int("attempt", m.retries), zap.Duration("delay", delay), zap.Error(cause))
	m.retryTimer = time.AfterFunc(delay, func() { m.tryConnect(a) })
}

// finishLocked resolves a exactly once. Caller holds m.mu.
func (m *Manager) finishLocked(a *attempt, conn hub.Connection, err error) {
	if a.finished {
		return
	}
	a.finished = true
	a.conn = conn
	a.err = err
	close(a.done)
}

// handshake registers the stored identity with the hub. A failure here
// is logged and the connection stays usable.
func (m *Manager) handshake(conn hub.Connection) {
	user, err := m.creds.User()
	if err != nil {
		m.logger.Warn("skipping identity registration", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	if _, err := conn.Invoke(ctx, hub.MethodRegisterUser, user.ID); err != nil {
		m.logger.Warn("identity registration failed", zap.Error(err))
	}
}

// install wires the lifecycle observers and inbound event handlers.
func (m *Manager) install(conn hub.Connection) {
	conn.OnReconnecting(func(err error) {
		m.logger.Warn("transport reconnecting", zap.Error(err))
		_ = m.machine.Transition(status.Reconnecting)
		m.notifyStatus(false)
	})
	conn.OnReconnected(func() {
		// Resumption of the same logical session: no retry-counter or
		// handshake logic, just back to Connected.
		m.logger.Info("transport reconnected")
		_ = m.machine.Transition(status.Connected)
		m.notifyStatus(true)
	})
	conn.OnClose(func(err error) {
		m.mu.Lock()
		if m.conn != conn {
			m.mu.Unlock()
			return
		}
		m.conn = nil
		_ = m.machine.Transition(status.Disconnected)
		m.mu.Unlock()
		m.logger.Warn("transport closed", zap.Error(err))
		m.notifyStatus(false)
	})

	conn.On(hub.EventMessageReceived, m.handleInboundMessage)
	conn.On(hub.EventNewConversation, m.handleNewConversation)
	conn.On(hub.EventMessageRead, m.handleMessageRead)
}

func (m *Manager) handleInboundMessage(payload map[string]any) {
	msg, err := hub.NormalizeMessage(payload, time.Now())
	if err != nil {
		m.logger.Warn("dropping malformed inbound message", zap.Error(err))
		return
	}
	m.registry.Publish(bus.Event{
		Category:  bus.MessageReceived,
		Timestamp: time.Now(),
		Payload:   msg,
	})
}

func (m *Manager) handleNewConversation(payload map[string]any) {
	conv, err := hub.NormalizeConversation(payload, time.Now())
	if err != nil {
		m.logger.Warn("dropping malformed conversation event", zap.Error(err))
		return
	}
	m.registry.Publish(bus.Event{
		Category:  bus.NewConversation,
		Timestamp: time.Now(),
		Payload:   conv,
	})
}

func (m *Manager) handleMessageRead(payload map[string]any) {
	messageID, conversationID, err := hub.NormalizeReadReceipt(payload)
	if err != nil {
		m.logger.Warn("dropping malformed read receipt", zap.Error(err))
		return
	}
	m.registry.Publish(bus.Event{
		Category:  bus.MessageRead,
		Timestamp: time.Now(),
		Payload:   bus.ReadReceipt{MessageID: messageID, ConversationID: conversationID},
	})
}

func (m *Manager) notifyStatus(connected bool) {
	m.registry.Publish(bus.Event{
		Category:  bus.StatusChanged,
		Timestamp: time.Now(),
		Payload:   connected,
	})
}

// Invoke forwards a named remote call to the live connection. Fails with
// ErrNotConnected unless the session is Connected.
func (m *Manager) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	m.mu.Lock()
	conn := m.conn
	connected := m.machine.Current() == status.Connected
	m.mu.Unlock()

	if !connected || conn == nil {
		return nil, fmt.Errorf("invoke %s: %w", method, ErrNotConnected)
	}
	return conn.Invoke(ctx, method, args...)
}

// Disconnect tears the session down: cancels any pending retry timer,
// resolves a pending connect with ErrSessionClosed, closes the transport
// and notifies status subscribers. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if a := m.inflight; a != nil {
		m.inflight = nil
		m.finishLocked(a, nil, ErrSessionClosed)
	}
	conn := m.conn
	m.conn = nil
	if m.machine.Current() != status.Disconnected {
		_ = m.machine.Transition(status.Disconnected)
	}
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Info("session disconnected")
	m.notifyStatus(false)
}

package daemon

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nguyenlm11/staychat/internal/api"
	"github.com/nguyenlm11/staychat/internal/bus"
	"github.com/nguyenlm11/staychat/internal/reconcile"
	"github.com/nguyenlm11/staychat/internal/session"
)

// Threads owns the open conversation threads. Opening a conversation
// loads its history, subscribes the thread to live events, and hands the
// reconciler back; closing it unsubscribes. At most one thread per
// conversation is open at a time.
type Threads struct {
	client *api.Client
	mgr    *session.Manager
	creds  session.CredentialSource
	logger *zap.Logger

	mu   sync.Mutex
	open map[string]*openThread
}

type openThread struct {
	thread *reconcile.Thread
	unsubs []func()
}

// NewThreads creates the thread supervisor.
func NewThreads(client *api.Client, mgr *session.Manager, creds session.CredentialSource, logger *zap.Logger) *Threads {
	return &Threads{
		client: client,
		mgr:    mgr,
		creds:  creds,
		logger: logger,
		open:   make(map[string]*openThread),
	}
}

// Open loads the conversation's history and returns its live thread.
// Opening an already-open conversation returns the existing thread.
func (t *Threads) Open(ctx context.Context, conversationID, counterpartyID string) (*reconcile.Thread, error) {
	t.mu.Lock()
	if ot, ok := t.open[conversationID]; ok {
		t.mu.Unlock()
		return ot.thread, nil
	}
	t.mu.Unlock()

	self, err := t.creds.User()
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	history, err := t.client.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}

	th := reconcile.NewThread(conversationID, self, counterpartyID, t.client, t.mgr, t.logger)
	th.BulkLoad(history)

	t.mu.Lock()
	defer t.mu.Unlock()
	if ot, ok := t.open[conversationID]; ok {
		// Lost the race to a concurrent Open.
		return ot.thread, nil
	}
	unsubs := []func(){
		t.mgr.Subscribe(bus.MessageReceived, th.HandleEvent),
		t.mgr.Subscribe(bus.MessageRead, th.HandleEvent),
	}
	t.open[conversationID] = &openThread{thread: th, unsubs: unsubs}
	return th, nil
}

// Close unsubscribes and forgets the conversation's thread. Closing an
// unopened conversation is a no-op.
func (t *Threads) Close(conversationID string) {
	t.mu.Lock()
	ot, ok := t.open[conversationID]
	delete(t.open, conversationID)
	t.mu.Unlock()
	if !ok {
		return
	}
	for _, unsub := range ot.unsubs {
		unsub()
	}
}

// CloseAll tears down every open thread.
func (t *Threads) CloseAll() {
	t.mu.Lock()
	open := t.open
	t.open = make(map[string]*openThread)
	t.mu.Unlock()
	for _, ot := range open {
		for _, unsub := range ot.unsubs {
			unsub()
		}
	}
}

package roster

import (
	"sort"
	"sync"
	"time"

	"github.com/nguyenlm11/staychat/internal/bus"
	"github.com/nguyenlm11/staychat/internal/chat"
	"go.uber.org/zap"
)

// List maintains the conversation summary list: most-recently-active
// first, exactly one entry per conversation id. A live update promotes
// the affected conversation to the front without reordering the rest.
type List struct {
	localUserID string
	logger      *zap.Logger

	mu    sync.Mutex
	convs []chat.Conversation

	onChange       func()
	onReloadNeeded func()
}

// NewList creates an empty conversation list for the given local user.
// logger may be nil.
func NewList(localUserID string, logger *zap.Logger) *List {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &List{localUserID: localUserID, logger: logger}
}

// SetOnChange registers a callback fired after every mutation, e.g. to
// persist a snapshot.
func (l *List) SetOnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// SetOnReloadNeeded registers the callback fired when the list cannot
// represent an update on its own and needs a full server reload: a
// message sent by the local user for a conversation not in the list,
// whose counterparty display metadata the engine cannot synthesize.
func (l *List) SetOnReloadNeeded(fn func()) {
	l.mu.Lock()
	l.onReloadNeeded = fn
	l.mu.Unlock()
}

// BulkLoad replaces the whole working list, sorted by last-message time
// descending. A conversation without a last message sorts to the bottom.
func (l *List) BulkLoad(convs []chat.Conversation) {
	list := make([]chat.Conversation, len(convs))
	for i := range convs {
		list[i] = cloneConversation(convs[i])
	}
	sort.SliceStable(list, func(i, j int) bool {
		return lastActivity(list[i]).After(lastActivity(list[j]))
	})

	l.mu.Lock()
	l.convs = list
	changed := l.onChange
	l.mu.Unlock()
	notify(changed)
}

// Conversations returns a copy of the current list.
func (l *List) Conversations() []chat.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]chat.Conversation, len(l.convs))
	for i := range l.convs {
		out[i] = cloneConversation(l.convs[i])
	}
	return out
}

// OnNewConversation inserts a conversation at the front. A duplicate id
// is a no-op, protecting against a creation notification racing a bulk
// reload.
func (l *List) OnNewConversation(conv *chat.Conversation) {
	if conv == nil {
		return
	}
	l.mu.Lock()
	if l.indexOfLocked(conv.ConversationID) >= 0 {
		l.mu.Unlock()
		l.logger.Debug("duplicate new-conversation ignored",
			zap.String("conversation_id", conv.ConversationID))
		return
	}
	l.convs = append([]chat.Conversation{cloneConversation(*conv)}, l.convs...)
	changed := l.onChange
	l.mu.Unlock()
	notify(changed)
}

// OnMessage folds one message into the list: the conversation's summary
// is replaced and the entry moves to the front, keeping the relative
// order of all other entries. A message for an unknown conversation
// synthesizes an entry from the sender, unless the local user sent it,
// in which case a full reload is signalled instead.
func (l *List) OnMessage(msg *chat.Message) {
	if msg == nil || msg.ConversationID == "" {
		return
	}
	summary := msg.Summary()
	// Messages you send are already read on your own list view.
	summary.IsRead = msg.SenderID == l.localUserID

	l.mu.Lock()
	idx := l.indexOfLocked(msg.ConversationID)
	if idx < 0 {
		if msg.SenderID == l.localUserID {
			reload := l.onReloadNeeded
			l.mu.Unlock()
			l.logger.Info("own message for unknown conversation, reload needed",
				zap.String("conversation_id", msg.ConversationID))
			notify(reload)
			return
		}
		conv := chat.Conversation{
			ConversationID: msg.ConversationID,
			CounterpartyID: msg.SenderID,
			// Display name is unknown until the next bulk load; the
			// sender id stands in.
			CounterpartyName: msg.SenderID,
			LastMessage:      &summary,
		}
		l.convs = append([]chat.Conversation{conv}, l.convs...)
		changed := l.onChange
		l.mu.Unlock()
		notify(changed)
		return
	}

	conv := l.convs[idx]
	conv.LastMessage = &summary
	if idx != 0 {
		// Stable move-to-front: everything above the entry shifts down
		// one slot, nothing else is reordered.
		copy(l.convs[1:idx+1], l.convs[:idx])
	}
	l.convs[0] = conv
	changed := l.onChange
	l.mu.Unlock()
	notify(changed)
}

// OnMessageRead marks the conversation's summary read if it is the named
// message; an older message being read does not affect the summary.
func (l *List) OnMessageRead(messageID, conversationID string) {
	l.mu.Lock()
	idx := l.indexOfLocked(conversationID)
	if idx < 0 || l.convs[idx].LastMessage == nil || l.convs[idx].LastMessage.MessageID != messageID {
		l.mu.Unlock()
		return
	}
	l.convs[idx].LastMessage.IsRead = true
	changed := l.onChange
	l.mu.Unlock()
	notify(changed)
}

// UnreadCount derives the unread badge: conversations whose last message
// is still unread.
func (l *List) UnreadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for i := range l.convs {
		if lm := l.convs[i].LastMessage; lm != nil && !lm.IsRead {
			count++
		}
	}
	return count
}

// HandleEvent consumes session events. Meant to be registered via the
// session manager's Subscribe.
func (l *List) HandleEvent(evt bus.Event) {
	switch evt.Category {
	case bus.MessageReceived:
		if msg, ok := evt.Payload.(*chat.Message); ok {
			l.OnMessage(msg)
		}
	case bus.NewConversation:
		if conv, ok := evt.Payload.(*chat.Conversation); ok {
			l.OnNewConversation(conv)
		}
	case bus.MessageRead:
		if rec, ok := evt.Payload.(bus.ReadReceipt); ok {
			l.OnMessageRead(rec.MessageID, rec.ConversationID)
		}
	}
}

func (l *List) indexOfLocked(conversationID string) int {
	for i := range l.convs {
		if l.convs[i].ConversationID == conversationID {
			return i
		}
	}
	return -1
}

func cloneConversation(c chat.Conversation) chat.Conversation {
	if c.LastMessage != nil {
		lm := *c.LastMessage
		c.LastMessage = &lm
	}
	return c
}

// lastActivity orders conversations; no last message sorts as the zero
// time, i.e. to the bottom.
func lastActivity(c chat.Conversation) time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.SentAt
}

func notify(fn func()) {
	if fn != nil {
		fn()
	}
}

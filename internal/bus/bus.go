package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Registry is an in-process fan-out surface for session events. Each
// category keeps its own ordered callback list. Publish delivers an event
// to the callbacks of its category sequentially, in registration order;
// a panicking callback is recovered and logged so the remaining callbacks
// still run.
type Registry struct {
	mu     sync.Mutex
	subs   map[Category][]entry
	next   int
	logger *zap.Logger
}

type entry struct {
	id int
	fn func(Event)
}

// New creates an empty registry. logger may be nil.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		subs:   make(map[Category][]entry),
		logger: logger,
	}
}

// Subscribe registers fn under the given category and returns an
// unsubscribe function that removes exactly this registration, even if
// later subscribers of the same category were added meanwhile.
func (r *Registry) Subscribe(cat Category, fn func(Event)) func() {
	r.mu.Lock()
	id := r.next
	r.next++
	r.subs[cat] = append(r.subs[cat], entry{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.subs[cat]
		for i, e := range list {
			if e.id == id {
				r.subs[cat] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers evt to all subscribers of evt.Category, one at a time.
// Delivery is synchronous: the next callback starts only after the
// previous one returned or panicked.
func (r *Registry) Publish(evt Event) {
	r.mu.Lock()
	list := make([]entry, len(r.subs[evt.Category]))
	copy(list, r.subs[evt.Category])
	r.mu.Unlock()

	for _, e := range list {
		r.deliver(e, evt)
	}
}

func (r *Registry) deliver(e entry, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("subscriber callback panicked",
				zap.String("category", string(evt.Category)),
				zap.Any("panic", rec))
		}
	}()
	e.fn(evt)
}

package fanout

import "sync"

// Event tables and actions mirrored from the row store.
const (
	TableMessages      = "messages"
	TableConversations = "conversations"

	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
)

// Event is a row-level change notification.
type Event struct {
	Table          string
	Action         string
	ConversationID string
	MessageID      string
}

// Bus is the in-process change feed. Writers publish after a successful
// store mutation; subscribers receive every event and filter themselves.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(Event)
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns its cancel function. Handlers
// run on the publisher's goroutine and must not block.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
}

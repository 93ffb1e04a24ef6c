package events

import (
	"sync"
	"time"
)

// Event represents a system event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data,omitempty"`
}

// Handler is a subscription callback. Handlers run synchronously on the
// emitting goroutine, so they must not block.
type Handler func(event *Event)

// Bus is an in-process publish/subscribe hub. Subscriptions are keyed by
// event type; a nil-type subscription receives everything.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Emit publishes an event to all matching subscribers
func (b *Bus) Emit(eventType EventType, module string, data EventData) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	typed := b.handlers[eventType]
	all := b.all
	b.mu.RUnlock()

	for _, h := range typed {
		h(event)
	}
	for _, h := range all {
		h(event)
	}
}

// Package events provides the lifecycle event bus. Delivery is synchronous
// on the publisher's goroutine, so events for one ticker are observed in
// the order they were applied. Cross-ticker ordering is not guaranteed.
package events

import (
	"sync"

	"ticker-orchestrator/internal/domain"
)

// Handler receives published events. Handlers must not block; slow
// consumers should hand off to their own queue.
type Handler func(domain.Event)

// Bus is an observer list, not a message broker.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers e to every subscriber in registration order.
func (b *Bus) Publish(e domain.Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

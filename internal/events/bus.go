package events

import (
	"context"
	"sync"
)

// Handler receives events for one entity. Handlers for the same
// subscription are never called concurrently.
type Handler func(Event)

// Subscription is released with Close.
type Subscription interface {
	Close() error
}

// Bus delivers transition events to per-entity subscribers.
type Bus interface {
	Subscribe(ctx context.Context, entityID string, handler Handler) (Subscription, error)
	Publish(ctx context.Context, event Event) error
}

// MemoryBus is an in-process Bus. Publish dispatches synchronously, so an
// event is fully handled before Publish returns.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers handler for entityID.
func (b *MemoryBus) Subscribe(ctx context.Context, entityID string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if b.subs[entityID] == nil {
		b.subs[entityID] = make(map[int]Handler)
	}
	b.subs[entityID][id] = handler

	return &memorySubscription{bus: b, entityID: entityID, id: id}, nil
}

// Publish delivers event to every subscriber of its entity.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range b.subs[event.EntityID] {
		h(event)
	}
	return nil
}

// Subscribers returns the number of active subscriptions for entityID.
func (b *MemoryBus) Subscribers(entityID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[entityID])
}

type memorySubscription struct {
	bus      *MemoryBus
	entityID string
	id       int
	once     sync.Once
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()

		delete(s.bus.subs[s.entityID], s.id)
		if len(s.bus.subs[s.entityID]) == 0 {
			delete(s.bus.subs, s.entityID)
		}
	})
	return nil
}

package stream

import (
	"context"
	"sync"
)

// Bus is an in-process stream used by tests and local development.
// Publish dispatches synchronously, in order, to every subscriber whose
// filter matches. Subscriber errors are not surfaced to the publisher;
// delivery and processing are decoupled, as on the real stream.
type Bus struct {
	mu          sync.Mutex
	subscribers []subscription
}

type subscription struct {
	filter  Filter
	handler Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(filter Filter, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscription{filter: filter, handler: handler})
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.Lock()
	subscribers := make([]subscription, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.Unlock()

	for _, sub := range subscribers {
		if sub.filter.Match(event) {
			_ = sub.handler(ctx, event)
		}
	}

	return nil
}

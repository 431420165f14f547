package notify

import (
	"context"
	"sync"
)

// DefaultSubscriberBuffer is the channel buffer given to each subscriber.
const DefaultSubscriberBuffer = 32

// Broadcaster fans events out to any number of subscribers. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event rather
// than stalling the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel. After Close, Subscribe
// returns an already-closed channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Notify implements Notifier by publishing to all subscribers.
func (b *Broadcaster) Notify(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later events are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

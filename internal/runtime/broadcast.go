package runtime

import "sync"

// Broadcaster fans published values out to every live subscriber. Each
// subscriber gets its own SubQueue, so a slow reader never blocks Publish or
// the other subscribers, and values arrive in publish order.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]*SubQueue[T]
	nextID int
	closed bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs: make(map[int]*SubQueue[T]),
	}
}

// Subscribe registers a new subscriber. limit bounds its backlog (0 means
// unbounded). The returned function unsubscribes and closes the channel.
func (b *Broadcaster[T]) Subscribe(limit int) (<-chan T, func()) {
	sub := NewSubQueue[T](limit)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.Close()
		return sub.Chan(), func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		if q, ok := b.subs[id]; ok {
			delete(b.subs, id)
			q.Close()
		}
		b.mu.Unlock()
	}
	return sub.Chan(), unsub
}

// Publish enqueues v for every subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.Enqueue(v)
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. It is safe to call more than once.
func (b *Broadcaster[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, q := range b.subs {
		q.Close()
		delete(b.subs, id)
	}
	return nil
}

package runtime

import (
	"sync"
)

// SubQueue buffers values for a single subscriber and hands them out in order
// on Chan. Enqueue never blocks the producer. A positive limit caps the
// backlog; once reached, the oldest buffered value is dropped.
type SubQueue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	backlog []T
	limit   int
	dropped uint64
	closed  bool

	outCh chan T
}

func NewSubQueue[T any](limit int) *SubQueue[T] {
	sq := &SubQueue[T]{
		limit: limit,
		outCh: make(chan T),
	}
	sq.cond = sync.NewCond(&sq.mu)
	go sq.pump()
	return sq
}

// Chan is the channel exposed to the subscriber. It is closed by Close.
func (sq *SubQueue[T]) Chan() <-chan T { return sq.outCh }

// Enqueue appends v to the backlog and wakes the pump.
func (sq *SubQueue[T]) Enqueue(v T) {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	if sq.closed {
		return
	}
	if sq.limit > 0 && len(sq.backlog) >= sq.limit {
		var zero T
		sq.backlog[0] = zero
		sq.backlog = sq.backlog[1:]
		sq.dropped++
	}
	sq.backlog = append(sq.backlog, v)
	sq.cond.Broadcast()
}

// Dropped reports how many values were discarded because the backlog was full.
func (sq *SubQueue[T]) Dropped() uint64 {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.dropped
}

// Close discards the backlog, stops the pump and closes the out channel.
func (sq *SubQueue[T]) Close() {
	sq.mu.Lock()
	sq.closed = true
	sq.backlog = nil
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

func (sq *SubQueue[T]) pump() {
	defer close(sq.outCh)

	// stop is closed once the queue is closed so that a pending send to a
	// subscriber that stopped reading does not hold the pump forever.
	stop := make(chan struct{})
	go func() {
		sq.mu.Lock()
		for !sq.closed {
			sq.cond.Wait()
		}
		sq.mu.Unlock()
		close(stop)
	}()

	for {
		sq.mu.Lock()
		for !sq.closed && len(sq.backlog) == 0 {
			sq.cond.Wait()
		}
		if sq.closed {
			sq.mu.Unlock()
			return
		}
		v := sq.backlog[0]
		var zero T
		sq.backlog[0] = zero
		sq.backlog = sq.backlog[1:]
		sq.mu.Unlock()

		select {
		case sq.outCh <- v:
		case <-stop:
			return
		}
	}
}

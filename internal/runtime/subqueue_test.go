package runtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for value")
	}
	var zero T
	return zero
}

func TestSubQueue_EnqueueDequeueOrder(t *testing.T) {
	sq := NewSubQueue[int](0)
	defer sq.Close()

	for i := 0; i < 5; i++ {
		sq.Enqueue(i)
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, i, receive(t, sq.Chan()))
	}
}

func TestSubQueue_EnqueueDoesNotBlockWithoutReader(t *testing.T) {
	sq := NewSubQueue[int](0)
	defer sq.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			sq.Enqueue(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked without a reader")
	}
}

func TestSubQueue_LimitDropsOldest(t *testing.T) {
	sq := NewSubQueue[int](2)
	defer sq.Close()

	// The pump holds at most one value in hand while blocked on the send,
	// so after the first value the backlog keeps only the newest two.
	sq.Enqueue(0)
	time.Sleep(20 * time.Millisecond)
	for i := 1; i <= 5; i++ {
		sq.Enqueue(i)
	}

	assert.Equal(t, 0, receive(t, sq.Chan()))
	assert.Equal(t, 4, receive(t, sq.Chan()))
	assert.Equal(t, 5, receive(t, sq.Chan()))
	assert.Equal(t, uint64(3), sq.Dropped())
}

func TestSubQueue_CloseStopsPump(t *testing.T) {
	sq := NewSubQueue[int](0)

	sq.Enqueue(1)
	assert.Equal(t, 1, receive(t, sq.Chan()))

	sq.Close()

	select {
	case _, ok := <-sq.Chan():
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestSubQueue_CloseWithPendingSend(t *testing.T) {
	sq := NewSubQueue[int](0)

	// Nobody reads: the pump is parked on the send when Close arrives.
	sq.Enqueue(1)
	sq.Enqueue(2)
	time.Sleep(20 * time.Millisecond)
	sq.Close()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sq.Chan():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for channel close")
		}
	}
}

func TestSubQueue_EnqueueAfterClose(t *testing.T) {
	sq := NewSubQueue[int](0)
	sq.Close()

	require.NotPanics(t, func() {
		sq.Enqueue(42)
	})
}

func TestSubQueue_MultipleCloses(t *testing.T) {
	sq := NewSubQueue[int](0)
	sq.Close()

	require.NotPanics(t, func() {
		sq.Close()
	})
}

func TestSubQueue_ConcurrentEnqueue(t *testing.T) {
	sq := NewSubQueue[int](0)
	defer sq.Close()

	numGoroutines := 10
	itemsPerGoroutine := 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		go func(goroutineID int) {
			defer wg.Done()
			for i := 0; i < itemsPerGoroutine; i++ {
				sq.Enqueue(goroutineID*100 + i)
			}
		}(g)
	}
	wg.Wait()

	received := make([]int, 0, numGoroutines*itemsPerGoroutine)
	for i := 0; i < numGoroutines*itemsPerGoroutine; i++ {
		received = append(received, receive(t, sq.Chan()))
	}

	assert.Len(t, received, numGoroutines*itemsPerGoroutine)
	assert.Equal(t, uint64(0), sq.Dropped())
}

func TestSubQueue_StructType(t *testing.T) {
	type Event struct {
		ID   int
		Name string
	}

	sq := NewSubQueue[Event](0)
	defer sq.Close()

	sq.Enqueue(Event{ID: 1, Name: "first"})
	sq.Enqueue(Event{ID: 2, Name: "second"})

	assert.Equal(t, Event{ID: 1, Name: "first"}, receive(t, sq.Chan()))
	assert.Equal(t, Event{ID: 2, Name: "second"}, receive(t, sq.Chan()))
}

package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var daemonWorkers = []string{"notify", "ddnsmgr", "netmon", "api"}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestSupervisor_StartsAllAndClosesInReverse(t *testing.T) {
	s := NewSupervisor()

	var started sync.WaitGroup
	var mu sync.Mutex
	var closed []string

	for _, name := range daemonWorkers {
		started.Add(1)
		s.Add(name, func(ctx context.Context) error {
			started.Done()
			<-ctx.Done()
			return nil
		}, func() error {
			mu.Lock()
			closed = append(closed, name)
			mu.Unlock()
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	startedCh := make(chan struct{})
	go func() {
		started.Wait()
		close(startedCh)
	}()
	select {
	case <-startedCh:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for workers to start")
	}

	cancel()
	require.NoError(t, s.Wait(ctx))

	assert.Equal(t, []string{"api", "netmon", "ddnsmgr", "notify"}, closed)
}

func TestSupervisor_WorkerFailureStopsEverything(t *testing.T) {
	s := NewSupervisor()
	subscriptionErr := errors.New("cannot subscribe to interface changes: permission denied")

	var managerStopped atomic.Bool
	var managerClosed atomic.Bool
	s.Add("ddnsmgr", func(ctx context.Context) error {
		<-ctx.Done()
		managerStopped.Store(true)
		return nil
	}, func() error {
		managerClosed.Store(true)
		return nil
	})
	s.Add("netmon", func(context.Context) error {
		return subscriptionErr
	}, nil)

	// The parent context is never cancelled: the failure alone ends Wait.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- s.Wait(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, subscriptionErr)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Wait to return after worker failure")
	}
	assert.True(t, managerStopped.Load())
	assert.True(t, managerClosed.Load())
}

func TestSupervisor_OnlyFirstErrorReturned(t *testing.T) {
	s := NewSupervisor()

	firstErr := errors.New("first error")
	secondErr := errors.New("second error")

	s.Add("netmon", func(context.Context) error {
		return firstErr
	}, nil)
	s.Add("api", func(ctx context.Context) error {
		<-ctx.Done() // cancelled by the first failure
		return secondErr
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	assert.Equal(t, firstErr, s.Wait(ctx))
}

func TestSupervisor_CloseErrorIgnored(t *testing.T) {
	s := NewSupervisor()

	s.Add("notify", blockUntilDone, func() error {
		return errors.New("close error")
	})
	s.Add("netmon", blockUntilDone, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	var err error
	require.NotPanics(t, func() {
		err = s.Wait(ctx)
	})
	assert.NoError(t, err)
}

func TestSupervisor_WorkerSeesCancellation(t *testing.T) {
	s := NewSupervisor()

	var sawCancellation atomic.Bool
	s.Add("ddnsmgr", func(ctx context.Context) error {
		<-ctx.Done()
		sawCancellation.Store(true)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.NoError(t, s.Wait(ctx))
	assert.True(t, sawCancellation.Load(), "Wait returns after workers exit")
}

func TestSupervisor_Empty(t *testing.T) {
	s := NewSupervisor()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	assert.NoError(t, s.Wait(ctx))
}

package netmon

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrSubscription wraps any failure to establish the OS change
	// notification subscription.
	ErrSubscription = errors.New("cannot subscribe to interface changes")
	// ErrSubscriptionClosed is returned when the OS closes an established
	// subscription.
	ErrSubscriptionClosed = errors.New("interface change subscription closed")
)

// Watcher delivers an edge-triggered, payload-free signal whenever the
// addresses or link state of an interface may have changed, using
// platform-specific event mechanisms (netlink on Linux, route sockets on
// macOS, polling elsewhere).
type Watcher interface {
	// Start begins watching for changes concerning iface and calls signal for
	// each one. It blocks until ctx is cancelled. An error is returned when
	// the subscription cannot be established or is lost.
	Start(ctx context.Context, iface string, signal func()) error
}

// PollWatcher signals on a fixed interval. It stands in for platforms without
// a native change notification mechanism.
type PollWatcher struct {
	interval time.Duration
}

func NewPollWatcher(interval time.Duration) *PollWatcher {
	return &PollWatcher{interval: interval}
}

func (w *PollWatcher) Start(ctx context.Context, iface string, signal func()) error {
	log.WithFields(log.Fields{
		"interface": iface,
		"interval":  w.interval,
	}).Debug("Polling interface for changes")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			signal()
		}
	}
}

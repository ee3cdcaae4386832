package netmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/internal/runtime"
)

const (
	DefaultRecheckDelay = 500 * time.Millisecond
	DefaultRecheckTries = 20
)

type Settings struct {
	Interface string
	Family    ipaddr.Family
	// RecheckDelay and RecheckTries bound the polling armed when only a
	// link-local address is present.
	RecheckDelay time.Duration
	RecheckTries int
}

// Detector tracks the address of one interface and publishes classified
// ChangeEvents. Every trigger (start, OS signal, recheck timer) is processed
// under one mutex, so classification is strictly serialized.
type Detector struct {
	iface        string
	family       ipaddr.Family
	recheckDelay time.Duration
	recheckTries int

	source  Source
	watcher Watcher
	clock   runtime.Clock
	events  *runtime.Broadcaster[ChangeEvent]

	mu           sync.Mutex
	current      ipaddr.Set
	started      bool
	closed       bool
	recheck      runtime.Timer
	recheckGen   uint64
	recheckCount int
}

func NewDetector(settings Settings, source Source, watcher Watcher, clock runtime.Clock) *Detector {
	if settings.RecheckDelay <= 0 {
		settings.RecheckDelay = DefaultRecheckDelay
	}
	if settings.RecheckTries <= 0 {
		settings.RecheckTries = DefaultRecheckTries
	}
	if clock == nil {
		clock = runtime.SystemClock{}
	}
	return &Detector{
		iface:        settings.Interface,
		family:       settings.Family,
		recheckDelay: settings.RecheckDelay,
		recheckTries: settings.RecheckTries,
		source:       source,
		watcher:      watcher,
		clock:        clock,
		events:       runtime.NewBroadcaster[ChangeEvent](),
	}
}

// Subscribe returns a channel of change events. Subscribe before Start to
// receive the Initial event.
func (d *Detector) Subscribe() (<-chan ChangeEvent, func()) {
	return d.events.Subscribe(0)
}

// Start emits the Initial event and then blocks, re-evaluating the interface
// on every change signal, until ctx is cancelled. A subscription failure is
// returned wrapped in ErrSubscription.
func (d *Detector) Start(ctx context.Context) error {
	log.WithFields(log.Fields{
		"interface": d.iface,
		"family":    d.family,
	}).Info("Starting interface monitoring")

	// Only the very first snapshot may use a link-local address.
	set, _ := d.source.Snapshot(d.iface, d.family, true)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.current = set
	d.started = true
	d.publishLocked(Initial)
	d.mu.Unlock()

	err := d.watcher.Start(ctx, d.iface, d.Detect)

	d.mu.Lock()
	d.stopRecheckLocked()
	d.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscription, err)
	}
	log.WithField("interface", d.iface).Info("Stopping interface monitoring")
	return nil
}

// Detect takes a fresh snapshot and publishes the resulting transition, if
// any. It is the change signal handed to the Watcher.
func (d *Detector) Detect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.started {
		return
	}
	d.detectLocked()
}

// Current returns a copy of the last observed address set.
func (d *Detector) Current() ipaddr.Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.Clone()
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.stopRecheckLocked()
	return d.events.Close()
}

func (d *Detector) detectLocked() {
	set, linkLocal := d.source.Snapshot(d.iface, d.family, false)

	var eventType EventType
	if !set.Empty() {
		switch {
		case d.current.Empty():
			eventType = Assigned
		case set.DiffersFrom(d.current):
			eventType = Changed
		}

		if d.recheck != nil {
			log.WithField("interface", d.iface).Debug("Routable address assigned, stopping link-local recheck")
		}
		d.stopRecheckLocked()
		d.recheckCount = 0
	} else {
		switch {
		case !d.current.Empty():
			eventType = Removed
		case linkLocal.Has(d.family) && d.recheck == nil:
			// A link-local address usually precedes DHCP/SLAAC assignment,
			// and the OS does not reliably signal again once the routable
			// address arrives.
			log.WithFields(log.Fields{
				"interface": d.iface,
				"delay":     d.recheckDelay,
			}).Debug("Link-local address detected, arming recheck")
			d.armRecheckLocked()
		}
	}

	d.current = set
	if eventType == "" {
		log.WithFields(log.Fields{
			"interface": d.iface,
			"addresses": set.String(),
		}).Trace("No address change")
		return
	}
	d.publishLocked(eventType)
}

func (d *Detector) publishLocked(eventType EventType) {
	event := ChangeEvent{
		Type:      eventType,
		Interface: d.iface,
		Addresses: d.current.Clone(),
		Time:      d.clock.Now(),
	}
	log.WithFields(log.Fields{
		"interface": d.iface,
		"event":     eventType,
		"addresses": event.Addresses.String(),
	}).Debug("Interface address event")
	d.events.Publish(event)
}

func (d *Detector) armRecheckLocked() {
	d.stopRecheckLocked()
	d.recheckGen++
	gen := d.recheckGen
	d.recheck = d.clock.AfterFunc(d.recheckDelay, func() {
		d.onRecheck(gen)
	})
}

func (d *Detector) stopRecheckLocked() {
	if d.recheck != nil {
		d.recheck.Stop()
		d.recheck = nil
	}
}

func (d *Detector) onRecheck(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || gen != d.recheckGen || d.recheck == nil {
		return
	}
	d.recheck = nil

	if d.recheckCount < d.recheckTries {
		d.recheckCount++
		d.detectLocked()
		return
	}

	log.WithFields(log.Fields{
		"interface": d.iface,
		"tries":     d.recheckTries,
	}).Debug("No routable address after link-local recheck, giving up")
	d.recheckCount = 0
}

// Package ddnsmgr ties the interface detector to the registration
// schedulers: it turns address events into registration requests, reports
// outcomes through logs and notifications, and keeps the status served by
// the API.
package ddnsmgr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/netip"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/internal/netmon"
	"github.com/dmdmdm-nz/ddnsd/internal/notify"
	"github.com/dmdmdm-nz/ddnsd/internal/registrar"
	"github.com/dmdmdm-nz/ddnsd/internal/runtime"
)

var (
	ErrMonitorOnly = errors.New("no DNS provider configured")
	ErrNotReady    = errors.New("interface state not known yet")
)

const activityLimit = 64

// Registrar is the per-family registration scheduler.
type Registrar interface {
	Register(ip netip.Addr, family ipaddr.Family)
	Subscribe() (<-chan registrar.Outcome, func())
	State() registrar.State
	Close() error
}

// Resolver looks up the address currently registered for a domain.
type Resolver interface {
	Lookup(ctx context.Context, domain string, family ipaddr.Family) (netip.Addr, error)
}

type Notifier interface {
	Notify(kind notify.Type, message string)
}

type Settings struct {
	Interface string
	Family    ipaddr.Family
	Provider  string
	Domain    string
}

type familyState struct {
	registered  netip.Addr
	registering netip.Addr
	lastOutcome *Activity
}

// Manager consumes change events and registration outcomes on a single
// goroutine. Status and Refresh are safe to call from other goroutines.
type Manager struct {
	iface      string
	family     ipaddr.Family
	provider   string
	domain     string
	registrars map[ipaddr.Family]Registrar
	resolver   Resolver
	notifier   Notifier

	eventCh    <-chan netmon.ChangeEvent
	eventUnsub func()

	refreshCh chan struct{}
	activity  *runtime.Broadcaster[Activity]

	mu        sync.Mutex
	ready     bool
	addresses ipaddr.Set
	families  map[ipaddr.Family]*familyState
	closed    bool
}

// NewManager creates a manager. An empty registrars map runs the manager in
// monitor-only mode; resolver and notifier may be nil.
func NewManager(settings Settings, registrars map[ipaddr.Family]Registrar, resolver Resolver, notifier Notifier) *Manager {
	families := make(map[ipaddr.Family]*familyState)
	for _, family := range settings.Family.Families() {
		families[family] = &familyState{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Manager{
		iface:      settings.Interface,
		family:     settings.Family,
		provider:   settings.Provider,
		domain:     settings.Domain,
		registrars: registrars,
		resolver:   resolver,
		notifier:   notifier,
		refreshCh:  make(chan struct{}, 1),
		activity:   runtime.NewBroadcaster[Activity](),
		families:   families,
	}
}

// AttachNetmon subscribes the manager to detector events.
func (m *Manager) AttachNetmon(ch <-chan netmon.ChangeEvent, unsub func()) {
	m.eventCh = ch
	m.eventUnsub = unsub
}

// Start runs the event loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	log.Info("Starting DDNS manager")
	defer log.Info("Stopping DDNS manager")

	if m.eventCh == nil {
		log.Error("AttachNetmon was not called before Start")
		<-ctx.Done()
		return nil
	}

	outcomes := m.subscribeOutcomes(ctx)
	m.seedRegistered(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-m.eventCh:
			if !ok {
				return nil
			}
			m.handleEvent(ev)
		case o := <-outcomes:
			m.handleOutcome(o)
		case <-m.refreshCh:
			m.handleRefresh()
		}
	}
}

func (m *Manager) Close() error {
	if m.eventUnsub != nil {
		m.eventUnsub()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	for family, r := range m.registrars {
		if err := r.Close(); err != nil {
			log.WithField("family", family).WithError(err).Warn("Failed to close registrar")
		}
	}
	return m.activity.Close()
}

// MonitorOnly reports whether addresses are only monitored, never registered.
func (m *Manager) MonitorOnly() bool {
	return len(m.registrars) == 0
}

// Ready reports whether the initial interface state is known.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Refresh re-submits the current addresses to the schedulers even when they
// are already registered. The minimum interval between calls still applies.
func (m *Manager) Refresh() error {
	if m.MonitorOnly() {
		return ErrMonitorOnly
	}
	if !m.Ready() {
		return ErrNotReady
	}
	select {
	case m.refreshCh <- struct{}{}:
	default:
	}
	return nil
}

// SubscribeActivity returns a feed of address events and registration
// outcomes. A slow reader loses the oldest entries.
func (m *Manager) SubscribeActivity() (<-chan Activity, func()) {
	return m.activity.Subscribe(activityLimit)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		Interface:   m.iface,
		Family:      m.family,
		Provider:    m.provider,
		Domain:      m.domain,
		MonitorOnly: len(m.registrars) == 0,
		Ready:       m.ready,
		Addresses:   m.addresses.Strings(),
	}
	if status.MonitorOnly {
		return status
	}

	for _, family := range m.family.Families() {
		r, ok := m.registrars[family]
		if !ok {
			continue
		}
		fs := m.families[family]
		state := r.State()
		rs := RegistrationStatus{
			Family:      family,
			Registered:  addrString(fs.registered),
			Registering: addrString(fs.registering),
			Pending:     addrString(state.Pending),
			InFlight:    addrString(state.InFlight),
			LastOutcome: fs.lastOutcome,
		}
		if !state.LastCall.IsZero() {
			lastCall := state.LastCall
			rs.LastCall = &lastCall
		}
		status.Registrations = append(status.Registrations, rs)
	}
	return status
}

func (m *Manager) subscribeOutcomes(ctx context.Context) <-chan registrar.Outcome {
	merged := make(chan registrar.Outcome)
	for _, r := range m.registrars {
		ch, unsub := r.Subscribe()
		go func() {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case o, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- o:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	return merged
}

// seedRegistered looks up what the domain currently resolves to, so an
// address already registered is not registered again.
func (m *Manager) seedRegistered(ctx context.Context) {
	if m.MonitorOnly() || m.resolver == nil || m.domain == "" {
		return
	}

	for _, family := range m.family.Families() {
		if _, ok := m.registrars[family]; !ok {
			continue
		}
		fields := log.Fields{"domain": m.domain, "family": family}

		ip, err := m.resolver.Lookup(ctx, m.domain, family)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.WithFields(fields).WithError(err).Error("Cannot resolve the current DNS registration")
		case !ip.IsValid():
			log.WithFields(fields).Warnf("%s is not registered to any IP!", m.domain)
		default:
			log.WithFields(fields).Infof("%s is registered to %s", m.domain, ip)
			m.mu.Lock()
			m.families[family].registered = ip
			m.mu.Unlock()
		}
	}
}

func (m *Manager) handleEvent(ev netmon.ChangeEvent) {
	fields := log.Fields{"interface": ev.Interface}

	switch ev.Type {
	case netmon.Initial:
		if ev.Addresses.Empty() {
			log.WithFields(fields).Warnf("Network interface '%s' is inactive!", ev.Interface)
		}
		for _, family := range m.family.Families() {
			if addr, ok := ev.Addresses.Get(family); ok {
				log.WithFields(fields).Infof("Current %s address: %s", family, addr)
			}
		}
	case netmon.Changed:
		for _, family := range m.family.Families() {
			if addr, ok := ev.Addresses.Get(family); ok {
				msg := fmt.Sprintf("%s address changed: %s", family, addr)
				log.WithFields(fields).Info(msg)
				m.notifier.Notify(notify.IPChanged, "IP Changed\n"+msg)
			}
		}
	case netmon.Assigned:
		log.WithFields(fields).Infof("Network interface '%s' is now active.", ev.Interface)
		for _, family := range m.family.Families() {
			if addr, ok := ev.Addresses.Get(family); ok {
				msg := fmt.Sprintf("%s address assigned: %s", family, addr)
				log.WithFields(fields).Info(msg)
				m.notifier.Notify(notify.IPAssigned, "IP Assigned\n"+msg)
			}
		}
	case netmon.Removed:
		msg := fmt.Sprintf("Network interface '%s' is now inactive!", ev.Interface)
		log.WithFields(fields).Warn(msg)
		m.notifier.Notify(notify.IPRemoved, "IP Removed\n"+msg)
	}

	m.mu.Lock()
	m.ready = true
	m.addresses = ev.Addresses.Clone()
	if ev.Type != netmon.Removed {
		m.registerLocked(ev.Addresses, false)
	}
	m.mu.Unlock()

	m.activity.Publish(eventActivity(ev))
}

func (m *Manager) handleRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.WithField("addresses", m.addresses.String()).Info("Refreshing DNS registration")
	m.registerLocked(m.addresses, true)
}

// registerLocked hands each address to its family's scheduler unless it is
// already registered or already being registered.
func (m *Manager) registerLocked(addresses ipaddr.Set, force bool) {
	for _, family := range m.family.Families() {
		addr, ok := addresses.Get(family)
		if !ok {
			continue
		}
		r, ok := m.registrars[family]
		if !ok {
			continue
		}
		fs := m.families[family]

		needed := (!fs.registering.IsValid() && fs.registered != addr) ||
			(fs.registering.IsValid() && fs.registering != addr)
		if !needed && !force {
			log.WithFields(log.Fields{
				"family": family,
				"ip":     addr,
			}).Debug("Address already registered or being registered, skipping")
			continue
		}

		fs.registering = addr
		r.Register(addr, family)
	}
}

func (m *Manager) handleOutcome(o registrar.Outcome) {
	activity := outcomeActivity(o)
	fields := log.Fields{
		"family": o.Family,
		"ip":     o.IP,
		"domain": m.domain,
	}

	m.mu.Lock()
	fs, ok := m.families[o.Family]
	if ok {
		switch o.Type {
		case registrar.Registered:
			fs.registered = o.IP
			if fs.registering == o.IP {
				fs.registering = netip.Addr{}
			}
		case registrar.Failed:
			if fs.registering == o.IP {
				fs.registering = netip.Addr{}
			}
		}
		fs.lastOutcome = &activity
	}
	m.mu.Unlock()

	switch o.Type {
	case registrar.Registered:
		msg := fmt.Sprintf("%s is now registered to %s", m.domain, o.IP)
		log.WithFields(fields).WithField("attempt", o.Attempt).Info(msg)
		m.notifier.Notify(notify.DNSRegistration, "DNS Registration Updated\n"+msg)
	case registrar.Scheduled:
		msg := fmt.Sprintf("Last IP registration just happened so next one is deferred. Waiting for %s before calling provider...",
			formatWait(o.Wait))
		log.WithFields(fields).WithField("wait", o.Wait).Info(msg)
		m.notifier.Notify(notify.ScheduledRegistration, "DNS Registration Scheduled\n"+msg)
	case registrar.Failed:
		msg := fmt.Sprintf("Cannot register %s to %s: %v", m.domain, o.IP, o.Err)
		log.WithFields(fields).WithField("attempt", o.Attempt).Error(msg)
		m.notifier.Notify(notify.DNSRegistration, "DNS Registration Failure\n"+msg)
	}

	m.activity.Publish(activity)
}

func formatWait(wait time.Duration) string {
	if wait < time.Second {
		return "less than 1 second"
	}
	seconds := int(math.Round(wait.Seconds()))
	if seconds == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", seconds)
}

func addrString(addr netip.Addr) string {
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}

type noopNotifier struct{}

func (noopNotifier) Notify(notify.Type, string) {}

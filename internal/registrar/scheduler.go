package registrar

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/internal/runtime"
)

const (
	DefaultMinInterval = 120 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// ErrUpdatePanic is reported in a Failed outcome when the update call panics.
var ErrUpdatePanic = errors.New("update call panicked")

// Updater performs one DNS update call. It is never called concurrently by
// the same Scheduler.
type Updater interface {
	Update(ctx context.Context, ip netip.Addr, family ipaddr.Family) error
}

type Settings struct {
	// MinInterval is the minimum time between two update calls.
	MinInterval time.Duration
	// Timeout bounds a single update call.
	Timeout time.Duration
}

type pending struct {
	ip         netip.Addr
	family     ipaddr.Family
	superseded bool
}

// Scheduler turns address-ready calls into at most one in-flight update call
// at a time, deferring calls that come sooner than MinInterval after the
// previous one. Deferred addresses are coalesced: only the latest one is
// dispatched when the deferral timer fires.
type Scheduler struct {
	minInterval time.Duration
	timeout     time.Duration
	updater     Updater
	clock       runtime.Clock
	outcomes    *runtime.Broadcaster[Outcome]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	lastCall time.Time
	pending  *pending
	timer    runtime.Timer
	timerGen uint64
	inFlight netip.Addr
	busy     bool
	closed   bool
}

func NewScheduler(settings Settings, updater Updater, clock runtime.Clock) *Scheduler {
	if settings.MinInterval < 0 {
		settings.MinInterval = 0
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	if clock == nil {
		clock = runtime.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		minInterval: settings.MinInterval,
		timeout:     settings.Timeout,
		updater:     updater,
		clock:       clock,
		outcomes:    runtime.NewBroadcaster[Outcome](),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe returns a channel of outcomes, delivered in the order they occur.
func (s *Scheduler) Subscribe() (<-chan Outcome, func()) {
	return s.outcomes.Subscribe(0)
}

// Register requests that ip be registered. The result is delivered
// asynchronously as an Outcome.
func (s *Scheduler) Register(ip netip.Addr, family ipaddr.Family) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	now := s.clock.Now()
	if !s.busy && (s.lastCall.IsZero() || !now.Before(s.lastCall.Add(s.minInterval))) {
		if s.pending != nil {
			log.WithFields(log.Fields{
				"family": family,
				"ip":     s.pending.ip,
			}).Debug("Dropping deferred registration, interval elapsed")
		}
		s.stopTimerLocked()
		s.pending = nil
		s.dispatchLocked(ip, family)
		return
	}

	next := &pending{ip: ip, family: family}
	if s.pending != nil {
		next.superseded = true
		log.WithFields(log.Fields{
			"family":   family,
			"previous": s.pending.ip,
			"ip":       ip,
		}).Debug("Superseding pending registration")
	}
	s.pending = next
	s.deferLocked()
}

// State returns a copy of the scheduler's bookkeeping.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := State{LastCall: s.lastCall, InFlight: s.inFlight}
	if s.pending != nil {
		state.Pending = s.pending.ip
	}
	return state
}

// Close cancels the deferral timer and any in-flight call. No outcome is
// reported for work cancelled by Close.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	s.pending = nil
	s.cancel()
	return s.outcomes.Close()
}

// deferLocked (re)arms the single deferral timer for the pending address.
func (s *Scheduler) deferLocked() {
	s.stopTimerLocked()

	now := s.clock.Now()
	wait := s.lastCall.Add(s.minInterval).Sub(now)
	if wait < 0 {
		wait = 0
	}

	s.publishLocked(Outcome{
		Type:   Scheduled,
		Family: s.pending.family,
		IP:     s.pending.ip,
		Wait:   wait,
		Time:   now,
	})

	s.timerGen++
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(wait, func() {
		s.onTimer(gen)
	})
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) onTimer(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.timerGen || s.timer == nil {
		return
	}
	s.timer = nil

	if s.pending == nil {
		return
	}
	if s.busy {
		// Completion re-arms the deferral for whatever is pending then.
		log.WithField("ip", s.pending.ip).Debug("Update call in flight, keeping registration pending")
		return
	}

	p := s.pending
	s.pending = nil
	if p.superseded {
		log.WithField("ip", p.ip).Debug("Deferred registration coalesced to latest address")
	}
	s.dispatchLocked(p.ip, p.family)
}

func (s *Scheduler) dispatchLocked(ip netip.Addr, family ipaddr.Family) {
	attempt := uuid.New()
	s.busy = true
	s.inFlight = ip
	s.lastCall = s.clock.Now()

	log.WithFields(log.Fields{
		"family":  family,
		"ip":      ip,
		"attempt": attempt,
	}).Debug("Dispatching DNS update")

	go func() {
		err := s.call(ip, family)
		s.complete(attempt, ip, family, err)
	}()
}

func (s *Scheduler) call(ip netip.Addr, family ipaddr.Family) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUpdatePanic, r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	return s.updater.Update(ctx, ip, family)
}

func (s *Scheduler) complete(attempt uuid.UUID, ip netip.Addr, family ipaddr.Family, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.busy = false
	s.inFlight = netip.Addr{}
	if s.closed {
		log.WithField("attempt", attempt).Debug("Discarding update result after close")
		return
	}

	now := s.clock.Now()
	s.lastCall = now

	outcome := Outcome{
		Type:    Registered,
		Family:  family,
		IP:      ip,
		Err:     err,
		Attempt: attempt,
		Time:    now,
	}
	if err != nil {
		outcome.Type = Failed
	}
	s.publishLocked(outcome)

	if s.pending != nil && s.timer == nil {
		s.deferLocked()
	}
}

func (s *Scheduler) publishLocked(outcome Outcome) {
	fields := log.Fields{
		"outcome": outcome.Type,
		"family":  outcome.Family,
		"ip":      outcome.IP,
	}
	if outcome.Type == Scheduled {
		fields["wait"] = outcome.Wait
	}
	if outcome.Attempt != uuid.Nil {
		fields["attempt"] = outcome.Attempt
	}
	log.WithFields(fields).Debug("Registration outcome")
	s.outcomes.Publish(outcome)
}

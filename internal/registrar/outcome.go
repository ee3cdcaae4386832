package registrar

import (
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
)

type OutcomeType string

const (
	Registered OutcomeType = "REGISTERED"
	Scheduled  OutcomeType = "SCHEDULED"
	Failed     OutcomeType = "FAILED"
)

// Outcome reports the result of a registration request.
//
// Registered and Failed carry the dispatched IP and the attempt ID of the
// call. Scheduled carries the pending IP and how long until the deferred
// dispatch.
type Outcome struct {
	Type    OutcomeType
	Family  ipaddr.Family
	IP      netip.Addr
	Wait    time.Duration
	Err     error
	Attempt uuid.UUID
	Time    time.Time
}

// State is a point-in-time copy of the scheduler's bookkeeping.
type State struct {
	LastCall time.Time
	Pending  netip.Addr
	InFlight netip.Addr
}

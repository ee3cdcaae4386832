package ddnsmgr

import (
	"time"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/internal/netmon"
	"github.com/dmdmdm-nz/ddnsd/internal/registrar"
)

// Status is a point-in-time view of the manager, served by the status API.
type Status struct {
	Interface     string               `json:"interface"`
	Family        ipaddr.Family        `json:"family"`
	Provider      string               `json:"provider,omitempty"`
	Domain        string               `json:"domain,omitempty"`
	MonitorOnly   bool                 `json:"monitorOnly"`
	Ready         bool                 `json:"ready"`
	Addresses     map[string]string    `json:"addresses,omitempty"`
	Registrations []RegistrationStatus `json:"registrations,omitempty"`
}

type RegistrationStatus struct {
	Family      ipaddr.Family `json:"family"`
	Registered  string        `json:"registered,omitempty"`
	Registering string        `json:"registering,omitempty"`
	Pending     string        `json:"pending,omitempty"`
	InFlight    string        `json:"inFlight,omitempty"`
	LastCall    *time.Time    `json:"lastCall,omitempty"`
	LastOutcome *Activity     `json:"lastOutcome,omitempty"`
}

type ActivityKind string

const (
	AddressActivity      ActivityKind = "address"
	RegistrationActivity ActivityKind = "registration"
)

// Activity is one entry of the activity feed: either an interface address
// event or a registration outcome.
type Activity struct {
	Kind      ActivityKind      `json:"kind"`
	Type      string            `json:"type"`
	Time      time.Time         `json:"time"`
	Interface string            `json:"interface,omitempty"`
	Addresses map[string]string `json:"addresses,omitempty"`
	Family    ipaddr.Family     `json:"family,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Wait      string            `json:"wait,omitempty"`
	Attempt   string            `json:"attempt,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func eventActivity(ev netmon.ChangeEvent) Activity {
	return Activity{
		Kind:      AddressActivity,
		Type:      string(ev.Type),
		Time:      ev.Time,
		Interface: ev.Interface,
		Addresses: ev.Addresses.Strings(),
	}
}

func outcomeActivity(o registrar.Outcome) Activity {
	a := Activity{
		Kind:   RegistrationActivity,
		Type:   string(o.Type),
		Time:   o.Time,
		Family: o.Family,
	}
	if o.IP.IsValid() {
		a.IP = o.IP.String()
	}
	if o.Type == registrar.Scheduled {
		a.Wait = o.Wait.String()
	} else {
		a.Attempt = o.Attempt.String()
	}
	if o.Err != nil {
		a.Error = o.Err.Error()
	}
	return a
}

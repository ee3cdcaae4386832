package netmon

import (
	"time"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
)

type EventType string

const (
	// Initial is emitted once, on start, with whatever the interface carries.
	Initial  EventType = "INITIAL"
	Assigned EventType = "ASSIGNED"
	Changed  EventType = "CHANGED"
	Removed  EventType = "REMOVED"
)

// ChangeEvent is a classified address transition on the monitored interface.
// Addresses is empty for Removed, and may be empty for Initial.
type ChangeEvent struct {
	Type      EventType
	Interface string
	Addresses ipaddr.Set
	Time      time.Time
}

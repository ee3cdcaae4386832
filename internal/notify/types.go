package notify

import (
	"errors"
	"fmt"
	"strings"
)

// Type classifies a notification so users can pick which ones they receive.
type Type string

const (
	IPChanged             Type = "ip changed"
	IPAssigned            Type = "ip assigned"
	IPRemoved             Type = "ip removed"
	DNSRegistration       Type = "dns registration"
	ScheduledRegistration Type = "scheduled dns registration"
)

var ErrTypeNotValid = errors.New("notification type is not valid")

func AllTypes() []Type {
	return []Type{IPChanged, IPAssigned, IPRemoved, DNSRegistration, ScheduledRegistration}
}

// ParseTypes parses notification type names, ignoring case and surrounding
// spaces.
func ParseTypes(names []string) ([]Type, error) {
	types := make([]Type, 0, len(names))
	for _, name := range names {
		candidate := Type(strings.ToLower(strings.TrimSpace(name)))
		valid := false
		for _, t := range AllTypes() {
			if t == candidate {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("%w: %q", ErrTypeNotValid, name)
		}
		types = append(types, candidate)
	}
	return types, nil
}

// Package ipaddr holds the address types shared by the interface monitor and
// the registration scheduler.
package ipaddr

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// Family selects which IP address family is tracked.
type Family string

const (
	IPv4 Family = "IPv4"
	IPv6 Family = "IPv6"
	// Any tracks both families at once.
	Any Family = "Any"
)

var ErrFamilyNotValid = errors.New("address family is not valid")

// ParseFamily parses a family name case-insensitively. "4", "6" and "all"
// are accepted as shorthands.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ipv4", "4", "ip4", "inet":
		return IPv4, nil
	case "ipv6", "6", "ip6", "inet6":
		return IPv6, nil
	case "any", "all", "ipv4/ipv6", "ip":
		return Any, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFamilyNotValid, s)
	}
}

// Families expands Any into its concrete families.
func (f Family) Families() []Family {
	if f == Any {
		return []Family{IPv4, IPv6}
	}
	return []Family{f}
}

// Matches reports whether addr belongs to f.
func (f Family) Matches(addr netip.Addr) bool {
	switch f {
	case IPv4:
		return addr.Is4()
	case IPv6:
		return addr.Is6()
	case Any:
		return addr.IsValid()
	default:
		return false
	}
}

// Of returns the concrete family of addr.
func Of(addr netip.Addr) Family {
	if addr.Is4() {
		return IPv4
	}
	return IPv6
}

func (f Family) String() string { return string(f) }

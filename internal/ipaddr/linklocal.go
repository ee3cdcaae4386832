package ipaddr

import "net/netip"

// LinkLocal records, per family, whether a link-local address was present on
// the interface even though it was left out of the Set.
type LinkLocal struct {
	IPv4 bool
	IPv6 bool
}

// Has reports whether a link-local address is present for family. For Any,
// either family counts.
func (l LinkLocal) Has(family Family) bool {
	switch family {
	case IPv4:
		return l.IPv4
	case IPv6:
		return l.IPv6
	case Any:
		return l.IPv4 || l.IPv6
	default:
		return false
	}
}

// IsLinkLocal reports whether addr is in 169.254.0.0/16 or fe80::/10.
func IsLinkLocal(addr netip.Addr) bool {
	return addr.Unmap().IsLinkLocalUnicast()
}

// Classify reduces the addresses bound to an interface to a Set for family.
// Link-local addresses are recorded in the returned LinkLocal and only make
// it into the Set when allowLinkLocal is true and no routable address of the
// same family exists. Within each kind the first address wins.
func Classify(addrs []netip.Addr, family Family, allowLinkLocal bool) (Set, LinkLocal) {
	var linkLocal LinkLocal
	routable := make(Set)
	fallback := make(Set)

	for _, addr := range addrs {
		addr = addr.Unmap()
		if !addr.IsValid() || !family.Matches(addr) {
			continue
		}
		addrFamily := Of(addr)
		if IsLinkLocal(addr) {
			if addrFamily == IPv4 {
				linkLocal.IPv4 = true
			} else {
				linkLocal.IPv6 = true
			}
			if _, ok := fallback[addrFamily]; !ok {
				fallback[addrFamily] = addr.WithZone("")
			}
			continue
		}
		if _, ok := routable[addrFamily]; !ok {
			routable[addrFamily] = addr.WithZone("")
		}
	}

	if allowLinkLocal {
		for addrFamily, addr := range fallback {
			if _, ok := routable[addrFamily]; !ok {
				routable[addrFamily] = addr
			}
		}
	}

	if routable.Empty() {
		return nil, linkLocal
	}
	return routable, linkLocal
}

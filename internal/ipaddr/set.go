package ipaddr

import (
	"net/netip"
	"sort"
	"strings"
)

// Set maps each family to the single address currently bound for it. A nil
// or empty Set means "no address".
type Set map[Family]netip.Addr

// Empty reports whether s holds no address.
func (s Set) Empty() bool {
	return len(s) == 0
}

// Get returns the address for family, if any.
func (s Set) Get(family Family) (netip.Addr, bool) {
	addr, ok := s[family]
	return addr, ok
}

// Clone returns a copy of s, or nil when s is empty.
func (s Set) Clone() Set {
	if s.Empty() {
		return nil
	}
	c := make(Set, len(s))
	for family, addr := range s {
		c[family] = addr
	}
	return c
}

// DiffersFrom reports whether any family present in s carries a different
// address in prior. Families only present in prior are not considered.
func (s Set) DiffersFrom(prior Set) bool {
	for family, addr := range s {
		if prev, ok := prior[family]; !ok || prev != addr {
			return true
		}
	}
	return false
}

// Strings returns the addresses keyed by family name.
func (s Set) Strings() map[string]string {
	if s.Empty() {
		return nil
	}
	out := make(map[string]string, len(s))
	for family, addr := range s {
		out[string(family)] = addr.String()
	}
	return out
}

func (s Set) String() string {
	if s.Empty() {
		return "none"
	}
	parts := make([]string, 0, len(s))
	for family, addr := range s {
		parts = append(parts, string(family)+"="+addr.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

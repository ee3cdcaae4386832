package ipaddr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseFamily(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		input  string
		family Family
		err    bool
	}{
		"ipv4":       {input: "IPv4", family: IPv4},
		"ipv6 lower": {input: "ipv6", family: IPv6},
		"any":        {input: "Any", family: Any},
		"shorthand":  {input: "6", family: IPv6},
		"invalid":    {input: "ipx", err: true},
		"empty":      {input: "", err: true},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			family, err := ParseFamily(testCase.input)
			if testCase.err {
				require.ErrorIs(t, err, ErrFamilyNotValid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.family, family)
		})
	}
}

func Test_IsLinkLocal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLinkLocal(netip.MustParseAddr("169.254.10.20")))
	assert.True(t, IsLinkLocal(netip.MustParseAddr("fe80::1")))
	assert.True(t, IsLinkLocal(netip.MustParseAddr("febf::1")))
	assert.True(t, IsLinkLocal(netip.MustParseAddr("::ffff:169.254.1.1")))
	assert.False(t, IsLinkLocal(netip.MustParseAddr("fec0::1")))
	assert.False(t, IsLinkLocal(netip.MustParseAddr("192.168.1.10")))
	assert.False(t, IsLinkLocal(netip.MustParseAddr("2001:db8::1")))
}

func Test_Classify(t *testing.T) {
	t.Parallel()

	v4 := netip.MustParseAddr("192.168.1.10")
	v4b := netip.MustParseAddr("10.0.0.2")
	v4LL := netip.MustParseAddr("169.254.3.4")
	v6 := netip.MustParseAddr("2001:db8::10")
	v6LL := netip.MustParseAddr("fe80::1")

	testCases := map[string]struct {
		addrs          []netip.Addr
		family         Family
		allowLinkLocal bool
		set            Set
		linkLocal      LinkLocal
	}{
		"no addresses": {
			family: IPv4,
		},
		"ipv4 only": {
			addrs:  []netip.Addr{v6, v4},
			family: IPv4,
			set:    Set{IPv4: v4},
		},
		"first routable wins": {
			addrs:  []netip.Addr{v4, v4b},
			family: IPv4,
			set:    Set{IPv4: v4},
		},
		"link-local excluded": {
			addrs:     []netip.Addr{v4LL},
			family:    IPv4,
			linkLocal: LinkLocal{IPv4: true},
		},
		"link-local allowed": {
			addrs:          []netip.Addr{v6LL},
			family:         IPv6,
			allowLinkLocal: true,
			set:            Set{IPv6: v6LL},
			linkLocal:      LinkLocal{IPv6: true},
		},
		"routable preferred over allowed link-local": {
			addrs:          []netip.Addr{v6LL, v6},
			family:         IPv6,
			allowLinkLocal: true,
			set:            Set{IPv6: v6},
			linkLocal:      LinkLocal{IPv6: true},
		},
		"any family": {
			addrs:     []netip.Addr{v4, v6LL, v6},
			family:    Any,
			set:       Set{IPv4: v4, IPv6: v6},
			linkLocal: LinkLocal{IPv6: true},
		},
		"mapped ipv4": {
			addrs:  []netip.Addr{netip.MustParseAddr("::ffff:192.168.1.10")},
			family: IPv4,
			set:    Set{IPv4: v4},
		},
		"zone stripped": {
			addrs:          []netip.Addr{netip.MustParseAddr("fe80::1%eth0")},
			family:         IPv6,
			allowLinkLocal: true,
			set:            Set{IPv6: v6LL},
			linkLocal:      LinkLocal{IPv6: true},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			set, linkLocal := Classify(testCase.addrs, testCase.family, testCase.allowLinkLocal)

			assert.Equal(t, testCase.set, set)
			assert.Equal(t, testCase.linkLocal, linkLocal)
		})
	}
}

func Test_Set_DiffersFrom(t *testing.T) {
	t.Parallel()

	v4 := netip.MustParseAddr("1.2.3.4")
	v4b := netip.MustParseAddr("1.2.3.5")
	v6 := netip.MustParseAddr("2001:db8::1")

	assert.False(t, Set{IPv4: v4}.DiffersFrom(Set{IPv4: v4}))
	assert.True(t, Set{IPv4: v4b}.DiffersFrom(Set{IPv4: v4}))
	assert.True(t, Set{IPv4: v4, IPv6: v6}.DiffersFrom(Set{IPv4: v4}))
	// A family that disappeared is not a per-family difference.
	assert.False(t, Set{IPv4: v4}.DiffersFrom(Set{IPv4: v4, IPv6: v6}))
}

func Test_Set_Clone(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Set{}.Clone())

	original := Set{IPv4: netip.MustParseAddr("1.2.3.4")}
	clone := original.Clone()
	clone[IPv4] = netip.MustParseAddr("5.6.7.8")

	assert.Equal(t, "1.2.3.4", original[IPv4].String())
}

func Test_Set_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", Set(nil).String())
	set := Set{
		IPv6: netip.MustParseAddr("2001:db8::1"),
		IPv4: netip.MustParseAddr("1.2.3.4"),
	}
	assert.Equal(t, "IPv4=1.2.3.4 IPv6=2001:db8::1", set.String())
}

func Test_LinkLocal_Has(t *testing.T) {
	t.Parallel()

	l := LinkLocal{IPv6: true}
	assert.False(t, l.Has(IPv4))
	assert.True(t, l.Has(IPv6))
	assert.True(t, l.Has(Any))
	assert.False(t, LinkLocal{}.Has(Any))
}

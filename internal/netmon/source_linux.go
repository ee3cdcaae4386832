//go:build linux

package netmon

import (
	"net"
	"net/netip"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
)

type netlinkSource struct{}

// NewSource returns the netlink-backed Source.
func NewSource() Source {
	return netlinkSource{}
}

func (netlinkSource) Snapshot(name string, family ipaddr.Family, allowLinkLocal bool) (ipaddr.Set, ipaddr.LinkLocal) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		log.WithField("interface", name).WithError(err).Debug("Interface unavailable")
		return nil, ipaddr.LinkLocal{}
	}

	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 || attrs.OperState == netlink.OperDown {
		log.WithFields(log.Fields{
			"interface": name,
			"operState": attrs.OperState.String(),
		}).Trace("Interface is down")
		return nil, ipaddr.LinkLocal{}
	}

	addrs, err := netlink.AddrList(link, netlinkFamily(family))
	if err != nil {
		log.WithField("interface", name).WithError(err).Warn("Failed to list interface addresses")
		return nil, ipaddr.LinkLocal{}
	}

	candidates := make([]netip.Addr, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IPNet == nil || addr.Flags&unix.IFA_F_DADFAILED != 0 {
			continue
		}
		ip, ok := netip.AddrFromSlice(addr.IP)
		if !ok {
			continue
		}
		// A tentative address is still under duplicate address detection.
		// Another update arrives once it becomes usable.
		if addr.Flags&unix.IFA_F_TENTATIVE != 0 && !ipaddr.IsLinkLocal(ip) {
			continue
		}
		candidates = append(candidates, ip)
	}

	return ipaddr.Classify(candidates, family, allowLinkLocal)
}

func netlinkFamily(family ipaddr.Family) int {
	switch family {
	case ipaddr.IPv4:
		return netlink.FAMILY_V4
	case ipaddr.IPv6:
		return netlink.FAMILY_V6
	default:
		return netlink.FAMILY_ALL
	}
}

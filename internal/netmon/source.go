package netmon

import (
	"net"
	"net/netip"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
)

// Source takes address snapshots of a named interface. A missing or inactive
// interface is not an error: it simply has no addresses.
type Source interface {
	Snapshot(iface string, family ipaddr.Family, allowLinkLocal bool) (ipaddr.Set, ipaddr.LinkLocal)
}

// NetSource reads interface addresses through the net package. It works on
// every platform and is the default outside Linux.
type NetSource struct{}

func (NetSource) Snapshot(name string, family ipaddr.Family, allowLinkLocal bool) (ipaddr.Set, ipaddr.LinkLocal) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		log.WithField("interface", name).WithError(err).Debug("Interface unavailable")
		return nil, ipaddr.LinkLocal{}
	}
	if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagRunning == 0 {
		log.WithField("interface", name).Trace("Interface is not running")
		return nil, ipaddr.LinkLocal{}
	}

	addrs, err := iface.Addrs()
	if err != nil {
		log.WithField("interface", name).WithError(err).Warn("Failed to list interface addresses")
		return nil, ipaddr.LinkLocal{}
	}

	candidates := make([]netip.Addr, 0, len(addrs))
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		candidates = append(candidates, ip)
	}

	return ipaddr.Classify(candidates, family, allowLinkLocal)
}

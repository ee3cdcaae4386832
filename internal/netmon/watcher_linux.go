//go:build linux

package netmon

import (
	"context"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

type linuxWatcher struct{}

// NewWatcher creates a Linux-specific watcher using netlink.
func NewWatcher() Watcher {
	return &linuxWatcher{}
}

func (w *linuxWatcher) Start(ctx context.Context, iface string, signal func()) error {
	linkCh := make(chan netlink.LinkUpdate)
	linkDone := make(chan struct{})

	addrCh := make(chan netlink.AddrUpdate)
	addrDone := make(chan struct{})

	if err := netlink.LinkSubscribe(linkCh, linkDone); err != nil {
		return fmt.Errorf("subscribing to link updates: %w", err)
	}

	if err := netlink.AddrSubscribe(addrCh, addrDone); err != nil {
		close(linkDone)
		return fmt.Errorf("subscribing to address updates: %w", err)
	}

	defer close(linkDone)
	defer close(addrDone)

	log.WithField("interface", iface).Debug("Netlink watcher subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil

		case update, ok := <-linkCh:
			if !ok {
				return fmt.Errorf("%w: link updates", ErrSubscriptionClosed)
			}
			if update.Link.Attrs().Name == iface {
				log.WithFields(log.Fields{
					"interface": iface,
					"flags":     update.Link.Attrs().Flags.String(),
				}).Trace("Received link update")
				signal()
			}

		case update, ok := <-addrCh:
			if !ok {
				return fmt.Errorf("%w: address updates", ErrSubscriptionClosed)
			}
			if w.concerns(iface, update.LinkIndex) {
				log.WithFields(log.Fields{
					"interface": iface,
					"addr":      update.LinkAddress.String(),
					"new":       update.NewAddr,
				}).Trace("Received address update")
				signal()
			}
		}
	}
}

// concerns resolves the index on every update since an interface that is
// removed and re-created gets a new one.
func (w *linuxWatcher) concerns(iface string, index int) bool {
	link, err := net.InterfaceByIndex(index)
	if err != nil {
		return false
	}
	return link.Name == iface
}

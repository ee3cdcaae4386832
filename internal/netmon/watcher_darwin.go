//go:build darwin

package netmon

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Routing message types we care about
const (
	rtmNewAddr = 0x0c // RTM_NEWADDR - address added
	rtmDelAddr = 0x0d // RTM_DELADDR - address removed
	rtmIfInfo  = 0x0e // RTM_IFINFO - interface up/down
)

type darwinWatcher struct{}

// NewWatcher creates a macOS-specific watcher using AF_ROUTE sockets.
func NewWatcher() Watcher {
	return &darwinWatcher{}
}

func (w *darwinWatcher) Start(ctx context.Context, iface string, signal func()) error {
	fd, err := unix.Socket(unix.AF_ROUTE, unix.SOCK_RAW, unix.AF_UNSPEC)
	if err != nil {
		return fmt.Errorf("opening route socket: %w", err)
	}

	// Close socket when context is cancelled
	go func() {
		<-ctx.Done()
		unix.Close(fd)
	}()

	log.WithField("interface", iface).Debug("Darwin watcher initialized")

	// Index of iface as last seen, so that a deletion can still be matched
	// once the interface no longer resolves.
	lastIndex := 0
	if link, err := net.InterfaceByName(iface); err == nil {
		lastIndex = link.Index
	}

	buf := make([]byte, 4096)

	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.WithError(err).Warn("Error reading from route socket")
				continue
			}
		}

		if n < 14 {
			continue
		}

		// Message header layout for if_msghdr / ifa_msghdr:
		// - bytes 0-1: msglen
		// - byte 2: version
		// - byte 3: type
		// - bytes 4-7: addrs
		// - bytes 8-11: flags
		// - bytes 12-13: interface index
		msgType := buf[3]

		if msgType != rtmIfInfo && msgType != rtmNewAddr && msgType != rtmDelAddr {
			continue
		}

		ifIndex := int(binary.LittleEndian.Uint16(buf[12:14]))
		if ifIndex == 0 {
			continue
		}

		link, err := net.InterfaceByIndex(ifIndex)
		switch {
		case err == nil && link.Name == iface:
			lastIndex = ifIndex
		case err != nil && ifIndex == lastIndex:
			// Interface is gone; let the detector observe the removal.
		default:
			continue
		}

		log.WithFields(log.Fields{
			"interface": iface,
			"msgType":   msgType,
			"ifIndex":   ifIndex,
		}).Trace("Received interface event")

		signal()
	}
}

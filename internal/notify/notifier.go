package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/types"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ddnsd/internal/runtime"
)

const (
	DefaultTitle = "ddnsd"
	queueLimit   = 64
)

// Sender delivers one message to every configured service, returning one
// error slot per service.
type Sender interface {
	Send(message string, params *types.Params) []error
}

type Settings struct {
	// URLs are shoutrrr service URLs.
	URLs []string
	// Types selects the notification types to deliver. Empty means all.
	Types []Type
	Title string
}

type notification struct {
	kind    Type
	message string
}

// Notifier filters notifications by type and delivers them in order on its
// own goroutine, so a slow service never holds up the caller.
type Notifier struct {
	sender       Sender
	serviceNames []string
	enabled      map[Type]bool
	queue        *runtime.SubQueue[notification]
}

func New(settings Settings) (*Notifier, error) {
	if settings.Title == "" {
		settings.Title = DefaultTitle
	}

	addresses := make([]string, len(settings.URLs))
	for i, address := range settings.URLs {
		updated, err := addDefaultTitle(address, settings.Title)
		if err != nil {
			return nil, err
		}
		addresses[i] = updated
	}

	serviceRouter, err := shoutrrr.CreateSender(addresses...)
	if err != nil {
		return nil, fmt.Errorf("creating service router: %w", err)
	}

	serviceNames := make([]string, len(addresses))
	for i, address := range addresses {
		serviceNames[i] = strings.Split(address, ":")[0]
	}
	return newNotifier(serviceRouter, serviceNames, settings.Types), nil
}

func newNotifier(sender Sender, serviceNames []string, kinds []Type) *Notifier {
	if len(kinds) == 0 {
		kinds = AllTypes()
	}
	enabled := make(map[Type]bool, len(kinds))
	for _, kind := range kinds {
		enabled[kind] = true
	}
	return &Notifier{
		sender:       sender,
		serviceNames: serviceNames,
		enabled:      enabled,
		queue:        runtime.NewSubQueue[notification](queueLimit),
	}
}

// Enabled reports whether notifications of kind are delivered.
func (n *Notifier) Enabled(kind Type) bool {
	return n.enabled[kind]
}

// Notify queues message for delivery if kind is enabled. It never blocks.
func (n *Notifier) Notify(kind Type, message string) {
	if !n.enabled[kind] {
		log.WithField("type", kind).Trace("Notification type disabled, skipping")
		return
	}
	n.queue.Enqueue(notification{kind: kind, message: message})
}

// Start delivers queued notifications until ctx is cancelled or the
// notifier is closed.
func (n *Notifier) Start(ctx context.Context) error {
	log.Info("Starting notifier")
	defer log.Info("Stopping notifier")

	ch := n.queue.Chan()
	for {
		select {
		case <-ctx.Done():
			return nil
		case item, ok := <-ch:
			if !ok {
				return nil
			}
			n.send(item)
		}
	}
}

func (n *Notifier) send(item notification) {
	errs := n.sender.Send(item.message, nil)
	for i, err := range errs {
		if err == nil {
			continue
		}
		service := "unknown"
		if i < len(n.serviceNames) {
			service = n.serviceNames[i]
		}
		log.WithError(err).WithFields(log.Fields{
			"service": service,
			"type":    item.kind,
		}).Error("Failed to send notification")
	}
}

// Close discards undelivered notifications.
func (n *Notifier) Close() error {
	if dropped := n.queue.Dropped(); dropped > 0 {
		log.WithField("dropped", dropped).Warn("Notifications dropped because the queue was full")
	}
	n.queue.Close()
	return nil
}

func addDefaultTitle(address, defaultTitle string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("parsing notification url: %w", err)
	}

	values := u.Query()
	if values.Has("title") {
		return address, nil
	}
	values.Set("title", defaultTitle)
	u.RawQuery = values.Encode()
	return u.String(), nil
}

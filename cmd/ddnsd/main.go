package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ddnsd/internal/api"
	"github.com/dmdmdm-nz/ddnsd/internal/config"
	"github.com/dmdmdm-nz/ddnsd/internal/ddnsmgr"
	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/internal/netmon"
	"github.com/dmdmdm-nz/ddnsd/internal/notify"
	"github.com/dmdmdm-nz/ddnsd/internal/provider"
	"github.com/dmdmdm-nz/ddnsd/internal/registrar"
	"github.com/dmdmdm-nz/ddnsd/internal/resolver"
	"github.com/dmdmdm-nz/ddnsd/internal/runtime"
	"github.com/dmdmdm-nz/ddnsd/pkg/cli"
	"github.com/dmdmdm-nz/ddnsd/pkg/version"
)

func main() {
	// Parse command line flags
	flags := cli.ParseFlags()

	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FullTimestamp:   true,
	})

	settings, err := config.Read(flags)
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	setLogLevel(settings.LogLevel)

	log.Infof("ddnsd %s (commit: %s, built at: %s)", version.Semantic(), version.CommitHash, version.BuildTime)
	log.Info(settings.String())

	family := settings.AddressFamily()

	var notifier *notify.Notifier
	if *settings.Notification.Enabled {
		kinds, _ := notify.ParseTypes(settings.Notification.Types)
		notifier, err = notify.New(notify.Settings{
			URLs:  settings.Notification.URLs,
			Types: kinds,
			Title: settings.Notification.Title,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to set up notifications")
		}
	}

	registrars := newRegistrars(settings, family)

	var dnsResolver ddnsmgr.Resolver
	if *settings.Resolver.Enabled {
		dnsResolver = resolver.New(resolver.Settings{
			Servers:       settings.Resolver.Servers,
			Retries:       *settings.Resolver.Retries,
			RetryInterval: settings.Resolver.RetryInterval,
			Timeout:       settings.Resolver.Timeout,
		}, nil)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var watcher netmon.Watcher
	if settings.Monitor.Watcher == config.WatcherPoll {
		watcher = netmon.NewPollWatcher(settings.Monitor.PollInterval)
	} else {
		watcher = netmon.NewWatcher()
	}
	detector := netmon.NewDetector(netmon.Settings{
		Interface:    settings.Interface,
		Family:       family,
		RecheckDelay: settings.Monitor.RecheckDelay,
		RecheckTries: settings.Monitor.RecheckTries,
	}, netmon.NewSource(), watcher, nil)

	var managerNotifier ddnsmgr.Notifier
	if notifier != nil {
		managerNotifier = notifier
	}
	manager := ddnsmgr.NewManager(ddnsmgr.Settings{
		Interface: settings.Interface,
		Family:    family,
		Provider:  settings.Provider,
		Domain:    settings.DomainName,
	}, registrars, dnsResolver, managerNotifier)

	// Wire subscriptions BEFORE starting producers so the Initial event is
	// not missed.
	evCh, evUnsub := detector.Subscribe()
	manager.AttachNetmon(evCh, evUnsub)

	// Start in dependency order: notify → ddnsmgr → netmon → api
	super := runtime.NewSupervisor()
	if notifier != nil {
		super.Add("notify", notifier.Start, notifier.Close)
	}
	super.Add("ddnsmgr", manager.Start, manager.Close)
	super.Add("netmon", detector.Start, detector.Close)
	if *settings.API.Enabled {
		apiSvc := api.NewService(settings.API.Address, manager)
		super.Add("api", apiSvc.Start, apiSvc.Close)
	}

	if err := super.Start(ctx); err != nil {
		log.WithError(err).Error("Supervisor start failed")
		os.Exit(1)
	}
	if err := super.Wait(ctx); err != nil {
		log.WithError(err).Error("Stopped on error")
		os.Exit(1)
	}
}

// newRegistrars builds one scheduler per tracked family, or none when no
// usable provider is configured.
func newRegistrars(settings config.Settings, family ipaddr.Family) map[ipaddr.Family]ddnsmgr.Registrar {
	if settings.Provider == "" {
		log.Info("No DNS provider configured, monitoring only")
		return nil
	}

	vendor, err := provider.Lookup(settings.Provider)
	if err != nil {
		log.WithError(err).Warn("Invalid DNS provider, monitoring only")
		return nil
	}

	client, err := provider.New(provider.Settings{
		Vendor:    vendor,
		Domain:    settings.DomainName,
		DomainID:  settings.DomainID,
		AccessKey: settings.AccessKey,
	})
	if err != nil {
		log.WithError(err).Fatal("Invalid DNS provider settings")
	}
	log.WithField("provider", client.String()).Info("Registering addresses with DNS provider")

	registrars := make(map[ipaddr.Family]ddnsmgr.Registrar)
	for _, f := range family.Families() {
		registrars[f] = registrar.NewScheduler(registrar.Settings{
			MinInterval: settings.Registration.MinInterval,
			Timeout:     settings.Registration.Timeout,
		}, client, nil)
	}
	return registrars
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// Package config assembles the daemon settings from defaults, a YAML file,
// the environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/containrrr/shoutrrr"
	"github.com/qdm12/gosettings"
	"github.com/qdm12/gotree"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/internal/netmon"
	"github.com/dmdmdm-nz/ddnsd/internal/notify"
	"github.com/dmdmdm-nz/ddnsd/internal/registrar"
	"github.com/dmdmdm-nz/ddnsd/internal/resolver"
)

const (
	WatcherAuto = "auto"
	WatcherPoll = "poll"
)

var (
	ErrInterfaceMissing  = errors.New("network interface is not set")
	ErrWatcherNotValid   = errors.New("watcher is not valid")
	ErrDurationTooLow    = errors.New("duration is too low")
	ErrValueTooLow       = errors.New("value is too low")
	ErrLogLevelNotValid  = errors.New("log level is not valid")
	ErrAddressNotValid   = errors.New("listening address is not valid")
	ErrResolverNoServers = errors.New("resolver has no servers")
)

type Settings struct {
	Interface  string `yaml:"networkInterface"`
	Family     string `yaml:"addressFamily"`
	Provider   string `yaml:"dnsProvider"`
	DomainName string `yaml:"domainName"`
	DomainID   string `yaml:"domainID"`
	AccessKey  string `yaml:"accessKey"`

	Registration Registration `yaml:"registration"`
	Monitor      Monitor      `yaml:"monitor"`
	Resolver     Resolver     `yaml:"resolver"`
	Notification Notification `yaml:",inline"`
	API          API          `yaml:"api"`
	LogLevel     string       `yaml:"logLevel"`
}

type Registration struct {
	MinInterval time.Duration `yaml:"minInterval"`
	Timeout     time.Duration `yaml:"timeout"`
}

type Monitor struct {
	RecheckDelay time.Duration `yaml:"recheckDelay"`
	RecheckTries int           `yaml:"recheckTries"`
	Watcher      string        `yaml:"watcher"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

type Resolver struct {
	Enabled       *bool         `yaml:"enabled"`
	Servers       []string      `yaml:"servers"`
	Retries       *int          `yaml:"retries"`
	RetryInterval time.Duration `yaml:"retryInterval"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Notification struct {
	Enabled *bool    `yaml:"showNotification"`
	Types   []string `yaml:"notificationTypes"`
	URLs    []string `yaml:"notificationURLs"`
	Title   string   `yaml:"notificationTitle"`
}

type API struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
}

func (s *Settings) SetDefaults() {
	s.Family = gosettings.DefaultComparable(s.Family, string(ipaddr.IPv4))
	s.Registration.MinInterval = gosettings.DefaultComparable(s.Registration.MinInterval, registrar.DefaultMinInterval)
	s.Registration.Timeout = gosettings.DefaultComparable(s.Registration.Timeout, registrar.DefaultTimeout)
	s.Monitor.RecheckDelay = gosettings.DefaultComparable(s.Monitor.RecheckDelay, netmon.DefaultRecheckDelay)
	s.Monitor.RecheckTries = gosettings.DefaultComparable(s.Monitor.RecheckTries, netmon.DefaultRecheckTries)
	s.Monitor.Watcher = gosettings.DefaultComparable(s.Monitor.Watcher, WatcherAuto)
	s.Monitor.PollInterval = gosettings.DefaultComparable(s.Monitor.PollInterval, 5*time.Second)
	s.Resolver.Enabled = gosettings.DefaultPointer(s.Resolver.Enabled, true)
	s.Resolver.Servers = gosettings.DefaultSlice(s.Resolver.Servers, resolver.DefaultServers())
	s.Resolver.Retries = gosettings.DefaultPointer(s.Resolver.Retries, resolver.DefaultRetries)
	s.Resolver.RetryInterval = gosettings.DefaultComparable(s.Resolver.RetryInterval, resolver.DefaultRetryInterval)
	s.Resolver.Timeout = gosettings.DefaultComparable(s.Resolver.Timeout, resolver.DefaultTimeout)
	s.Notification.Enabled = gosettings.DefaultPointer(s.Notification.Enabled, false)
	s.Notification.Title = gosettings.DefaultComparable(s.Notification.Title, notify.DefaultTitle)
	s.API.Enabled = gosettings.DefaultPointer(s.API.Enabled, false)
	s.API.Address = gosettings.DefaultComparable(s.API.Address, "127.0.0.1:8053")
	s.LogLevel = gosettings.DefaultComparable(s.LogLevel, "info")
}

// OverrideWith overrides fields of s with the fields set in other.
func (s *Settings) OverrideWith(other Settings) {
	s.Interface = gosettings.OverrideWithComparable(s.Interface, other.Interface)
	s.Family = gosettings.OverrideWithComparable(s.Family, other.Family)
	s.Provider = gosettings.OverrideWithComparable(s.Provider, other.Provider)
	s.DomainName = gosettings.OverrideWithComparable(s.DomainName, other.DomainName)
	s.DomainID = gosettings.OverrideWithComparable(s.DomainID, other.DomainID)
	s.AccessKey = gosettings.OverrideWithComparable(s.AccessKey, other.AccessKey)
	s.Registration.MinInterval = gosettings.OverrideWithComparable(s.Registration.MinInterval, other.Registration.MinInterval)
	s.Registration.Timeout = gosettings.OverrideWithComparable(s.Registration.Timeout, other.Registration.Timeout)
	s.Monitor.RecheckDelay = gosettings.OverrideWithComparable(s.Monitor.RecheckDelay, other.Monitor.RecheckDelay)
	s.Monitor.RecheckTries = gosettings.OverrideWithComparable(s.Monitor.RecheckTries, other.Monitor.RecheckTries)
	s.Monitor.Watcher = gosettings.OverrideWithComparable(s.Monitor.Watcher, other.Monitor.Watcher)
	s.Monitor.PollInterval = gosettings.OverrideWithComparable(s.Monitor.PollInterval, other.Monitor.PollInterval)
	s.Resolver.Enabled = gosettings.OverrideWithPointer(s.Resolver.Enabled, other.Resolver.Enabled)
	s.Resolver.Servers = gosettings.OverrideWithSlice(s.Resolver.Servers, other.Resolver.Servers)
	s.Resolver.Retries = gosettings.OverrideWithPointer(s.Resolver.Retries, other.Resolver.Retries)
	s.Resolver.RetryInterval = gosettings.OverrideWithComparable(s.Resolver.RetryInterval, other.Resolver.RetryInterval)
	s.Resolver.Timeout = gosettings.OverrideWithComparable(s.Resolver.Timeout, other.Resolver.Timeout)
	s.Notification.Enabled = gosettings.OverrideWithPointer(s.Notification.Enabled, other.Notification.Enabled)
	s.Notification.Types = gosettings.OverrideWithSlice(s.Notification.Types, other.Notification.Types)
	s.Notification.URLs = gosettings.OverrideWithSlice(s.Notification.URLs, other.Notification.URLs)
	s.Notification.Title = gosettings.OverrideWithComparable(s.Notification.Title, other.Notification.Title)
	s.API.Enabled = gosettings.OverrideWithPointer(s.API.Enabled, other.API.Enabled)
	s.API.Address = gosettings.OverrideWithComparable(s.API.Address, other.API.Address)
	s.LogLevel = gosettings.OverrideWithComparable(s.LogLevel, other.LogLevel)
}

// Validate checks the settings. Provider specific fields are checked when
// the provider client is built, since an unknown provider is not an error.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.Interface) == "" {
		return ErrInterfaceMissing
	}
	if _, err := ipaddr.ParseFamily(s.Family); err != nil {
		return err
	}

	const minDuration = 10 * time.Millisecond
	durations := map[string]time.Duration{
		"registration timeout":    s.Registration.Timeout,
		"recheck delay":           s.Monitor.RecheckDelay,
		"poll interval":           s.Monitor.PollInterval,
		"resolver timeout":        s.Resolver.Timeout,
		"resolver retry interval": s.Resolver.RetryInterval,
	}
	for name, d := range durations {
		if d < minDuration {
			return fmt.Errorf("%w: %s %s is below the minimum %s", ErrDurationTooLow, name, d, minDuration)
		}
	}
	if s.Registration.MinInterval < 0 {
		return fmt.Errorf("%w: minimum registration interval %s", ErrDurationTooLow, s.Registration.MinInterval)
	}
	if s.Monitor.RecheckTries < 1 {
		return fmt.Errorf("%w: recheck tries %d", ErrValueTooLow, s.Monitor.RecheckTries)
	}
	if *s.Resolver.Retries < 0 {
		return fmt.Errorf("%w: resolver retries %d", ErrValueTooLow, *s.Resolver.Retries)
	}

	switch s.Monitor.Watcher {
	case WatcherAuto, WatcherPoll:
	default:
		return fmt.Errorf("%w: %q must be %s or %s", ErrWatcherNotValid, s.Monitor.Watcher, WatcherAuto, WatcherPoll)
	}

	switch s.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrLogLevelNotValid, s.LogLevel)
	}

	if *s.Resolver.Enabled && len(s.Resolver.Servers) == 0 {
		return ErrResolverNoServers
	}

	if *s.Notification.Enabled {
		if _, err := notify.ParseTypes(s.Notification.Types); err != nil {
			return fmt.Errorf("notification types: %w", err)
		}
		if _, err := shoutrrr.CreateSender(s.Notification.URLs...); err != nil {
			return fmt.Errorf("notification URLs: %w", err)
		}
	}

	if *s.API.Enabled {
		_, port, err := net.SplitHostPort(s.API.Address)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrAddressNotValid, err)
		}
		if port == "" {
			return fmt.Errorf("%w: port missing in %q", ErrAddressNotValid, s.API.Address)
		}
	}

	return nil
}

// AddressFamily returns the parsed address family. It must only be called on
// validated settings.
func (s Settings) AddressFamily() ipaddr.Family {
	family, _ := ipaddr.ParseFamily(s.Family)
	return family
}

func (s Settings) String() string {
	return s.toLinesNode().String()
}

func (s Settings) toLinesNode() *gotree.Node {
	node := gotree.New("Settings summary:")
	node.Appendf("Network interface: %s", s.Interface)
	node.Appendf("Address family: %s", s.Family)

	providerNode := node.Appendf("DNS provider")
	if s.Provider == "" {
		providerNode.Appendf("None: monitor only")
	} else {
		providerNode.Appendf("Name: %s", s.Provider)
		providerNode.Appendf("Domain name: %s", s.DomainName)
		if s.DomainID != "" {
			providerNode.Appendf("Domain ID: %s", s.DomainID)
		}
		providerNode.Appendf("Access key: %s", obfuscate(s.AccessKey))
		providerNode.Appendf("Minimum interval: %s", s.Registration.MinInterval)
		providerNode.Appendf("Timeout: %s", s.Registration.Timeout)
	}

	monitorNode := node.Appendf("Monitor")
	monitorNode.Appendf("Watcher: %s", s.Monitor.Watcher)
	if s.Monitor.Watcher == WatcherPoll {
		monitorNode.Appendf("Poll interval: %s", s.Monitor.PollInterval)
	}
	monitorNode.Appendf("Link-local recheck: %d x %s", s.Monitor.RecheckTries, s.Monitor.RecheckDelay)

	if !*s.Resolver.Enabled {
		node.Appendf("Resolver: disabled")
	} else {
		resolverNode := node.Appendf("Resolver")
		resolverNode.Appendf("Servers: %s", strings.Join(s.Resolver.Servers, ", "))
		resolverNode.Appendf("Retries: %d every %s", *s.Resolver.Retries, s.Resolver.RetryInterval)
		resolverNode.Appendf("Timeout: %s", s.Resolver.Timeout)
	}

	if !*s.Notification.Enabled {
		node.Appendf("Notifications: disabled")
	} else {
		notificationNode := node.Appendf("Notifications")
		notificationNode.Appendf("Title: %s", s.Notification.Title)
		if len(s.Notification.Types) == 0 {
			notificationNode.Appendf("Types: all")
		} else {
			notificationNode.Appendf("Types: %s", strings.Join(s.Notification.Types, ", "))
		}
		urlsNode := notificationNode.Appendf("URLs")
		for _, u := range s.Notification.URLs {
			urlsNode.Appendf("%s", u)
		}
	}

	if !*s.API.Enabled {
		node.Appendf("Status API: disabled")
	} else {
		node.Appendf("Status API: %s", s.API.Address)
	}
	node.Appendf("Log level: %s", s.LogLevel)
	return node
}

func obfuscate(key string) string {
	const visible = 2
	if key == "" {
		return "[not set]"
	}
	if len(key) <= 2*visible {
		return "[set]"
	}
	return key[:visible] + "..." + key[len(key)-visible:]
}

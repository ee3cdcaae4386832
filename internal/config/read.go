package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/qdm12/gosettings/reader"
	"gopkg.in/yaml.v3"

	"github.com/dmdmdm-nz/ddnsd/pkg/cli"
)

const DefaultEnvFile = ".env"

// Read assembles the settings with the precedence defaults < YAML file <
// environment (seeded from the .env file) < command line flags, then
// validates them.
func Read(flags *cli.Flags) (settings Settings, err error) {
	settings, err = readFile(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}

	envSettings, err := readEnv(reader.New(reader.Settings{}))
	if err != nil {
		return Settings{}, fmt.Errorf("reading environment: %w", err)
	}
	settings.OverrideWith(envSettings)
	settings.OverrideWith(fromFlags(flags))

	settings.SetDefaults()
	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validating settings: %w", err)
	}
	return settings, nil
}

func readFile(path string) (settings Settings, err error) {
	if path == "" {
		return settings, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("reading config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(b))
	decoder.KnownFields(true)
	err = decoder.Decode(&settings)
	if err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return settings, nil
}

// loadEnvFile loads path into the process environment without overriding
// variables already set. A missing default .env file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil {
		if path == DefaultEnvFile && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

func readEnv(r *reader.Reader) (settings Settings, err error) {
	keep := reader.ForceLowercase(false)

	settings.Interface = r.String("DDNSD_NETWORK_INTERFACE", keep)
	settings.Family = r.String("DDNSD_ADDRESS_FAMILY")
	settings.Provider = r.String("DDNSD_DNS_PROVIDER")
	settings.DomainName = r.String("DDNSD_DOMAIN_NAME")
	settings.DomainID = r.String("DDNSD_DOMAIN_ID", keep)
	settings.AccessKey = r.String("DDNSD_ACCESS_KEY", keep)

	durations := map[string]*time.Duration{
		"DDNSD_REGISTRATION_MIN_INTERVAL": &settings.Registration.MinInterval,
		"DDNSD_REGISTRATION_TIMEOUT":      &settings.Registration.Timeout,
		"DDNSD_MONITOR_RECHECK_DELAY":     &settings.Monitor.RecheckDelay,
		"DDNSD_MONITOR_POLL_INTERVAL":     &settings.Monitor.PollInterval,
		"DDNSD_RESOLVER_RETRY_INTERVAL":   &settings.Resolver.RetryInterval,
		"DDNSD_RESOLVER_TIMEOUT":          &settings.Resolver.Timeout,
	}
	for key, target := range durations {
		*target, err = r.Duration(key)
		if err != nil {
			return Settings{}, err
		}
	}

	tries, err := readInt(r, "DDNSD_MONITOR_RECHECK_TRIES")
	if err != nil {
		return Settings{}, err
	} else if tries != nil {
		settings.Monitor.RecheckTries = *tries
	}
	settings.Monitor.Watcher = r.String("DDNSD_MONITOR_WATCHER")

	settings.Resolver.Enabled, err = r.BoolPtr("DDNSD_RESOLVER_ENABLED")
	if err != nil {
		return Settings{}, err
	}
	settings.Resolver.Servers = r.CSV("DDNSD_RESOLVER_SERVERS")
	settings.Resolver.Retries, err = readInt(r, "DDNSD_RESOLVER_RETRIES")
	if err != nil {
		return Settings{}, err
	}

	settings.Notification.Enabled, err = r.BoolPtr("DDNSD_SHOW_NOTIFICATION")
	if err != nil {
		return Settings{}, err
	}
	settings.Notification.Types = r.CSV("DDNSD_NOTIFICATION_TYPES")
	settings.Notification.URLs = r.CSV("DDNSD_NOTIFICATION_URLS", keep)
	settings.Notification.Title = r.String("DDNSD_NOTIFICATION_TITLE", keep)

	settings.API.Enabled, err = r.BoolPtr("DDNSD_API_ENABLED")
	if err != nil {
		return Settings{}, err
	}
	settings.API.Address = r.String("DDNSD_API_ADDRESS")
	settings.LogLevel = r.String("DDNSD_LOG_LEVEL")
	return settings, nil
}

func readInt(r *reader.Reader, key string) (*int, error) {
	s := r.Get(key)
	if s == nil {
		return nil, nil //nolint:nilnil
	}
	n, err := strconv.Atoi(*s)
	if err != nil {
		return nil, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return &n, nil
}

func fromFlags(flags *cli.Flags) (settings Settings) {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	settings.Interface = deref(flags.Interface)
	settings.Family = deref(flags.Family)
	settings.Provider = deref(flags.Provider)
	settings.Monitor.Watcher = deref(flags.Watcher)
	settings.LogLevel = deref(flags.LogLevel)
	if flags.APIAddress != nil {
		settings.API.Address = *flags.APIAddress
		enabled := true
		settings.API.Enabled = &enabled
	}
	return settings
}

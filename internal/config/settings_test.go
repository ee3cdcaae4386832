package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/pkg/cli"
)

func ptrTo[T any](v T) *T { return &v }

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRead_Defaults(t *testing.T) {
	settings, err := Read(&cli.Flags{Interface: ptrTo("eth0")})

	require.NoError(t, err)
	assert.Equal(t, "eth0", settings.Interface)
	assert.Equal(t, ipaddr.IPv4, settings.AddressFamily())
	assert.Equal(t, "", settings.Provider)
	assert.Equal(t, 2*time.Minute, settings.Registration.MinInterval)
	assert.Equal(t, 30*time.Second, settings.Registration.Timeout)
	assert.Equal(t, 500*time.Millisecond, settings.Monitor.RecheckDelay)
	assert.Equal(t, 20, settings.Monitor.RecheckTries)
	assert.Equal(t, WatcherAuto, settings.Monitor.Watcher)
	assert.True(t, *settings.Resolver.Enabled)
	assert.Equal(t, []string{"8.8.8.8", "8.8.4.4", "1.1.1.1", "1.0.0.1", "9.9.9.9"}, settings.Resolver.Servers)
	assert.Equal(t, 5, *settings.Resolver.Retries)
	assert.Equal(t, 10*time.Second, settings.Resolver.RetryInterval)
	assert.False(t, *settings.Notification.Enabled)
	assert.False(t, *settings.API.Enabled)
	assert.Equal(t, "info", settings.LogLevel)
}

func TestRead_Precedence(t *testing.T) {
	configPath := writeFile(t, "ddnsd.yaml", `
networkInterface: eth0
addressFamily: IPv6
dnsProvider: duckdns
domainName: home.duckdns.org
domainID: home
accessKey: from-file
registration:
  minInterval: 5m
monitor:
  recheckTries: 3
resolver:
  servers: [192.0.2.53]
  retries: 0
showNotification: true
notificationTypes: [ip changed, dns registration]
notificationURLs: [generic://example.com/hook]
logLevel: warn
`)
	t.Setenv("DDNSD_ACCESS_KEY", "From-Env")
	t.Setenv("DDNSD_MONITOR_RECHECK_TRIES", "7")
	t.Setenv("DDNSD_LOG_LEVEL", "debug")

	settings, err := Read(&cli.Flags{
		ConfigPath: configPath,
		LogLevel:   ptrTo("trace"),
		APIAddress: ptrTo("127.0.0.1:9000"),
	})

	require.NoError(t, err)
	assert.Equal(t, "eth0", settings.Interface)
	assert.Equal(t, ipaddr.IPv6, settings.AddressFamily())
	assert.Equal(t, "duckdns", settings.Provider)
	assert.Equal(t, "home", settings.DomainID)
	assert.Equal(t, "From-Env", settings.AccessKey, "environment overrides the file, case kept")
	assert.Equal(t, 5*time.Minute, settings.Registration.MinInterval)
	assert.Equal(t, 7, settings.Monitor.RecheckTries)
	assert.Equal(t, []string{"192.0.2.53"}, settings.Resolver.Servers)
	assert.Equal(t, 0, *settings.Resolver.Retries)
	assert.True(t, *settings.Notification.Enabled)
	assert.Equal(t, []string{"ip changed", "dns registration"}, settings.Notification.Types)
	assert.Equal(t, "trace", settings.LogLevel, "flags override the environment")
	assert.True(t, *settings.API.Enabled)
	assert.Equal(t, "127.0.0.1:9000", settings.API.Address)
}

func TestRead_EnvFile(t *testing.T) {
	envPath := writeFile(t, "test.env", "DDNSD_NETWORK_INTERFACE=wlan0\nDDNSD_DOMAIN_ID=abc\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("DDNSD_NETWORK_INTERFACE")
		_ = os.Unsetenv("DDNSD_DOMAIN_ID")
	})

	settings, err := Read(&cli.Flags{EnvFile: envPath})

	require.NoError(t, err)
	assert.Equal(t, "wlan0", settings.Interface)
	assert.Equal(t, "abc", settings.DomainID)
}

func TestRead_MissingDefaultEnvFileIgnored(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Read(&cli.Flags{EnvFile: DefaultEnvFile, Interface: ptrTo("eth0")})

	assert.NoError(t, err)
}

func TestRead_MissingExplicitEnvFile(t *testing.T) {
	_, err := Read(&cli.Flags{EnvFile: filepath.Join(t.TempDir(), "missing.env"), Interface: ptrTo("eth0")})

	assert.ErrorContains(t, err, "loading env file")
}

func TestRead_UnknownYAMLKey(t *testing.T) {
	configPath := writeFile(t, "ddnsd.yaml", "networkInterface: eth0\nnetworkInterfaec: eth1\n")

	_, err := Read(&cli.Flags{ConfigPath: configPath})

	assert.ErrorContains(t, err, "parsing config file")
}

func TestRead_EmptyYAML(t *testing.T) {
	configPath := writeFile(t, "ddnsd.yaml", "")

	settings, err := Read(&cli.Flags{ConfigPath: configPath, Interface: ptrTo("eth0")})

	require.NoError(t, err)
	assert.Equal(t, "eth0", settings.Interface)
}

func TestRead_InvalidEnvDuration(t *testing.T) {
	t.Setenv("DDNSD_REGISTRATION_TIMEOUT", "soon")

	_, err := Read(&cli.Flags{Interface: ptrTo("eth0")})

	assert.ErrorContains(t, err, "reading environment")
}

func TestSettings_Validate(t *testing.T) {
	t.Parallel()

	testCases := map[string]struct {
		modify func(s *Settings)
		err    error
	}{
		"valid": {
			modify: func(*Settings) {},
		},
		"missing interface": {
			modify: func(s *Settings) { s.Interface = " " },
			err:    ErrInterfaceMissing,
		},
		"bad family": {
			modify: func(s *Settings) { s.Family = "IPv5" },
			err:    ipaddr.ErrFamilyNotValid,
		},
		"bad watcher": {
			modify: func(s *Settings) { s.Monitor.Watcher = "inotify" },
			err:    ErrWatcherNotValid,
		},
		"bad log level": {
			modify: func(s *Settings) { s.LogLevel = "verbose" },
			err:    ErrLogLevelNotValid,
		},
		"recheck delay too low": {
			modify: func(s *Settings) { s.Monitor.RecheckDelay = time.Millisecond },
			err:    ErrDurationTooLow,
		},
		"negative retries": {
			modify: func(s *Settings) { s.Resolver.Retries = ptrTo(-1) },
			err:    ErrValueTooLow,
		},
		"resolver without servers": {
			modify: func(s *Settings) { s.Resolver.Servers = []string{} },
			err:    ErrResolverNoServers,
		},
		"api address without port": {
			modify: func(s *Settings) {
				s.API.Enabled = ptrTo(true)
				s.API.Address = "localhost"
			},
			err: ErrAddressNotValid,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			settings := Settings{Interface: "eth0"}
			settings.SetDefaults()
			testCase.modify(&settings)

			err := settings.Validate()

			if testCase.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, testCase.err)
			}
		})
	}
}

func TestSettings_ValidateNotifications(t *testing.T) {
	t.Parallel()

	settings := Settings{Interface: "eth0"}
	settings.SetDefaults()
	settings.Notification.Enabled = ptrTo(true)
	settings.Notification.Types = []string{"ip exploded"}
	assert.ErrorContains(t, settings.Validate(), "notification types")

	settings.Notification.Types = nil
	settings.Notification.URLs = []string{"nosuchservice://x"}
	assert.ErrorContains(t, settings.Validate(), "notification URLs")
}

func TestSettings_String(t *testing.T) {
	t.Parallel()

	settings := Settings{
		Interface:  "eth0",
		Provider:   "dynu",
		DomainName: "home.example.com",
		DomainID:   "42",
		AccessKey:  "supersecretkey",
	}
	settings.SetDefaults()

	s := settings.String()

	assert.Contains(t, s, "Settings summary:")
	assert.Contains(t, s, "Network interface: eth0")
	assert.Contains(t, s, "Name: dynu")
	assert.Contains(t, s, "Access key: su...ey")
	assert.NotContains(t, s, "supersecretkey")
	assert.Contains(t, s, "Resolver")
	assert.Contains(t, s, "Status API: disabled")
}

func Test_obfuscate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[not set]", obfuscate(""))
	assert.Equal(t, "[set]", obfuscate("abcd"))
	assert.Equal(t, "ab...fg", obfuscate("abcdefg"))
}

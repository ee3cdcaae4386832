package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmdmdm-nz/ddnsd/pkg/version"
)

// Flags holds the command line arguments. Nil fields were not given and
// leave the value from the configuration file or environment in place.
type Flags struct {
	ConfigPath string
	EnvFile    string

	LogLevel   *string
	Interface  *string
	Family     *string
	Provider   *string
	Watcher    *string
	APIAddress *string
}

// ParseFlags parses command line arguments and returns the Flags
func ParseFlags() *Flags {
	flags, showVersion, err := Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		os.Exit(2)
	}

	if showVersion {
		fmt.Printf("ddnsd version %s (commit: %s, built at: %s)\n",
			version.Version,
			version.CommitHash,
			version.BuildTime)
		os.Exit(0)
	}

	return flags
}

// Parse parses args without touching global state.
func Parse(args []string, output io.Writer) (flags *Flags, showVersion bool, err error) {
	fs := flag.NewFlagSet("ddnsd", flag.ContinueOnError)
	fs.SetOutput(output)

	flags = &Flags{}
	fs.StringVar(&flags.ConfigPath, "config", "", "Path to the YAML configuration file")
	fs.StringVar(&flags.EnvFile, "env-file", ".env", "Path to a .env file loaded into the environment if present")
	logLevel := fs.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	iface := fs.String("interface", "", "Network interface to monitor")
	family := fs.String("family", "", "Address family to monitor (IPv4, IPv6, Any)")
	provider := fs.String("provider", "", "DNS provider (dynu, freedns, duckdns, ydns, noip)")
	watcher := fs.String("watcher", "", "Change detection mechanism (auto, poll)")
	apiAddress := fs.String("api-address", "", "Listening address of the status API")
	fs.BoolVar(&showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	// Only flags given explicitly override other sources.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			flags.LogLevel = logLevel
		case "interface":
			flags.Interface = iface
		case "family":
			flags.Family = family
		case "provider":
			flags.Provider = provider
		case "watcher":
			flags.Watcher = watcher
		case "api-address":
			flags.APIAddress = apiAddress
		}
	})

	return flags, showVersion, nil
}

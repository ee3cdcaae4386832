package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver"
)

var (
	// Version contains the current version of ddnsd
	Version = "dev"

	// CommitHash contains the current git commit hash
	CommitHash = "unknown"

	// BuildTime contains the time of build
	BuildTime = "unknown"
)

// Semantic returns Version in canonical semantic version form ("v1.2" becomes
// "1.2.0"). Versions that do not parse, such as "dev", are returned as is.
func Semantic() string {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return Version
	}
	return v.String()
}

// UserAgent returns the User-Agent header value sent to DNS providers.
func UserAgent() string {
	return fmt.Sprintf("ddnsd/%s (%s %s)", Semantic(), runtime.GOOS, runtime.GOARCH)
}

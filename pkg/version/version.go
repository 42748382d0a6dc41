package version

import (
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/sidkik/turbosync/pkg/errors"
)

// EmptyValue is the value we use when running a version that wasn't compiled
// by `make`. This is helpful for telling when we're running in a unit test.
const EmptyValue = "set-by-make"

// Version is the latest tag on git for releases. On non-release commits, it may
// include additional information such as the most recent commit hash.
var Version = EmptyValue

// MinDaemonVersion is the oldest sync daemon release whose REST API exposes
// everything we rely on (bearer auth and /rest/noauth/health).
const MinDaemonVersion = "1.12.0"

// IncompatibleDaemonError is returned when the daemon is older than
// MinDaemonVersion.
type IncompatibleDaemonError struct {
	Actual, Min string
}

func (err IncompatibleDaemonError) Error() string {
	return err.FriendlyMessage()
}

// FriendlyMessage implements errors.FriendlyError.
func (err IncompatibleDaemonError) FriendlyMessage() string {
	return "The sync daemon is running version " + err.Actual + ", but " +
		"turbosync requires at least version " + err.Min + ".\n" +
		"Please upgrade the daemon."
}

// ParseDaemonVersion parses the version string reported by the daemon, e.g.
// "v1.27.2" or "v1.27.2-rc.1".
func ParseDaemonVersion(raw string) (*goversion.Version, error) {
	v, err := goversion.NewVersion(strings.TrimPrefix(strings.TrimSpace(raw), "v"))
	if err != nil {
		return nil, errors.WithContext(err, "parse daemon version")
	}
	return v, nil
}

// CheckDaemonCompatible returns an error if the daemon's reported version is
// older than MinDaemonVersion. Prereleases are compared by their core
// version so that release candidates of a supported release are accepted.
func CheckDaemonCompatible(raw string) error {
	actual, err := ParseDaemonVersion(raw)
	if err != nil {
		return err
	}

	min := goversion.Must(goversion.NewVersion(MinDaemonVersion))
	if actual.Core().LessThan(min) {
		return IncompatibleDaemonError{Actual: actual.String(), Min: min.String()}
	}
	return nil
}

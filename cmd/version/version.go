package version

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/turbosync/cmd/util"
	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/version"
)

// Mocked for unit testing.
var (
	stdout      io.Writer = os.Stdout
	parseConfig           = config.ParseApp
	newClient             = util.NewDaemonClient
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the local version of turbosync and the sync daemon's version.",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := run(ctx); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(ctx context.Context) error {
	fmt.Fprintf(stdout, "local version:  %s\n", version.Version)

	daemonVersion, err := getDaemonVersion(ctx)
	if err != nil {
		log.WithError(err).Debug("Failed to get daemon version")
		fmt.Fprintln(stdout, "daemon version: unavailable (is the sync daemon running?)")
		return nil
	}

	fmt.Fprintf(stdout, "daemon version: %s\n", daemonVersion)
	return version.CheckDaemonCompatible(daemonVersion)
}

func getDaemonVersion(ctx context.Context) (string, error) {
	cfg, err := parseConfig()
	if err != nil {
		return "", errors.WithContext(err, "read config")
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return "", errors.WithContext(err, "connect to daemon")
	}

	doc, err := client.GetSystemVersion()
	if err != nil {
		return "", errors.WithContext(err, "get daemon version")
	}
	return doc.String("version"), nil
}

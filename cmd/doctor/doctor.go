package doctor

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/buger/goterm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/turbosync/cmd/util"
	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/credential"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/scan"
	"github.com/sidkik/turbosync/pkg/syncthing"
	"github.com/sidkik/turbosync/pkg/version"
)

// Mocked for unit testing.
var (
	stdout      io.Writer = os.Stdout
	parseConfig           = config.ParseApp
	resolveKey            = func(ctx context.Context, cfg config.App) (string, error) {
		return credential.NewResolver(log.StandardLogger()).Resolve(ctx, cfg)
	}
	newClient = func(address, apiKey string) syncthing.Client {
		return syncthing.New(address, apiKey, log.StandardLogger())
	}
	testSSH = func(ctx context.Context, cfg config.App) error {
		return scan.NewSSHLister(cfg, log.StandardLogger()).TestConnection(ctx)
	}
	stat = os.Stat
)

// New creates a new `doctor` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that turbosync can reach the sync daemon and the remote tree",
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

type check struct {
	name string
	fn   func() error
}

func run(ctx context.Context) error {
	cfg, err := parseConfig()
	if err != nil {
		report("Configuration", err)
		return errors.NewFriendlyError("Fix the turbosync configuration and try again.")
	}
	report("Configuration", nil)

	var apiKey string
	checks := []check{
		{
			name: "Sync daemon health",
			fn: func() error {
				return newClient(cfg.APIAddress, "").CheckHealth()
			},
		},
		{
			name: "Sync daemon API key",
			fn: func() (err error) {
				apiKey, err = resolveKey(ctx, cfg)
				return err
			},
		},
		{
			name: "Sync daemon authentication",
			fn: func() error {
				return newClient(cfg.APIAddress, apiKey).Ping()
			},
		},
		{
			name: "Sync daemon version",
			fn: func() error {
				doc, err := newClient(cfg.APIAddress, apiKey).GetSystemVersion()
				if err != nil {
					return err
				}
				return version.CheckDaemonCompatible(doc.String("version"))
			},
		},
		{
			name: "Remote tree",
			fn: func() error {
				return checkRemote(ctx, cfg)
			},
		},
	}

	var failed int
	for _, c := range checks {
		err := c.fn()
		report(c.name, err)
		if err != nil {
			failed++
		}
	}

	if failed > 0 {
		return errors.NewFriendlyError("%d of %d checks failed.", failed, len(checks)+1)
	}
	fmt.Fprintln(stdout, "\nEverything looks good.")
	return nil
}

func checkRemote(ctx context.Context, cfg config.App) error {
	if cfg.Mode == config.ModeSSH {
		return testSSH(ctx, cfg)
	}

	fi, err := stat(cfg.MountPath)
	if err != nil {
		return errors.WithContext(err, "stat mount")
	}
	if !fi.IsDir() {
		return errors.Errorf("%s is not a directory", cfg.MountPath)
	}
	return nil
}

func report(name string, err error) {
	if err == nil {
		fmt.Fprintln(stdout, goterm.Color("[ok]   ", goterm.GREEN)+name)
		return
	}

	msg := err.Error()
	if friendly, ok := errors.GetFriendlyMessage(err); ok {
		msg = friendly
	}
	fmt.Fprintf(stdout, "%s%s: %s\n", goterm.Color("[fail] ", goterm.RED), name, msg)
}

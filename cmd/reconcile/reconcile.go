package reconcile

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/turbosync/cmd/util"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/reconcile"
)

// Mocked for unit testing.
var (
	stdout    io.Writer = os.Stdout
	newEngine           = func() reconciler {
		return util.NewEngine(log.StandardLogger())
	}
)

type reconciler interface {
	Reconcile(ctx context.Context) reconcile.Result
}

// New creates a new `reconcile` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Sync the daemon's folders with the marked directories once",
		Long: "Scan for directories containing the marker file, and add or remove\n" +
			"folders in the sync daemon so that exactly those directories are synced.",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := run(cmd.Context()); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	res := newEngine().Reconcile(ctx)
	if !res.Success {
		return errors.NewFriendlyError("%s", res.Message)
	}
	fmt.Fprintln(stdout, res.Message)
	return nil
}

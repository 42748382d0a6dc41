package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/turbosync/cmd/config"
	"github.com/sidkik/turbosync/cmd/doctor"
	reconcileCmd "github.com/sidkik/turbosync/cmd/reconcile"
	"github.com/sidkik/turbosync/cmd/run"
	"github.com/sidkik/turbosync/cmd/status"
	"github.com/sidkik/turbosync/cmd/util"
	"github.com/sidkik/turbosync/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "TURBOSYNC_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "turbosync",
		Short:        "Keep a sync daemon's folders in step with marked remote directories",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		configCmd.New(),
		doctor.New(),
		reconcileCmd.New(),
		run.New(),
		status.New(),
		version.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

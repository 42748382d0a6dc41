package status

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/buger/goterm"
	"github.com/spf13/cobra"

	"github.com/sidkik/turbosync/cmd/util"
	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/syncthing"
)

// Mocked for unit testing.
var (
	stdout      io.Writer = os.Stdout
	parseConfig           = config.ParseApp
	newClient             = util.NewDaemonClient
)

// New creates a new `status` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the sync daemon's connection and folder status",
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

	cfg, err := parseConfig()
	if err != nil {
		return errors.WithContext(err, "read config")
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	system, err := client.GetSystemStatus()
	if err != nil {
		return errors.NewFriendlyError("Couldn't reach the sync daemon at %s. "+
			"Is it running?\n\n%s", cfg.APIAddress, err)
	}

	connections, err := client.GetConnections()
	if err != nil {
		return errors.WithContext(err, "get connections")
	}

	statuses, err := client.GetAllFolderStatuses()
	if err != nil {
		return errors.WithContext(err, "get folder statuses")
	}

	connected, total := countConnections(connections)
	fmt.Fprintf(stdout, "Device ID:          %s\n", system.String("myID"))
	fmt.Fprintf(stdout, "Connected devices:  %d/%d\n", connected, total)
	fmt.Fprintln(stdout)

	if len(statuses) == 0 {
		fmt.Fprintln(stdout, "No folders are being synced.")
		return nil
	}

	var ids []string
	for id := range statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := [][]string{{"FOLDER", "STATE", "COMPLETION", "ERROR"}}
	var colors []int
	for _, id := range ids {
		status := syncthing.ParseFolderStatus(statuses[id])
		rows = append(rows, []string{
			id,
			status.State,
			fmt.Sprintf("%.0f%%", status.Completion),
			status.Error,
		})
		colors = append(colors, stateColor(status.State))
	}

	for i, line := range util.FormatTable(rows) {
		if i > 0 {
			line = goterm.Color(line, colors[i-1])
		}
		fmt.Fprintln(stdout, line)
	}
	return nil
}

// countConnections returns the number of connected devices, and the total
// number of devices, in a `/system/connections` document.
func countConnections(doc syncthing.Document) (connected, total int) {
	devices, _ := doc["connections"].(map[string]interface{})
	for _, device := range devices {
		total++
		if info, ok := device.(map[string]interface{}); ok {
			if isConnected, _ := info["connected"].(bool); isConnected {
				connected++
			}
		}
	}
	return connected, total
}

func stateColor(state string) int {
	switch state {
	case syncthing.StateIdle:
		return goterm.GREEN
	case syncthing.StateError:
		return goterm.RED
	case "syncing", "scanning", "sync-preparing", "scan-waiting", "sync-waiting":
		return goterm.YELLOW
	default:
		return goterm.BLACK
	}
}

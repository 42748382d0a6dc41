package util

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/turbosync/pkg/errors"
)

// Mocked for unit testing.
var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// HandleFatalError prints the error and exits. Errors with a friendly message
// are shown as is, and other errors are logged with their full context.
func HandleFatalError(err error) {
	if msg, ok := errors.GetFriendlyMessage(err); ok {
		fmt.Fprintln(stderr, msg)
		log.WithError(err).Debug("Exiting due to fatal error")
	} else {
		log.WithError(err).Error("Fatal error")
	}
	exit(1)
}

// HandlePanic logs a panic in the calling goroutine and exits. It must be
// called directly by `defer`.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Unexpected panic: %v", r)
		exit(1)
	}
}

// ProgressPrinter prints a message followed by a growing line of dots until
// it's stopped.
type ProgressPrinter struct {
	out      io.Writer
	msg      string
	interval time.Duration

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewProgressPrinter creates a ProgressPrinter that writes to `out`.
func NewProgressPrinter(out io.Writer, msg string) *ProgressPrinter {
	return &ProgressPrinter{
		out:      out,
		msg:      msg,
		interval: time.Second,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Run prints until Stop is called. It's meant to be run in its own
// goroutine.
func (pp *ProgressPrinter) Run() {
	defer close(pp.stopped)

	fmt.Fprint(pp.out, pp.msg)
	ticker := time.NewTicker(pp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-pp.stop:
			return
		case <-ticker.C:
			fmt.Fprint(pp.out, ".")
		}
	}
}

// Stop stops printing and ends the line.
func (pp *ProgressPrinter) Stop() {
	pp.StopWithPrint("\n")
}

// StopWithPrint stops printing, and then prints `msg`.
func (pp *ProgressPrinter) StopWithPrint(msg string) {
	pp.stopOnce.Do(func() {
		close(pp.stop)
		<-pp.stopped
		fmt.Fprint(pp.out, msg)
	})
}

// FormatTable pads the columns of `rows` to the same width, and returns the
// resulting lines.
func FormatTable(rows [][]string) []string {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var lines []string
	for _, row := range rows {
		var cells []string
		for i, cell := range row {
			if i == len(row)-1 {
				cells = append(cells, cell)
				continue
			}
			cells = append(cells, cell+strings.Repeat(" ", widths[i]-len(cell)))
		}
		lines = append(lines, strings.Join(cells, "  "))
	}
	return lines
}

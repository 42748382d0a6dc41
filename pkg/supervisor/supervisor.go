// Package supervisor starts and stops the sync daemon binary.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
)

// DefaultStopTimeout is how long Stop waits after asking the daemon to exit
// before killing it.
const DefaultStopTimeout = 10 * time.Second

// maxOldLogFiles is the number of rotated daemon log files to keep.
const maxOldLogFiles = 3

// These are overridden in tests.
var (
	fs          = afero.NewOsFs()
	lookPath    = exec.LookPath
	execCommand = exec.Command
)

// Supervisor manages a single daemon process. The process is started in its
// own session so that it isn't killed by signals sent to turbosync's
// process group.
type Supervisor struct {
	Binary     string
	Home       string
	APIAddress string
	LogFile    string

	StopTimeout time.Duration
	Clock       clockwork.Clock
	Log         logrus.FieldLogger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// New returns a supervisor for the daemon described by `cfg`.
func New(cfg config.App, log logrus.FieldLogger) *Supervisor {
	return &Supervisor{
		Binary:      cfg.Daemon.Binary,
		Home:        cfg.Daemon.Home,
		APIAddress:  cfg.APIAddress,
		LogFile:     cfg.Daemon.LogFile,
		StopTimeout: DefaultStopTimeout,
		Clock:       clockwork.NewRealClock(),
		Log:         log,
	}
}

// Args returns the daemon's command line arguments.
func (s *Supervisor) Args() []string {
	return []string{
		"--home=" + s.Home,
		"--no-browser",
		"--gui-address=" + s.APIAddress,
		"--logfile=" + s.LogFile,
		fmt.Sprintf("--log-max-old-files=%d", maxOldLogFiles),
	}
}

// Start starts the daemon. It's an error to start a daemon that's already
// running.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return errors.New("daemon is already running")
	}

	binary, err := lookPath(s.Binary)
	if err != nil {
		return errors.NewFriendlyError("Couldn't find the sync daemon binary %q.\n"+
			"Install it, or point daemon.binary in the turbosync config at it.", s.Binary)
	}

	if err := fs.MkdirAll(s.Home, 0700); err != nil {
		return errors.WithContext(err, "create daemon home")
	}
	if err := fs.MkdirAll(filepath.Dir(s.LogFile), 0755); err != nil {
		return errors.WithContext(err, "create daemon log directory")
	}

	args := s.Args()
	cmd := execCommand(binary, args...)
	cmd.SysProcAttr = newSessionAttr()
	s.Log.WithField("command", binary+" "+strings.Join(args, " ")).Info("Starting sync daemon")
	if err := cmd.Start(); err != nil {
		return errors.WithContext(err, "start daemon")
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		s.Log.WithError(err).WithField("pid", cmd.Process.Pid).Info("Sync daemon exited")
		close(exited)
	}()

	s.cmd = cmd
	s.exited = exited
	s.Log.WithField("pid", cmd.Process.Pid).Info("Started sync daemon")
	return nil
}

// Running returns whether the daemon started by Start is still running.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Supervisor) runningLocked() bool {
	if s.exited == nil {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// Stop asks the daemon to exit, and kills it if it's still running after
// StopTimeout. Stopping a daemon that isn't running is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.runningLocked() {
		s.Log.Debug("Sync daemon isn't running. Nothing to stop")
		return nil
	}

	pid := s.cmd.Process.Pid
	s.Log.WithField("pid", pid).Info("Stopping sync daemon")
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.Log.WithError(err).Warn("Failed to signal sync daemon. Killing it")
		return s.killLocked()
	}

	select {
	case <-s.exited:
		s.Log.WithField("pid", pid).Info("Sync daemon stopped")
		return nil
	case <-s.Clock.After(s.StopTimeout):
		s.Log.WithField("pid", pid).Warn("Sync daemon didn't stop in time. Killing it")
		return s.killLocked()
	}
}

func (s *Supervisor) killLocked() error {
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.WithContext(err, "kill daemon")
	}
	<-s.exited
	return nil
}

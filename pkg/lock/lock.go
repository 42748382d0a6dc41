// Package lock ensures that only one turbosync process manages the sync
// daemon at a time.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sidkik/turbosync/pkg/errors"
)

// errHeld is returned by the platform lock when another process holds it.
var errHeld = errors.New("held")

// HeldError is returned by Acquire when another turbosync process holds the
// lock.
type HeldError struct {
	Path string

	// PID is the holder's process ID, or zero if the lock file doesn't
	// record one.
	PID int
}

func (err HeldError) Error() string {
	if err.PID == 0 {
		return fmt.Sprintf("lock %s is held by another process", err.Path)
	}
	return fmt.Sprintf("lock %s is held by pid %d", err.Path, err.PID)
}

// FriendlyMessage implements errors.FriendlyError.
func (err HeldError) FriendlyMessage() string {
	holder := "another process"
	if err.PID != 0 {
		holder = fmt.Sprintf("process %d", err.PID)
	}
	return fmt.Sprintf("turbosync is already running as %s.\n"+
		"Stop it first. If it has already exited, delete %s.", holder, err.Path)
}

// Lock is held by the running turbosync process. The lock file contains the
// holder's PID.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock at `path` without blocking.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WithContext(err, "create lock directory")
	}

	f, err := lockFile(path)
	if err == errHeld {
		return nil, HeldError{Path: path, PID: readPID(path)}
	}
	if err != nil {
		return nil, errors.WithContext(err, "acquire lock")
	}

	if err := writePID(f); err != nil {
		_ = unlockFile(f, path)
		return nil, errors.WithContext(err, "write pid")
	}
	return &Lock{path: path, file: f}, nil
}

// Release gives up the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return unlockFile(f, l.path)
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "%d\n", os.Getpid())
	return err
}

func readPID(path string) int {
	contents, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		return 0
	}
	return pid
}

//go:build !windows

package lock

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/sidkik/turbosync/pkg/errors"
)

// lockFile takes an exclusive flock. The kernel drops it if the process
// exits, so a crashed run never leaves a stale lock behind.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, errHeld
		}
		return nil, err
	}
	return f, nil
}

func unlockFile(f *os.File, _ string) error {
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return errors.WithContext(unlockErr, "unlock")
	}
	return errors.WithContext(closeErr, "close lock file")
}

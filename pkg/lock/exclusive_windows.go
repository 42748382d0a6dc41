package lock

import (
	"os"

	"github.com/sidkik/turbosync/pkg/errors"
)

// lockFile creates the lock file exclusively. The lock is the file's
// existence, so it's removed on unlock.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if os.IsExist(err) {
		return nil, errHeld
	}
	return f, err
}

func unlockFile(f *os.File, path string) error {
	closeErr := f.Close()
	if err := os.Remove(path); err != nil {
		return errors.WithContext(err, "remove lock file")
	}
	return errors.WithContext(closeErr, "close lock file")
}

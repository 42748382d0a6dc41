// Package scan discovers the directories that should be synced. A directory
// qualifies when it directly contains the marker file. The tree is either a
// locally mounted share that's walked directly, or a remote tree that's
// searched over SSH.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
)

// RemoteLister lists the directories under `base` that contain a file named
// `marker`. Returned paths are absolute.
type RemoteLister interface {
	ListMarkerDirs(ctx context.Context, base, marker string) ([]string, error)
}

// Scanner finds marker directories according to the configured discovery
// mode.
type Scanner struct {
	Fs  afero.Fs
	Log logrus.FieldLogger

	// NewLister creates the lister used in SSH mode.
	NewLister func(cfg config.App) RemoteLister
}

// New returns a scanner for the OS filesystem that lists remote trees over
// SSH.
func New(log logrus.FieldLogger) Scanner {
	return Scanner{
		Fs:  afero.NewOsFs(),
		Log: log,
		NewLister: func(cfg config.App) RemoteLister {
			return NewSSHLister(cfg, log)
		},
	}
}

// Find returns the absolute path of every directory that contains the
// marker. Finding nothing isn't an error.
func (s Scanner) Find(ctx context.Context, cfg config.App) ([]string, error) {
	switch cfg.Mode {
	case config.ModeMounted:
		return s.walk(cfg.MountPath, cfg.MarkerFile)
	case config.ModeSSH:
		dirs, err := s.NewLister(cfg).ListMarkerDirs(ctx, cfg.Remote.Path, cfg.MarkerFile)
		if err != nil {
			if _, ok := errors.RootCause(err).(errors.ScanError); ok {
				return nil, err
			}
			return nil, errors.ScanError{Reason: err.Error()}
		}
		return dirs, nil
	default:
		return nil, errors.ConfigError{Reason: "unknown mode " + string(cfg.Mode)}
	}
}

// markerNames returns both the hidden and visible spelling of the marker,
// e.g. ".livework" and "livework".
func markerNames(marker string) map[string]struct{} {
	visible := strings.TrimPrefix(marker, ".")
	return map[string]struct{}{
		visible:       {},
		"." + visible: {},
	}
}

func (s Scanner) walk(root, marker string) ([]string, error) {
	names := markerNames(marker)
	root = filepath.Clean(root)

	var dirs []string
	seen := map[string]struct{}{}
	err := afero.Walk(s.Fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}

			// Skip unreadable subtrees rather than failing the whole scan.
			s.Log.WithError(err).WithField("path", path).Warn("Failed to read directory during scan")
			if fi != nil && fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !fi.Mode().IsRegular() {
			return nil
		}
		if _, ok := names[fi.Name()]; !ok {
			return nil
		}

		dir := filepath.Dir(path)
		if _, ok := seen[dir]; !ok {
			seen[dir] = struct{}{}
			dirs = append(dirs, dir)
			s.Log.WithField("path", dir).Debug("Found marker")
		}
		return nil
	})
	if err != nil {
		return nil, errors.ScanError{Reason: errors.WithContext(err, "walk "+root).Error()}
	}
	return dirs, nil
}

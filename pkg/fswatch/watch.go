// Package fswatch notifies callers when a directory tree changes, after the
// tree has been quiet for a while.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/turbosync/pkg/errors"
)

var fs = afero.NewOsFs()

// Watch watches every directory under `root`, including ones created after
// the watch starts. It calls `onChange` once the tree has been quiet for
// `delay` after one or more changes. The watch stops when `ctx` is
// cancelled.
func Watch(ctx context.Context, root string, delay time.Duration, clock clockwork.Clock,
	onChange func()) error {

	pathsToWatch, err := getPathsToWatch(root)
	if err != nil {
		return errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}
	log.WithField("root", root).WithField("dirs", len(pathsToWatch)).Debug("Started file watcher")

	go func() {
		<-ctx.Done()
		if err := watcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file watcher")
		}
	}()

	go func() {
		for err := range watcher.Errors {
			log.WithError(err).Warn("File watcher error")
		}
	}()

	changes := combineUpdates(relevantEvents(watcher, watcher.Events))
	go debounce(ctx, clock, delay, changes, onChange)
	return nil
}

// eventSource is the subset of *fsnotify.Watcher used to follow newly
// created directories.
type eventSource interface {
	Add(path string) error
}

// relevantEvents filters out attribute-only changes, and starts watching
// directories as they're created.
func relevantEvents(watcher eventSource, events <-chan fsnotify.Event) chan fsnotify.Event {
	relevant := make(chan fsnotify.Event)
	go func() {
		defer close(relevant)
		for event := range events {
			if event.Op == fsnotify.Chmod {
				continue
			}

			if event.Has(fsnotify.Create) {
				if fi, err := fs.Stat(event.Name); err == nil && fi.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						log.WithError(err).WithField("path", event.Name).
							Warn("Failed to watch new directory")
					}
				}
			}
			relevant <- event
		}
	}()
	return relevant
}

func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		defer close(combined)
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

// debounce calls `onChange` once `delay` has passed since the last update.
// Updates that arrive during the quiet period restart it.
func debounce(ctx context.Context, clock clockwork.Clock, delay time.Duration,
	updates <-chan struct{}, onChange func()) {

	var quiet <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			quiet = clock.After(delay)
		case <-quiet:
			quiet = nil
			onChange()
		}
	}
}

func getPathsToWatch(root string) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%s is not a directory", root)
	}

	// Because fsnotify doesn't watch directories recursively, we walk the
	// tree and add every subdirectory. Events for files are reported on
	// their parent directory.
	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return errors.WithContext(err, "walk error")
			}
			log.WithError(err).WithField("path", path).Debug("Skipping unreadable path")
			if fi != nil && fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

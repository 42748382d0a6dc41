// Package reconcile aligns the sync daemon's folder configuration with the
// directories discovered by a scan.
//
// A cycle loads the app config, resolves the daemon's API key, fetches the
// daemon's config, scans for marker directories, diffs the two and, only if
// something changed, writes back a modified copy of the fetched config. The
// fetched config is never mutated in place, so a failure midway leaves
// nothing half applied.
//
// Callers must not run cycles concurrently: PUT replaces the daemon's whole
// config, so two overlapping cycles would race. See the scheduler package.
package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/scan"
	"github.com/sidkik/turbosync/pkg/syncthing"
)

// RemoteDeviceName is the name given to the remote device when it has to be
// added to the daemon's config.
const RemoteDeviceName = "turbosync-remote"

// CredentialResolver returns the daemon's API key.
type CredentialResolver interface {
	Resolve(ctx context.Context, cfg config.App) (string, error)
}

// DirectoryScanner finds marker directories and prepares their local
// targets.
type DirectoryScanner interface {
	Find(ctx context.Context, cfg config.App) ([]string, error)
	EnsureLocalDirs(folders []scan.Folder) error
}

// Engine runs reconciliation cycles. Its collaborators are injected so that
// every cycle starts from freshly loaded settings.
type Engine struct {
	LoadConfig  func() (config.App, error)
	Credentials CredentialResolver
	Scanner     DirectoryScanner
	NewClient   func(address, apiKey string) syncthing.Client
	Log         logrus.FieldLogger
}

// Result is the outcome of one cycle. Message is suitable for showing to the
// user as is.
type Result struct {
	Success bool
	Message string

	// Updated is whether the daemon's config was written.
	Updated bool
	Added   int
	Removed int
	Patched int

	// Folders is the number of folders configured in the daemon after the
	// cycle.
	Folders int

	// Phase is the last phase the cycle reached. For failed cycles, it's the
	// phase that failed.
	Phase Phase
}

type cycle struct {
	Engine
	log   logrus.FieldLogger
	phase Phase
}

func (c *cycle) enter(phase Phase) {
	c.log.WithFields(logrus.Fields{
		"from": c.phase.String(),
		"to":   phase.String(),
	}).Debug("Reconcile phase transition")
	c.phase = phase
}

// Reconcile runs one cycle. It never panics: every failure, including a
// panic in a collaborator, is converted into an unsuccessful Result.
func (e Engine) Reconcile(ctx context.Context) (res Result) {
	c := &cycle{
		Engine: e,
		log:    e.Log.WithField("cycle", uuid.New().String()),
		phase:  Idle,
	}

	defer func() {
		if r := recover(); r != nil {
			failedAt := c.phase
			c.enter(Failed)
			c.log.WithFields(logrus.Fields{
				"phase": failedAt.String(),
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Reconcile panicked")
			res = Result{
				Message: fmt.Sprintf("Sync failed due to unexpected error: %v", r),
				Phase:   failedAt,
			}
		}
	}()

	res, err := c.run(ctx)
	if err != nil {
		failedAt := c.phase
		msg := classify(failedAt, err)
		c.enter(Failed)
		c.log.WithError(err).WithField("phase", failedAt.String()).Error(msg)
		return Result{Message: msg, Phase: failedAt}
	}

	c.enter(Done)
	res.Success = true
	res.Phase = Done
	c.log.WithFields(logrus.Fields{
		"added":   res.Added,
		"removed": res.Removed,
		"patched": res.Patched,
	}).Info(res.Message)
	return res
}

func (c *cycle) run(ctx context.Context) (Result, error) {
	c.enter(LoadingConfig)
	cfg, err := c.LoadConfig()
	if err != nil {
		return Result{}, errors.WithContext(err, "load config")
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	c.enter(ResolvingCredential)
	apiKey, err := c.Credentials.Resolve(ctx, cfg)
	if err != nil {
		return Result{}, err
	}

	c.enter(FetchingRemoteConfig)
	client := c.NewClient(cfg.APIAddress, apiKey)
	fetched, err := client.GetConfig()
	if err != nil {
		return Result{}, errors.WithContext(err, "fetch daemon config")
	}

	c.enter(Scanning)
	paths, err := c.Scanner.Find(ctx, cfg)
	if err != nil {
		return Result{}, err
	}
	if len(paths) == 0 {
		c.log.Info("No marker directories found. Every managed folder will be removed")
	}
	folders := scan.Translate(c.log, cfg, paths)
	if err := c.Scanner.EnsureLocalDirs(folders); err != nil {
		return Result{}, errors.ScanError{Reason: err.Error()}
	}

	c.enter(Diffing)
	desired := desiredFolders(c.log, folders)
	plan := NewPlan(fetched.FolderIDs(), desired, fetched.HasDevice(cfg.RemoteDeviceID))
	c.log.WithFields(logrus.Fields{
		"add":    plan.ToAdd,
		"remove": plan.ToRemove,
		"keep":   plan.ToKeep,
	}).Debug("Computed reconcile plan")

	working, err := fetched.DeepCopy()
	if err != nil {
		return Result{}, err
	}
	res := apply(c.log, working, plan, desired, cfg.RemoteDeviceID)

	c.enter(Applying)
	if !res.Updated {
		res.Message = "Sync configuration is up to date, no changes needed"
		return res, nil
	}

	if err := client.UpdateConfig(working); err != nil {
		return Result{}, errors.WithContext(err, "update daemon config")
	}
	res.Message = fmt.Sprintf("Sync configuration updated: %d added, %d removed",
		res.Added, res.Removed)
	if res.Patched > 0 {
		res.Message += fmt.Sprintf(", %d updated", res.Patched)
	}
	return res, nil
}

// apply mutates `cfg` according to the plan and reports what changed.
func apply(log logrus.FieldLogger, cfg syncthing.Config, plan Plan,
	desired map[string]scan.Folder, deviceID string) Result {

	var res Result
	remove := map[string]struct{}{}
	for _, id := range plan.ToRemove {
		remove[id] = struct{}{}
	}

	var folders []syncthing.Folder
	for _, folder := range cfg.Folders() {
		id := folder.ID()
		if _, ok := remove[id]; ok {
			log.WithField("folder", id).Info("Removing folder")
			res.Removed++
			continue
		}

		if want, ok := desired[id]; ok {
			patched := false
			if filepath.Clean(folder.Path()) != filepath.Clean(want.LocalPath) {
				log.WithFields(logrus.Fields{
					"folder": id,
					"from":   folder.Path(),
					"to":     want.LocalPath,
				}).Info("Updating folder path")
				folder.SetPath(want.LocalPath)
				patched = true
			}
			if !folder.HasDevice(deviceID) {
				log.WithField("folder", id).Info("Sharing folder with remote device")
				folder.AddDevice(deviceID)
				patched = true
			}
			if patched {
				res.Patched++
			}
		}
		folders = append(folders, folder)
	}

	for _, id := range plan.ToAdd {
		want := desired[id]
		log.WithFields(logrus.Fields{
			"folder": id,
			"path":   want.LocalPath,
		}).Info("Adding folder")
		folders = append(folders, syncthing.NewFolder(id, folderLabel(want), want.LocalPath, deviceID))
		res.Added++
	}

	cfg.SetFolders(folders)
	res.Folders = len(folders)

	deviceAdded := false
	if !plan.HasDevice {
		log.WithField("device", deviceID).Info("Adding remote device")
		cfg.SetDevices(append(cfg.Devices(), syncthing.NewDevice(deviceID, RemoteDeviceName)))
		deviceAdded = true
	}

	res.Updated = res.Added > 0 || res.Removed > 0 || res.Patched > 0 || deviceAdded
	return res
}

func folderLabel(f scan.Folder) string {
	if f.RelativePath == "." {
		return filepath.Base(f.LocalPath)
	}
	return f.RelativePath
}

// classify renders a failed cycle's error as a message for the user.
func classify(phase Phase, err error) string {
	root := errors.RootCause(err)
	if msg, ok := errors.GetFriendlyMessage(err); ok {
		root = errors.New(msg)
	}

	var apiErr *errors.APIError
	switch {
	case phase == LoadingConfig:
		return fmt.Sprintf("Configuration error: %s", root)
	case isType[errors.ConfigError](err):
		return fmt.Sprintf("Configuration error: %s", root)
	case isType[errors.CredentialError](err):
		return fmt.Sprintf("Could not get the sync daemon's API key: %s", root)
	case isType[errors.ScanError](err):
		return fmt.Sprintf("Scanning for sync folders failed: %s", root)
	case errors.As(err, &apiErr) && phase == Applying:
		return fmt.Sprintf("Error updating sync configuration: %s", apiErr)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("Could not reach the sync daemon: %s", apiErr)
	default:
		return fmt.Sprintf("Sync failed due to unexpected error: %s", err)
	}
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

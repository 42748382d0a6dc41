package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/turbosync/pkg/errors"
)

const (
	// AppConfigPath is the default path to the turbosync config.
	AppConfigPath = "~/.turbosync.yaml"

	// InitialAppConfigVersion is the first version of the app config. Config
	// files that do not specify a version will default to this version.
	InitialAppConfigVersion = "v1alpha1"

	// SupportedAppConfigVersion is the version of the app config understood
	// by the current binary.
	SupportedAppConfigVersion = "v1alpha1"

	// DefaultMarkerFile is the name of the file that marks a directory as
	// one that should be synced.
	DefaultMarkerFile = ".livework"

	// DefaultAPIAddress is where the managed daemon serves its REST API.
	DefaultAPIAddress = "127.0.0.1:8385"

	DefaultSSHPort             = 22
	DefaultSyncIntervalMinutes = 5
	DefaultWatchDelaySeconds   = 2
	DefaultLocalDir            = "~/Live_Work"
	DefaultDaemonBinary        = "syncthing"
	DefaultDaemonHome          = "~/Library/Application Support/TurboSync/syncthing_config"
	DefaultDaemonLogFile       = "~/Library/Logs/TurboSync/syncthing.log"
	credentialFileName         = "config.xml"
)

// DiscoveryMode selects how marker files are found on the remote side.
type DiscoveryMode string

const (
	// ModeMounted walks a remote share that is mounted on the local machine.
	ModeMounted DiscoveryMode = "mounted"

	// ModeSSH runs `find` on the remote host over SSH.
	ModeSSH DiscoveryMode = "ssh"
)

// App is the settings snapshot for one reconciliation cycle. It's loaded
// fresh for every cycle so edits to the config file take effect without a
// restart.
type App struct {
	Version string `json:"version,omitempty"`

	// LocalDir is the local base directory that discovered folders are
	// rebased onto.
	LocalDir string        `json:"localDir"`
	Mode     DiscoveryMode `json:"mode"`

	// MountPath is the local mount point of the remote share. Only used in
	// mounted mode. If empty, it's auto-detected from Remote.Path.
	MountPath string `json:"mountPath,omitempty"`
	Remote    Remote `json:"remote,omitempty"`

	// RemoteDeviceID is the daemon-assigned ID of the remote peer that every
	// managed folder is shared with.
	RemoteDeviceID string `json:"remoteDeviceID"`

	APIAddress     string `json:"apiAddress,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	MarkerFile     string `json:"markerFile,omitempty"`
	CredentialFile string `json:"credentialFile,omitempty"`

	SyncIntervalMinutes int    `json:"syncIntervalMinutes,omitempty"`
	Watch               Watch  `json:"watch,omitempty"`
	Daemon              Daemon `json:"daemon,omitempty"`

	NotifyWebhook  string `json:"notifyWebhook,omitempty"`
	MetricsAddress string `json:"metricsAddress,omitempty"`
}

// Remote describes the SSH endpoint that hosts the live work tree.
type Remote struct {
	User           string `json:"user,omitempty"`
	Host           string `json:"host,omitempty"`
	Port           int    `json:"port,omitempty"`
	Path           string `json:"path,omitempty"`
	IdentityFile   string `json:"identityFile,omitempty"`
	KnownHostsFile string `json:"knownHostsFile,omitempty"`
}

// Watch configures the local file watcher that triggers reconciliation.
type Watch struct {
	Enabled      bool `json:"enabled,omitempty"`
	DelaySeconds int  `json:"delaySeconds,omitempty"`
}

// Daemon configures the supervised sync daemon process.
type Daemon struct {
	Manage  bool   `json:"manage,omitempty"`
	Binary  string `json:"binary,omitempty"`
	Home    string `json:"home,omitempty"`
	LogFile string `json:"logFile,omitempty"`
}

// BaseDir returns the directory that scanning starts from: the mount path in
// mounted mode, and the remote path in SSH mode.
func (cfg App) BaseDir() string {
	if cfg.Mode == ModeMounted {
		return cfg.MountPath
	}
	return cfg.Remote.Path
}

// SyncInterval returns the period between scheduled reconciliations.
func (cfg App) SyncInterval() time.Duration {
	return time.Duration(cfg.SyncIntervalMinutes) * time.Minute
}

// WatchDelay returns the quiet period used to debounce file events.
func (cfg App) WatchDelay() time.Duration {
	return time.Duration(cfg.Watch.DelaySeconds) * time.Second
}

// SSHAddress returns the host:port of the remote SSH server.
func (cfg App) SSHAddress() string {
	return net.JoinHostPort(cfg.Remote.Host, fmt.Sprintf("%d", cfg.Remote.Port))
}

// Validate checks that the fields required by the configured discovery mode
// are set.
func (cfg App) Validate() error {
	missing := func(field string) error {
		return errors.ConfigError{Reason: errors.MissingFieldError{Field: field}.Error()}
	}

	if cfg.LocalDir == "" {
		return missing("localDir")
	}
	if cfg.RemoteDeviceID == "" {
		return missing("remoteDeviceID")
	}

	switch cfg.Mode {
	case ModeMounted:
		if cfg.MountPath == "" {
			return errors.ConfigError{Reason: "mounted mode requires mountPath, " +
				"and it couldn't be detected from remote.path"}
		}
	case ModeSSH:
		if cfg.Remote.User == "" {
			return missing("remote.user")
		}
		if cfg.Remote.Host == "" {
			return missing("remote.host")
		}
		if cfg.Remote.Path == "" {
			return missing("remote.path")
		}
		if cfg.Remote.Port <= 0 || cfg.Remote.Port > 65535 {
			return errors.ConfigError{Reason: fmt.Sprintf(
				"remote.port %d is out of range", cfg.Remote.Port)}
		}
	case "":
		return missing("mode")
	default:
		return errors.ConfigError{Reason: fmt.Sprintf(
			"unknown mode %q (expected %q or %q)", cfg.Mode, ModeMounted, ModeSSH)}
	}

	if _, _, err := net.SplitHostPort(cfg.APIAddress); err != nil {
		return errors.ConfigError{Reason: fmt.Sprintf(
			"apiAddress %q is not a host:port pair", cfg.APIAddress)}
	}

	if strings.ContainsRune(cfg.MarkerFile, '/') {
		return errors.ConfigError{Reason: fmt.Sprintf(
			"markerFile %q must be a file name, not a path", cfg.MarkerFile)}
	}
	return nil
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseApp parses the app config stored in the default path, fills in
// defaults and validates it.
func ParseApp() (App, error) {
	path, err := GetAppConfigPath()
	if err != nil {
		return App{}, errors.WithContext(err, "expand config path")
	}

	cfg := App{Version: InitialAppConfigVersion}
	err = readVersioned(path, InitialAppConfigVersion, SupportedAppConfigVersion, &cfg)
	if err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return App{}, errors.NewFriendlyError("The turbosync config "+
				"file doesn't exist at %q. Please run `turbosync config` "+
				"to create it.", path)
		}
		return App{}, errors.WithContext(err, "parse")
	}

	cfg, err = cfg.withDefaults()
	if err != nil {
		return App{}, errors.WithContext(err, "apply defaults")
	}

	if err := cfg.Validate(); err != nil {
		return App{}, err
	}
	return cfg, nil
}

// withDefaults fills in unset optional fields and expands `~` in every path.
func (cfg App) withDefaults() (App, error) {
	if cfg.Remote.Port == 0 {
		cfg.Remote.Port = DefaultSSHPort
	}
	if cfg.APIAddress == "" {
		cfg.APIAddress = DefaultAPIAddress
	}
	if cfg.MarkerFile == "" {
		cfg.MarkerFile = DefaultMarkerFile
	}
	if cfg.SyncIntervalMinutes <= 0 {
		cfg.SyncIntervalMinutes = DefaultSyncIntervalMinutes
	}
	if cfg.Watch.DelaySeconds <= 0 {
		cfg.Watch.DelaySeconds = DefaultWatchDelaySeconds
	}
	if cfg.Daemon.Binary == "" {
		cfg.Daemon.Binary = DefaultDaemonBinary
	}
	if cfg.Daemon.Home == "" {
		cfg.Daemon.Home = DefaultDaemonHome
	}
	if cfg.Daemon.LogFile == "" {
		cfg.Daemon.LogFile = DefaultDaemonLogFile
	}

	// The remote path is sometimes copied from a shell, quotes included.
	cfg.Remote.Path = strings.Trim(cfg.Remote.Path, `"'`)

	for _, path := range []*string{&cfg.LocalDir, &cfg.MountPath,
		&cfg.Remote.IdentityFile, &cfg.Remote.KnownHostsFile, &cfg.Daemon.Home,
		&cfg.Daemon.LogFile, &cfg.CredentialFile} {
		expanded, err := homedirExpand(*path)
		if err != nil {
			return App{}, errors.WithContext(err, fmt.Sprintf("expand %q", *path))
		}
		*path = expanded
	}

	if cfg.CredentialFile == "" {
		cfg.CredentialFile = filepath.Join(cfg.Daemon.Home, credentialFileName)
	}

	if cfg.Mode == ModeMounted && cfg.MountPath == "" {
		if detected, ok := DetectMountPath(cfg.Remote.Path); ok {
			cfg.MountPath = detected
		}
	}
	return cfg, nil
}

// WriteApp writes the given app config to disk.
func WriteApp(cfg App) error {
	cfg.Version = SupportedAppConfigVersion
	path, err := GetAppConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	// The file may contain the daemon's API key.
	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetAppConfigPath returns the expanded path to the app config.
func GetAppConfigPath() (string, error) {
	return homedirExpand(AppConfigPath)
}

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/turbosync/cmd/util"
	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout         io.Writer = os.Stdout
	stdin          io.Reader = os.Stdin
	parseAppConfig           = config.ParseApp
	writeAppConfig           = config.WriteApp
	getConfigPath            = config.GetAppConfigPath
	detectMount              = config.DetectMountPath
	getCurrentUser           = user.Current
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.App
	var mode string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the turbosync configuration",
		Long: "Write the turbosync configuration. Required settings that aren't\n" +
			"passed as flags are prompted for interactively.",
		Run: func(_ *cobra.Command, _ []string) {
			cliOpts.Mode = config.DiscoveryMode(mode)
			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cliOpts.LocalDir, "local-dir", "",
		"The local directory that synced folders are placed in.")
	flags.StringVar(&mode, "mode", "",
		"How marker files are discovered: `mounted` or `ssh`.")
	flags.StringVar(&cliOpts.MountPath, "mount-path", "",
		"The local mount point of the remote share (mounted mode).")
	flags.StringVar(&cliOpts.Remote.Path, "remote-path", "",
		"The path of the live work tree on the remote host.")
	flags.StringVar(&cliOpts.Remote.User, "remote-user", "", "The SSH user (ssh mode).")
	flags.StringVar(&cliOpts.Remote.Host, "remote-host", "", "The SSH host (ssh mode).")
	flags.IntVar(&cliOpts.Remote.Port, "remote-port", 0, "The SSH port (ssh mode).")
	flags.StringVar(&cliOpts.Remote.IdentityFile, "identity-file", "",
		"A private key to authenticate with, in addition to the SSH agent.")
	flags.StringVar(&cliOpts.RemoteDeviceID, "remote-device-id", "",
		"The sync daemon ID of the remote device.")
	flags.StringVar(&cliOpts.APIAddress, "api-address", "",
		"The address of the sync daemon's REST API.")
	flags.StringVar(&cliOpts.APIKey, "api-key", "",
		"The sync daemon's API key. Read from the daemon's config if not set.")
	flags.IntVar(&cliOpts.SyncIntervalMinutes, "sync-interval", 0,
		"Minutes between scheduled reconciliations.")
	flags.BoolVar(&cliOpts.Watch.Enabled, "watch", false,
		"Reconcile when the mounted tree changes (mounted mode).")
	flags.BoolVar(&cliOpts.Daemon.Manage, "manage-daemon", false,
		"Start and stop the sync daemon with `turbosync run`.")
	flags.StringVar(&cliOpts.NotifyWebhook, "notify-webhook", "",
		"A URL that reconciliation results are POSTed to.")
	flags.StringVar(&cliOpts.MetricsAddress, "metrics-address", "",
		"Serve Prometheus metrics on this address during `turbosync run`.")

	// Setup the commands for querying the contents of the config.
	type getterSpec struct {
		use, short string
		fn         func(config.App) string
	}

	getters := []getterSpec{
		{
			use:   "get-local-dir",
			short: "Get the local directory that synced folders are placed in",
			fn:    func(cfg config.App) string { return cfg.LocalDir },
		},
		{
			use:   "get-mode",
			short: "Get the discovery mode",
			fn:    func(cfg config.App) string { return string(cfg.Mode) },
		},
		{
			use:   "get-base-dir",
			short: "Get the directory that's scanned for marker files",
			fn:    func(cfg config.App) string { return cfg.BaseDir() },
		},
		{
			use:   "get-remote-device-id",
			short: "Get the sync daemon ID of the remote device",
			fn:    func(cfg config.App) string { return cfg.RemoteDeviceID },
		},
		{
			use:   "get-api-address",
			short: "Get the address of the sync daemon's REST API",
			fn:    func(cfg config.App) string { return cfg.APIAddress },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseAppConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig writes the config described by `cliOpts`, prompting for any
// required settings that are missing.
func SetupConfig(cliOpts config.App) error {
	cfg, err := generateConfig(cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := writeAppConfig(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err := getConfigPath()
	if err != nil {
		return errors.WithContext(err, "get config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

var deviceIDPattern = regexp.MustCompile(`^[A-Z2-7]{7}(-[A-Z2-7]{7}){7}$`)

func deviceIDValidationFn(id string) (string, bool) {
	if deviceIDPattern.MatchString(id) {
		return "", true
	}
	return "Device IDs look like XXXXXXX-XXXXXXX-XXXXXXX-XXXXXXX-XXXXXXX-XXXXXXX-XXXXXXX-XXXXXXX.\n" +
		"You can find the remote device's ID in its sync daemon's web UI under\n" +
		"Actions > Show ID.", false
}

func modeValidationFn(mode string) (string, bool) {
	switch config.DiscoveryMode(mode) {
	case config.ModeMounted, config.ModeSSH:
		return "", true
	}
	return fmt.Sprintf("The mode must be either %q or %q.", config.ModeMounted, config.ModeSSH), false
}

func nonEmptyValidationFn(resp string) (string, bool) {
	if resp == "" {
		return "A value is required.", false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to fill in the required fields that
// weren't set by flags. Optional fields that weren't set by flags keep their
// current value.
func generateConfig(cliOpts config.App) (config.App, error) {
	currConfig, err := parseAppConfig()
	if err != nil {
		currConfig = config.App{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg := mergeOptional(cliOpts, currConfig)

	mode := string(cfg.Mode)
	if mode == "" {
		if err := ask(prompt{
			helpString: "Choose how turbosync finds marked directories.\n" +
				"`mounted` walks a share that's mounted on this machine, and `ssh`\n" +
				"searches the remote host over SSH.",
			prompt:        "Discovery mode",
			defaultAnswer: string(config.ModeMounted),
			currAnswer:    string(currConfig.Mode),
			field:         &mode,
			validationFn:  modeValidationFn,
		}); err != nil {
			return config.App{}, err
		}
		cfg.Mode = config.DiscoveryMode(mode)
	}

	var prompts []prompt
	if cfg.LocalDir == "" {
		prompts = append(prompts, prompt{
			helpString:    "Enter the local directory that synced folders are placed in.",
			prompt:        "Local directory",
			defaultAnswer: config.DefaultLocalDir,
			currAnswer:    currConfig.LocalDir,
			field:         &cfg.LocalDir,
			validationFn:  nonEmptyValidationFn,
		})
	}

	if cfg.Remote.Path == "" {
		prompts = append(prompts, prompt{
			helpString:   "Enter the path of the live work tree on the remote host.",
			prompt:       "Remote path",
			currAnswer:   currConfig.Remote.Path,
			field:        &cfg.Remote.Path,
			validationFn: nonEmptyValidationFn,
		})
	}

	if cfg.Mode == config.ModeSSH {
		if cfg.Remote.Host == "" {
			prompts = append(prompts, prompt{
				helpString:   "Enter the host name of the remote SSH server.",
				prompt:       "Remote host",
				currAnswer:   currConfig.Remote.Host,
				field:        &cfg.Remote.Host,
				validationFn: nonEmptyValidationFn,
			})
		}

		if cfg.Remote.User == "" {
			prompts = append(prompts, prompt{
				helpString:    "Enter the user to log into the remote SSH server as.",
				prompt:        "Remote user",
				defaultAnswer: guessUser(),
				currAnswer:    currConfig.Remote.User,
				field:         &cfg.Remote.User,
				validationFn:  nonEmptyValidationFn,
			})
		}
	}

	if cfg.RemoteDeviceID == "" {
		prompts = append(prompts, prompt{
			helpString:   "Enter the sync daemon ID of the remote device.",
			prompt:       "Remote device ID",
			currAnswer:   currConfig.RemoteDeviceID,
			field:        &cfg.RemoteDeviceID,
			validationFn: deviceIDValidationFn,
		})
	}

	for _, p := range prompts {
		if err := ask(p); err != nil {
			return config.App{}, err
		}
	}

	if cfg.Mode == config.ModeMounted && cfg.MountPath == "" {
		var detected string
		if mountPath, ok := detectMount(cfg.Remote.Path); ok {
			detected = mountPath
		}
		if err := ask(prompt{
			helpString: "Enter the local mount point of the remote share.\n" +
				"It defaults to the mount that was detected for the remote path.",
			prompt:        "Mount path",
			defaultAnswer: detected,
			currAnswer:    currConfig.MountPath,
			field:         &cfg.MountPath,
			validationFn:  nonEmptyValidationFn,
		}); err != nil {
			return config.App{}, err
		}
	}

	return cfg, nil
}

// mergeOptional fills the optional fields of `cfg` that are unset from
// `curr`.
func mergeOptional(cfg, curr config.App) config.App {
	if cfg.Remote.Port == 0 {
		cfg.Remote.Port = curr.Remote.Port
	}
	if cfg.Remote.IdentityFile == "" {
		cfg.Remote.IdentityFile = curr.Remote.IdentityFile
	}
	if cfg.Remote.KnownHostsFile == "" {
		cfg.Remote.KnownHostsFile = curr.Remote.KnownHostsFile
	}
	if cfg.APIAddress == "" {
		cfg.APIAddress = curr.APIAddress
	}
	if cfg.APIKey == "" {
		cfg.APIKey = curr.APIKey
	}
	if cfg.MarkerFile == "" {
		cfg.MarkerFile = curr.MarkerFile
	}
	if cfg.CredentialFile == "" {
		cfg.CredentialFile = curr.CredentialFile
	}
	if cfg.SyncIntervalMinutes == 0 {
		cfg.SyncIntervalMinutes = curr.SyncIntervalMinutes
	}
	if !cfg.Watch.Enabled {
		cfg.Watch.Enabled = curr.Watch.Enabled
	}
	if !cfg.Daemon.Manage {
		cfg.Daemon.Manage = curr.Daemon.Manage
	}
	cfg.Watch.DelaySeconds = curr.Watch.DelaySeconds
	cfg.Daemon.Binary = curr.Daemon.Binary
	cfg.Daemon.Home = curr.Daemon.Home
	cfg.Daemon.LogFile = curr.Daemon.LogFile
	if cfg.NotifyWebhook == "" {
		cfg.NotifyWebhook = curr.NotifyWebhook
	}
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = curr.MetricsAddress
	}
	return cfg
}

func guessUser() string {
	u, err := getCurrentUser()
	if err != nil {
		log.WithError(err).Info("Failed to guess remote user")
		return ""
	}
	return u.Username
}

// ask prompts until the response passes validation, and stores it in
// `p.field`.
func ask(p prompt) error {
	for {
		resp, err := promptUser(p.helpString, p.prompt, p.defaultAnswer, p.currAnswer)
		if err != nil {
			return errors.WithContext(err, "read response")
		}

		if p.validationFn != nil {
			if validationErr, ok := p.validationFn(resp); !ok {
				fmt.Fprintln(stdout, validationErr)
				continue
			}
		}

		*p.field = resp
		return nil
	}
}

var stdinReader *bufio.Reader

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Separate the fields with a blank line.
	defer fmt.Fprintln(stdout)

	if stdinReader == nil {
		stdinReader = bufio.NewReader(stdin)
	}

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	if nOptions := len(options); nOptions > 1 {
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			// Default to the first choice if nothing is entered.
			choice := 1
			if choiceStr = strings.TrimSpace(choiceStr); choiceStr != "" {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					continue
				}
			}

			if choice == nOptions {
				break
			}
			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil && !(err == io.EOF && resp != "") {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

package run

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/turbosync/cmd/util"
	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/fswatch"
	"github.com/sidkik/turbosync/pkg/lock"
	"github.com/sidkik/turbosync/pkg/metrics"
	"github.com/sidkik/turbosync/pkg/notify"
	"github.com/sidkik/turbosync/pkg/reconcile"
	"github.com/sidkik/turbosync/pkg/retry"
	"github.com/sidkik/turbosync/pkg/scheduler"
	"github.com/sidkik/turbosync/pkg/supervisor"
	"github.com/sidkik/turbosync/pkg/syncthing"
)

const (
	macLogFile   = "~/Library/Logs/TurboSync/turbosync.log"
	otherLogFile = "~/.turbosync/turbosync.log"
	lockFile     = "~/.turbosync/turbosync.lock"
)

// healthPolicy bounds how long to wait for the daemon to come up.
var healthPolicy = retry.Fixed(30, time.Second)

// Mocked for unit testing.
var (
	stdout        io.Writer = os.Stdout
	homedirExpand           = homedir.Expand
	clock                   = clockwork.NewRealClock()
)

// New creates a new `run` command.
func New() *cobra.Command {
	var noLogFile bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the sync daemon's folders in sync with the marked directories",
		Long: "Reconcile periodically, and whenever the mounted tree changes, until\n" +
			"interrupted. Send SIGHUP to reconcile immediately.",
		Run: func(_ *cobra.Command, _ []string) {
			if !noLogFile {
				if err := setupLogFile(); err != nil {
					log.WithError(err).Warn("Failed to setup log file. Logging to stderr only")
				}
			}
			if err := run(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&noLogFile, "no-log-file", false,
		"Only log to stderr.")
	return cmd
}

func run() error {
	cfg, err := config.ParseApp()
	if err != nil {
		return errors.WithContext(err, "read config")
	}

	lockPath, err := homedirExpand(lockFile)
	if err != nil {
		return errors.WithContext(err, "expand lock path")
	}
	runLock, err := lock.Acquire(lockPath)
	if err != nil {
		return errors.WithContext(err, "lock")
	}
	defer func() {
		if err := runLock.Release(); err != nil {
			log.WithError(err).Warn("Failed to release lock")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Daemon.Manage {
		daemon := supervisor.New(cfg, log.StandardLogger())
		if err := daemon.Start(); err != nil {
			return errors.WithContext(err, "start daemon")
		}
		defer func() {
			if err := daemon.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop sync daemon")
			}
		}()
	}

	healthClient := syncthing.New(cfg.APIAddress, "", log.StandardLogger())
	if err := waitForDaemon(ctx, healthClient); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).Warn("Sync daemon isn't healthy yet. Continuing anyway")
	}

	notifier := newNotifier(cfg)
	if cfg.NotifyWebhook != "" {
		log.AddHook(notify.NewLogHook(notify.WebhookNotifier{URL: cfg.NotifyWebhook}))
	}

	var reconciler scheduler.Reconciler = util.NewEngine(log.StandardLogger())
	if cfg.MetricsAddress != "" {
		recorder := metrics.NewRecorder(clock)
		reconciler = recorder.Instrument(reconciler)
		server := serveMetrics(cfg.MetricsAddress, recorder)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Failed to stop metrics server")
			}
		}()
	}

	sched := scheduler.New(reconciler, cfg.SyncInterval(), log.StandardLogger())
	sched.Clock = clock
	sched.OnResult = func(res reconcile.Result) {
		if err := notifier.Notify(notify.FromResult(res, clock.Now())); err != nil {
			log.WithError(err).Debug("Failed to deliver notification")
		}
	}

	if cfg.Watch.Enabled {
		if cfg.Mode != config.ModeMounted {
			log.Info("File watching is only supported in mounted mode. " +
				"Relying on the sync interval instead")
		} else if err := fswatch.Watch(ctx, cfg.MountPath, cfg.WatchDelay(), clock, sched.Trigger); err != nil {
			log.WithError(err).Warn("Failed to watch mount. Relying on the sync interval instead")
		}
	}

	go triggerOnHangup(ctx, sched)

	log.WithField("interval", cfg.SyncInterval()).Info("Started turbosync")
	sched.Run(ctx)
	log.Info("Shutting down")
	return nil
}

// waitForDaemon blocks until the daemon's health endpoint responds.
func waitForDaemon(ctx context.Context, client syncthing.Client) error {
	if err := client.CheckHealth(); err == nil {
		return nil
	}

	pp := util.NewProgressPrinter(stdout, "Waiting for the sync daemon to start")
	go pp.Run()
	defer pp.Stop()

	return retry.Do(ctx, clock, healthPolicy, func(int) error {
		return client.CheckHealth()
	})
}

func newNotifier(cfg config.App) notify.Notifier {
	notifiers := notify.Multi{notify.LogNotifier{Log: log.StandardLogger()}}
	if cfg.NotifyWebhook != "" {
		notifiers = append(notifiers, notify.WebhookNotifier{URL: cfg.NotifyWebhook})
	}
	return notifiers
}

func serveMetrics(address string, recorder *metrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	server := &http.Server{Addr: address, Handler: mux}

	go func() {
		log.WithField("address", address).Info("Serving metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("Metrics server stopped")
		}
	}()
	return server
}

func triggerOnHangup(ctx context.Context, sched *scheduler.Scheduler) {
	hangups := make(chan os.Signal, 1)
	signal.Notify(hangups, syscall.SIGHUP)
	defer signal.Stop(hangups)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangups:
			log.Info("Received SIGHUP. Reconciling")
			sched.Trigger()
		}
	}
}

func logFilePath(goos string) (string, error) {
	path := otherLogFile
	if goos == "darwin" {
		path = macLogFile
	}
	return homedirExpand(path)
}

// setupLogFile sends logs to the log file in addition to stderr.
func setupLogFile() error {
	path, err := logFilePath(runtime.GOOS)
	if err != nil {
		return errors.WithContext(err, "get log path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithContext(err, "create log directory")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.WithContext(err, "open log file")
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, DisableColors: true})
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

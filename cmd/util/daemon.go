package util

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/credential"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/reconcile"
	"github.com/sidkik/turbosync/pkg/scan"
	"github.com/sidkik/turbosync/pkg/syncthing"
)

// NewEngine returns a reconciliation engine that reads the app config from
// its default location before every cycle.
func NewEngine(logger log.FieldLogger) reconcile.Engine {
	return reconcile.Engine{
		LoadConfig:  config.ParseApp,
		Credentials: credential.NewResolver(logger),
		Scanner:     scan.New(logger),
		NewClient: func(address, apiKey string) syncthing.Client {
			return syncthing.New(address, apiKey, logger)
		},
		Log: logger,
	}
}

// NewDaemonClient returns a client for the daemon described by `cfg`.
func NewDaemonClient(ctx context.Context, cfg config.App) (syncthing.Client, error) {
	apiKey, err := credential.NewResolver(log.StandardLogger()).Resolve(ctx, cfg)
	if err != nil {
		return nil, errors.WithContext(err, "get API key")
	}
	return syncthing.New(cfg.APIAddress, apiKey, log.StandardLogger()), nil
}

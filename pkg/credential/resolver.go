// Package credential obtains the API key needed to talk to the sync daemon.
// The daemon generates its key on first start and writes it into its config
// file asynchronously, so the resolver polls that file until the key shows up.
package credential

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/retry"
)

const (
	// DefaultAttempts is how many times the credential file is read before
	// giving up.
	DefaultAttempts = 15

	// DefaultDelay is the wait between reads of the credential file.
	DefaultDelay = 750 * time.Millisecond
)

// DefaultPolicy is the polling policy used by NewResolver.
var DefaultPolicy = retry.Fixed(DefaultAttempts, DefaultDelay)

// Resolver resolves the daemon's API key.
type Resolver struct {
	Fs     afero.Fs
	Clock  clockwork.Clock
	Policy retry.Policy
	Log    logrus.FieldLogger
}

// NewResolver returns a resolver that reads from the OS filesystem with the
// default polling policy.
func NewResolver(log logrus.FieldLogger) Resolver {
	return Resolver{
		Fs:     afero.NewOsFs(),
		Clock:  clockwork.NewRealClock(),
		Policy: DefaultPolicy,
		Log:    log,
	}
}

// errNotYetAvailable signals a retryable miss. It never escapes Resolve.
var errNotYetAvailable = errors.New("API key not yet available")

// Resolve returns the configured API key, or polls the daemon's config file
// for the generated one.
func (r Resolver) Resolve(ctx context.Context, cfg config.App) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}

	if cfg.CredentialFile == "" {
		return "", errors.CredentialError{Reason: "no API key configured and no credential file set"}
	}

	log := r.Log.WithField("path", cfg.CredentialFile)
	var apiKey string
	err := retry.Do(ctx, r.Clock, r.Policy, func(attempt int) error {
		key, err := r.readAPIKey(cfg.CredentialFile)
		if err != nil {
			if errors.Is(err, errNotYetAvailable) {
				log.WithError(err).WithField("attempt", attempt).Debug(
					"Daemon API key not available yet")
				return err
			}
			return retry.Permanent(err)
		}
		apiKey = key
		return nil
	})

	var exhausted retry.ExhaustedError
	switch {
	case err == nil:
		return apiKey, nil
	case errors.As(err, &exhausted):
		return "", errors.CredentialError{
			Reason: fmt.Sprintf("not found after %d attempts", exhausted.Attempts),
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "", errors.CredentialError{Reason: err.Error()}
	default:
		return "", errors.CredentialError{
			Reason: errors.WithContext(err, "read credential file").Error(),
		}
	}
}

type daemonConfig struct {
	GUI struct {
		APIKey string `xml:"apikey"`
	} `xml:"gui"`
}

// readAPIKey reads the API key out of the daemon's XML config. Missing files,
// partially written documents and empty keys are all reported as
// errNotYetAvailable since the daemon may still be writing the file.
func (r Resolver) readAPIKey(path string) (string, error) {
	contents, err := afero.ReadFile(r.Fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.WithContext(errNotYetAvailable, "file missing")
		}
		if os.IsPermission(err) {
			return "", err
		}
		return "", errors.WithContext(errNotYetAvailable, err.Error())
	}

	var parsed daemonConfig
	if err := xml.Unmarshal(contents, &parsed); err != nil {
		return "", errors.WithContext(errNotYetAvailable, fmt.Sprintf("parse: %s", err))
	}

	key := strings.TrimSpace(parsed.GUI.APIKey)
	if key == "" {
		return "", errors.WithContext(errNotYetAvailable, "empty apikey")
	}
	return key, nil
}

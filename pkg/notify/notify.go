// Package notify delivers the outcome of reconciliation cycles, and
// important log messages, to the user.
package notify

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/reconcile"
	"github.com/sidkik/turbosync/pkg/version"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	webhookContentType = "application/json"
	webhookTimeout     = 10 * time.Second

	// hookQueueSize is the number of log notifications that can be waiting
	// for delivery before new ones are dropped.
	hookQueueSize = 32
)

var httpClient = &http.Client{Timeout: webhookTimeout}

// Mocked out for unit testing.
var httpPost = post

func post(url, contentType string, body io.Reader) (*http.Response, error) {
	return httpClient.Post(url, contentType, body)
}

// Notification is a message for the user.
type Notification struct {
	Success bool                   `json:"success"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Time    time.Time              `json:"time"`
	Version string                 `json:"version"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// FromResult converts the result of a reconciliation cycle into a
// notification.
func FromResult(res reconcile.Result, now time.Time) Notification {
	title := "Sync updated"
	switch {
	case !res.Success:
		title = "Sync failed"
	case !res.Updated:
		title = "Sync up to date"
	}
	return Notification{
		Success: res.Success,
		Title:   title,
		Message: res.Message,
		Time:    now,
		Version: version.Version,
	}
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(Notification) error
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

// Notify logs the notification. Failures are logged at error level.
func (n LogNotifier) Notify(notif Notification) error {
	entry := n.Log.WithField("title", notif.Title)
	if notif.Success {
		entry.Info(notif.Message)
	} else {
		entry.Error(notif.Message)
	}
	return nil
}

// WebhookNotifier POSTs notifications as JSON to a URL.
type WebhookNotifier struct {
	URL string
}

// Notify sends the notification. Any non-2xx response is an error.
func (n WebhookNotifier) Notify(notif Notification) error {
	body, err := jsonCodec.Marshal(notif)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	resp, err := httpPost(n.URL, webhookContentType, bytes.NewReader(body))
	if err != nil {
		return errors.WithContext(err, "post")
	}
	defer resp.Body.Close()
	// Drain the body so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi delivers every notification to all of the given notifiers, even if
// some fail. It returns the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(notif Notification) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(notif); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type hook struct {
	levels []logrus.Level
	queue  chan Notification
}

// NewLogHook creates a hook that forwards warnings and errors to `n`.
// Delivery happens in the background so that a slow notifier never holds up
// the code that logged. When the queue is full, entries are dropped.
func NewLogHook(n Notifier) logrus.Hook {
	h := &hook{
		levels: []logrus.Level{logrus.WarnLevel, logrus.ErrorLevel},
		queue:  make(chan Notification, hookQueueSize),
	}
	go h.forward(n)
	return h
}

func (h *hook) Levels() []logrus.Level {
	return h.levels
}

func (h *hook) Fire(entry *logrus.Entry) error {
	fields := map[string]interface{}{}
	for k, v := range entry.Data {
		// Errors don't marshal into anything useful.
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[k] = v
	}

	notif := Notification{
		Title:   fmt.Sprintf("TurboSync %s", entry.Level),
		Message: entry.Message,
		Time:    entry.Time,
		Version: version.Version,
		Fields:  fields,
	}

	select {
	case h.queue <- notif:
	default:
		// Logged below warning level so that the hook doesn't fire on its own
		// failures.
		logrus.WithField("message", entry.Message).Debug("Notification queue full. Dropping log entry")
	}

	// Never return an error because logrus prints it directly to stderr.
	return nil
}

func (h *hook) forward(n Notifier) {
	for notif := range h.queue {
		if err := n.Notify(notif); err != nil {
			logrus.WithError(err).Debug("Failed to forward log entry")
		}
	}
}

// Package syncthing is a client for the sync daemon's REST API.
//
// Every method returns an *errors.APIError for transport or HTTP-level
// failures, including timeouts. A successful call with an empty body returns
// an empty Document rather than an error.
package syncthing

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/turbosync/pkg/errors"
)

const (
	requestTimeout = 10 * time.Second
	healthTimeout  = 2 * time.Second

	// maxStatusWorkers bounds the number of concurrent folder status
	// requests.
	maxStatusWorkers = 4

	healthPath = "/rest/noauth/health"
)

// jsonCodec decodes numbers into json.Number so that unknown fields in the
// daemon's config are written back exactly as they were read. Map keys are
// sorted so that the PUT body is deterministic.
var jsonCodec = jsoniter.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Client is the set of daemon operations turbosync uses.
type Client interface {
	// GetConfig fetches the daemon's full configuration.
	GetConfig() (Config, error)

	// UpdateConfig replaces the daemon's full configuration. Fields missing
	// from `cfg` are dropped by the daemon, so `cfg` should be a modified copy
	// of a fetched config.
	UpdateConfig(cfg Config) error

	GetFolderStatus(id string) (Document, error)

	// GetAllFolderStatuses fetches the status of every configured folder.
	// Folders whose status can't be fetched are left out of the result.
	GetAllFolderStatuses() (map[string]Document, error)

	GetSystemStatus() (Document, error)
	GetSystemVersion() (Document, error)
	GetConnections() (Document, error)
	Restart() error

	// Ping checks that the daemon accepts our API key.
	Ping() error

	// CheckHealth is an unauthenticated liveness probe.
	CheckHealth() error
}

type client struct {
	origin       string
	apiKey       string
	httpClient   *http.Client
	healthClient *http.Client
	log          logrus.FieldLogger
}

// New creates a client for the daemon listening on `address` (host:port).
func New(address, apiKey string, log logrus.FieldLogger) Client {
	return &client{
		origin:       "http://" + address,
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: requestTimeout},
		healthClient: &http.Client{Timeout: healthTimeout},
		log:          log,
	}
}

func (c *client) GetConfig() (Config, error) {
	var cfg Config
	if err := c.do(http.MethodGet, "/config", nil, nil, &cfg); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Config{}
	}
	return cfg, nil
}

func (c *client) UpdateConfig(cfg Config) error {
	return c.do(http.MethodPut, "/config", nil, cfg, nil)
}

func (c *client) GetFolderStatus(id string) (Document, error) {
	return c.getDocument("/db/status", url.Values{"folder": []string{id}})
}

type statusResult struct {
	id     string
	status Document
	err    error
}

func (c *client) GetAllFolderStatuses() (map[string]Document, error) {
	cfg, err := c.GetConfig()
	if err != nil {
		return nil, err
	}

	ids := cfg.FolderIDs()
	statuses := map[string]Document{}
	if len(ids) == 0 {
		return statuses, nil
	}

	numWorkers := maxStatusWorkers
	if len(ids) < numWorkers {
		numWorkers = len(ids)
	}

	var wg sync.WaitGroup
	jobs := make(chan string, len(ids))
	results := make(chan statusResult, len(ids))
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				status, err := c.GetFolderStatus(id)
				results <- statusResult{id, status, err}
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			c.log.WithError(res.err).WithField("folder", res.id).Warn("Failed to get folder status")
			continue
		}
		statuses[res.id] = res.status
	}
	return statuses, nil
}

func (c *client) GetSystemStatus() (Document, error) {
	return c.getDocument("/system/status", nil)
}

func (c *client) GetSystemVersion() (Document, error) {
	return c.getDocument("/system/version", nil)
}

func (c *client) GetConnections() (Document, error) {
	return c.getDocument("/system/connections", nil)
}

func (c *client) Restart() error {
	return c.do(http.MethodPost, "/system/restart", nil, nil, nil)
}

func (c *client) Ping() error {
	var resp Document
	if err := c.do(http.MethodPost, "/system/ping", nil, nil, &resp); err != nil {
		return err
	}
	if resp.String("ping") != "pong" {
		return &errors.APIError{
			Method:   http.MethodPost,
			Endpoint: "/system/ping",
			Err:      fmt.Errorf("unexpected response %v", map[string]interface{}(resp)),
		}
	}
	return nil
}

func (c *client) CheckHealth() error {
	apiErr := func(err error, status int) error {
		return &errors.APIError{Method: http.MethodGet, Endpoint: healthPath, StatusCode: status, Err: err}
	}

	resp, err := c.healthClient.Get(c.origin + healthPath)
	if err != nil {
		return apiErr(err, 0)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return apiErr(nil, resp.StatusCode)
	}
	return nil
}

func (c *client) getDocument(endpoint string, query url.Values) (Document, error) {
	var doc Document
	if err := c.do(http.MethodGet, endpoint, query, nil, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// do sends an authenticated request to the REST API. `body` is JSON encoded
// if non-nil, and the response is decoded into `out` if non-nil.
func (c *client) do(method, endpoint string, query url.Values, body, out interface{}) error {
	apiErr := func(err error, status int) error {
		return &errors.APIError{Method: method, Endpoint: endpoint, StatusCode: status, Err: err}
	}

	u := c.origin + "/rest" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		bodyBytes, err := jsonCodec.Marshal(body)
		if err != nil {
			return apiErr(errors.WithContext(err, "marshal"), 0)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return apiErr(errors.WithContext(err, "new request"), 0)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiErr(err, 0)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiErr(errors.WithContext(err, "read body"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
			"body":     string(respBytes),
		}).Debug("Daemon API request failed")
		return apiErr(nil, resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(respBytes)) == 0 {
		return nil
	}
	if err := jsonCodec.Unmarshal(respBytes, out); err != nil {
		return apiErr(errors.WithContext(err, "decode response"), resp.StatusCode)
	}
	return nil
}

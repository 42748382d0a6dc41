package syncthing

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/turbosync/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*client, *logrusTest.Hook) {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	logger, hook := logrusTest.NewNullLogger()
	c := New(strings.TrimPrefix(ts.URL, "http://"), "secret", logger).(*client)
	return c, hook
}

func TestAuthenticatedRequests(t *testing.T) {
	type request struct {
		method, path, query, auth, body string
	}
	var requests []request

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, request{r.Method, r.URL.Path, r.URL.RawQuery,
			r.Header.Get("Authorization"), string(body)})

		switch r.URL.Path {
		case "/rest/config":
			if r.Method == http.MethodGet {
				io.WriteString(w, `{"folders":[],"devices":[],"version":37}`)
			}
		case "/rest/db/status":
			io.WriteString(w, `{"state":"idle","globalBytes":10,"localBytes":5}`)
		case "/rest/system/status":
			io.WriteString(w, `{"myID":"LOCAL-ID"}`)
		case "/rest/system/connections":
			io.WriteString(w, `{"connections":{}}`)
		case "/rest/system/ping":
			io.WriteString(w, `{"ping":"pong"}`)
		case "/rest/system/restart":
			io.WriteString(w, `{"ok":"restarting"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	cfg, err := c.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "37", cfg["version"].(interface{ String() string }).String())

	require.NoError(t, c.UpdateConfig(cfg))

	status, err := c.GetFolderStatus("proj 1")
	require.NoError(t, err)
	assert.Equal(t, FolderStatus{State: "idle", Completion: 50}, ParseFolderStatus(status))

	sys, err := c.GetSystemStatus()
	require.NoError(t, err)
	assert.Equal(t, "LOCAL-ID", sys.String("myID"))

	conns, err := c.GetConnections()
	require.NoError(t, err)
	assert.Contains(t, conns, "connections")

	assert.NoError(t, c.Ping())
	assert.NoError(t, c.Restart())

	expPaths := []string{"/rest/config", "/rest/config", "/rest/db/status",
		"/rest/system/status", "/rest/system/connections", "/rest/system/ping",
		"/rest/system/restart"}
	expMethods := []string{"GET", "PUT", "GET", "GET", "GET", "POST", "POST"}
	require.Len(t, requests, len(expPaths))
	for i, req := range requests {
		assert.Equal(t, expPaths[i], req.path)
		assert.Equal(t, expMethods[i], req.method)
		assert.Equal(t, "Bearer secret", req.auth)
	}
	assert.Equal(t, "folder=proj+1", requests[2].query)
	assert.Equal(t, `{"devices":[],"folders":[],"version":37}`, requests[1].body)
}

func TestEmptyResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	doc, err := c.GetSystemStatus()
	assert.NoError(t, err)
	assert.NotNil(t, doc)
	assert.Empty(t, doc)
}

func TestErrorResponses(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/system/ping":
			io.WriteString(w, `{"ping":"nope"}`)
		case "/rest/system/status":
			io.WriteString(w, `{not json`)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	})

	_, err := c.GetConfig()
	assert.Equal(t, &errors.APIError{Method: "GET", Endpoint: "/config", StatusCode: 403}, err)

	err = c.UpdateConfig(Config{})
	assert.Equal(t, &errors.APIError{Method: "PUT", Endpoint: "/config", StatusCode: 403}, err)

	_, err = c.GetSystemStatus()
	var apiErr *errors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "/system/status", apiErr.Endpoint)
	assert.Contains(t, apiErr.Error(), "decode response")

	err = c.Ping()
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "unexpected response")
}

func TestUnreachable(t *testing.T) {
	logger, _ := logrusTest.NewNullLogger()
	// Nothing listens on port 1.
	c := New("127.0.0.1:1", "secret", logger)

	_, err := c.GetConfig()
	assert.Error(t, err)
	assert.Error(t, c.CheckHealth())
	_, err = c.GetAllFolderStatuses()
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.GetConfig()
	var apiErr *errors.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestCheckHealth(t *testing.T) {
	var healthy int32 = 1
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/noauth/health", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		if atomic.LoadInt32(&healthy) == 1 {
			io.WriteString(w, `{"status":"OK"}`)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	assert.NoError(t, c.CheckHealth())
	atomic.StoreInt32(&healthy, 0)
	assert.Equal(t, &errors.APIError{Method: "GET", Endpoint: "/rest/noauth/health", StatusCode: 503},
		c.CheckHealth())
}

func TestGetAllFolderStatuses(t *testing.T) {
	var inFlight, maxInFlight int32
	c, hook := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/config":
			io.WriteString(w, `{"folders":[{"id":"a"},{"id":"b"},{"id":"c"},`+
				`{"id":"d"},{"id":"e"},{"id":"broken"}]}`)
		case "/rest/db/status":
			n := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxInFlight)
				if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)

			if r.URL.Query().Get("folder") == "broken" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			io.WriteString(w, `{"state":"idle"}`)
		}
	})

	statuses, err := c.GetAllFolderStatuses()
	require.NoError(t, err)
	assert.Len(t, statuses, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, "idle", statuses[id].String("state"))
	}
	assert.NotContains(t, statuses, "broken")
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(maxStatusWorkers))

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "broken", hook.LastEntry().Data["folder"])
}

func TestCodecKeepsNumbers(t *testing.T) {
	var doc Document
	require.NoError(t, jsonCodec.Unmarshal(
		[]byte(`{"rescanIntervalS": 3600, "maxConflicts": -1, "ratio": 1.50}`), &doc))

	assert.Equal(t, json.Number("3600"), doc["rescanIntervalS"])
	interval, ok := doc.Int64("rescanIntervalS")
	assert.True(t, ok)
	assert.Equal(t, int64(3600), interval)

	out, err := jsonCodec.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `{"maxConflicts":-1,"ratio":1.50,"rescanIntervalS":3600}`, string(out))
}

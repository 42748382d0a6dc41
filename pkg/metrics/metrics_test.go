package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/turbosync/pkg/reconcile"
)

type slowReconciler struct {
	clock  clockwork.FakeClock
	result reconcile.Result
}

func (r slowReconciler) Reconcile(ctx context.Context) reconcile.Result {
	r.clock.Advance(3 * time.Second)
	return r.result
}

func TestInstrument(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1569172899, 0))
	recorder := NewRecorder(clock)

	updated := reconcile.Result{Success: true, Updated: true, Added: 2, Removed: 1, Folders: 4}
	res := recorder.Instrument(slowReconciler{clock, updated}).Reconcile(context.Background())
	assert.Equal(t, updated, res)

	recorder.Instrument(slowReconciler{clock, reconcile.Result{Success: true, Folders: 4}}).
		Reconcile(context.Background())
	recorder.Instrument(slowReconciler{clock, reconcile.Result{Message: "Error"}}).
		Reconcile(context.Background())

	assert.Equal(t, float64(1), testutil.ToFloat64(recorder.cycles.WithLabelValues("updated")))
	assert.Equal(t, float64(1), testutil.ToFloat64(recorder.cycles.WithLabelValues("unchanged")))
	assert.Equal(t, float64(1), testutil.ToFloat64(recorder.cycles.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(recorder.foldersAdded))
	assert.Equal(t, float64(1), testutil.ToFloat64(recorder.foldersRemove))
	assert.Equal(t, float64(4), testutil.ToFloat64(recorder.folders))

	// The second cycle finished 6 seconds after the start.
	assert.Equal(t, float64(1569172899+6), testutil.ToFloat64(recorder.lastSuccess))
}

func TestHandler(t *testing.T) {
	recorder := NewRecorder(clockwork.NewFakeClock())
	recorder.Observe(reconcile.Result{Success: true}, 0.5)

	server := httptest.NewServer(recorder.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `turbosync_reconcile_cycles_total{result="unchanged"} 1`)
	assert.Contains(t, string(body), "turbosync_reconcile_duration_seconds_count 1")
}

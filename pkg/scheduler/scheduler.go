// Package scheduler runs reconciliation cycles periodically and on demand,
// never more than one at a time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/turbosync/pkg/reconcile"
)

// Reconciler runs a single reconciliation cycle.
type Reconciler interface {
	Reconcile(ctx context.Context) reconcile.Result
}

// Scheduler serializes reconciliation cycles. Cycles requested while one is
// already running are dropped rather than queued, since the running cycle
// will observe the same state.
type Scheduler struct {
	Reconciler Reconciler
	Interval   time.Duration
	Clock      clockwork.Clock
	Log        logrus.FieldLogger

	// OnResult is called with the result of every cycle that ran.
	OnResult func(reconcile.Result)

	running sync.Mutex
	trigger chan struct{}
}

// New returns a scheduler that runs `r` every `interval`.
func New(r Reconciler, interval time.Duration, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		Reconciler: r,
		Interval:   interval,
		Clock:      clockwork.NewRealClock(),
		Log:        log,
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests a cycle as soon as possible. Multiple triggers that
// arrive before the scheduler gets to them are combined into one cycle.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// TryRun runs a cycle in the calling goroutine unless one is already in
// progress. It returns whether the cycle ran.
func (s *Scheduler) TryRun(ctx context.Context) (reconcile.Result, bool) {
	if !s.running.TryLock() {
		s.Log.Debug("Reconcile already in progress. Skipping")
		return reconcile.Result{}, false
	}
	defer s.running.Unlock()

	res := s.Reconciler.Reconcile(ctx)
	if s.OnResult != nil {
		s.OnResult(res)
	}
	return res, true
}

// Run runs a cycle immediately, and then whenever the interval elapses or
// Trigger is called. It blocks until `ctx` is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	s.TryRun(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Log.Debug("Starting scheduled reconcile")
		case <-s.trigger:
			s.Log.Debug("Starting triggered reconcile")
		}

		// Cycles are started in the background so that a slow cycle doesn't
		// delay shutdown. TryRun drops the request if one is still running.
		go s.TryRun(ctx)
	}
}

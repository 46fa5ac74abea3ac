/*
reconciler.go - Periodic ledger verification sweep

PURPOSE:
  Walks every goal, checks that the cached balance equals the ledger sum,
  and optionally repairs drift through Goals.Reconcile. Drift should never
  happen; the sweep exists to notice it when it does.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Interval <= 0 disables the background loop; RunNow still works
  - Each goal is checked under its own lock, one at a time
  - The last report is kept for the admin endpoint

USAGE:
  rec := NewReconciler(goals, time.Hour, true)
  rec.Start()
  // ... later
  rec.Stop()
*/
package savings

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/pkg/logger"
)

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Checked    int
	Drifted    []generic.GoalID
	Repaired   int
	Failed     int
}

type Reconciler struct {
	Goals      *Goals
	Interval   time.Duration
	AutoRepair bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	reportMu sync.RWMutex
	last     *ReconcileReport
}

func NewReconciler(goals *Goals, interval time.Duration, autoRepair bool) *Reconciler {
	return &Reconciler{
		Goals:      goals,
		Interval:   interval,
		AutoRepair: autoRepair,
	}
}

// Start begins the background sweep.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Interval <= 0 {
		logger.Info("reconciler disabled, not starting")
		return
	}
	if r.ticker != nil {
		return
	}

	r.ticker = time.NewTicker(r.Interval)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run(r.ticker, r.stop)

	logger.Info("reconciler started", "interval", r.Interval, "auto_repair", r.AutoRepair)
}

// Stop stops the sweep and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	r.wg.Wait()
	r.ticker = nil
	logger.Info("reconciler stopped")
}

func (r *Reconciler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		select {
		case <-ticker.C:
			r.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously.
func (r *Reconciler) RunNow(ctx context.Context) ReconcileReport {
	report := ReconcileReport{StartedAt: time.Now().UTC(), Drifted: []generic.GoalID{}}

	goals, err := r.Goals.List(ctx, false)
	if err != nil {
		logger.Error("reconciler could not list goals", "error", err)
		report.Failed++
		report.FinishedAt = time.Now().UTC()
		r.setLast(report)
		return report
	}

	for _, g := range goals {
		if ctx.Err() != nil {
			break
		}
		report.Checked++

		err := r.Goals.Verify(ctx, g.ID)
		switch {
		case err == nil:
			continue
		case errors.Is(err, generic.ErrNotFound):
			// deleted since List
			continue
		case !generic.NeedsOperatorAttention(err):
			logger.Warn("reconciler could not verify goal", "goal_id", g.ID, "error", err)
			report.Failed++
			continue
		}

		report.Drifted = append(report.Drifted, g.ID)
		if !r.AutoRepair {
			continue
		}
		if _, err := r.Goals.Reconcile(ctx, g.ID); err != nil {
			report.Failed++
			continue
		}
		report.Repaired++
	}

	report.FinishedAt = time.Now().UTC()
	r.setLast(report)

	if len(report.Drifted) > 0 || report.Failed > 0 {
		logger.Warn("reconciliation sweep finished with findings",
			"checked", report.Checked,
			"drifted", len(report.Drifted),
			"repaired", report.Repaired,
			"failed", report.Failed,
		)
	} else {
		logger.Debug("reconciliation sweep clean", "checked", report.Checked)
	}
	return report
}

// LastReport returns the most recent sweep, or nil before the first one.
func (r *Reconciler) LastReport() *ReconcileReport {
	r.reportMu.RLock()
	defer r.reportMu.RUnlock()
	if r.last == nil {
		return nil
	}
	cp := *r.last
	return &cp
}

func (r *Reconciler) setLast(report ReconcileReport) {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	r.last = &report
}

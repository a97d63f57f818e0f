package asyncmaster

import (
	"context"
	"time"

	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/gradstate"
	"github.com/muchq/sgdmaster/internal/loss"
	"github.com/muchq/sgdmaster/internal/metrics"
	"github.com/muchq/sgdmaster/internal/stopping"
)

// backoff is the fixed sleep between insufficiently-aged loss probes
// (spec.md §4.7 step 2, "2s").
const backoff = 2 * time.Second

// Monitor is the Async Loss Monitor (spec.md §4.7, C6): a background
// goroutine that periodically samples local loss on a GradState snapshot,
// smooths it, tracks the best-seen (loss, grad) pair, and triggers
// termination once the stopping criterion holds.
type Monitor struct {
	Cell       *gradstate.Cell
	Data       *dataset.Dataset
	Model      loss.Model
	CheckEvery int64
	LeakCoef   float64
	Stopping   stopping.Criterion
	Terminate  func(ctx context.Context)

	lastCheckedStep int64
	smoothed        float64
	initialized     bool
	trace           []float64 // most-recent-first
}

// Run loops until ctx is cancelled (the run ends) or the stopping criterion
// fires. It never blocks the updateGrad path — it computes loss on a
// snapshot and takes the cell's lock only to read it and to commit the
// best tracker.
func (m *Monitor) Run(ctx context.Context) {
	leak := m.LeakCoef
	if leak == 0 {
		leak = 1
	}
	checkEvery := m.CheckEvery
	if checkEvery <= 0 {
		checkEvery = 1
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		snap := m.Cell.Snapshot()
		if snap.Done() {
			return
		}
		if snap.Updates-m.lastCheckedStep < checkEvery {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		l := loss.LocalFull(m.Data, snap.Grad, m.Model)
		if !m.initialized {
			m.smoothed = l
			m.initialized = true
		} else {
			m.smoothed = leak*l + (1-leak)*m.smoothed
		}
		metrics.AsyncLoss.Set(m.smoothed)

		// LocalFull can take a while; re-check Done() and commit the
		// best-tracker update atomically so a maxSteps-triggered
		// EndComputation that raced us to Finish can't be clobbered by
		// a stale best afterwards.
		_, active := m.Cell.UpdateIfBetterActive(m.smoothed, snap.Grad)
		if !active {
			return
		}
		m.trace = append([]float64{m.smoothed}, m.trace...)

		if m.Stopping != nil && m.Stopping(m.trace) {
			if m.Terminate != nil {
				m.Terminate(ctx)
			}
			return
		}
		m.lastCheckedStep = snap.Updates
	}
}

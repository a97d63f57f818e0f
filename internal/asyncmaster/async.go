// Package asyncmaster is the Async Training Coordinator (spec.md §4.5, C5)
// and the Async Loss Monitor (spec.md §4.7, C6): lifecycle of an
// asynchronous run (init, accept streaming gradient updates, terminate) plus
// a background goroutine sampling local loss and tracking the best-seen
// weights. Grounded on the teacher's prom_proxy cache refresh loop
// (ticker + ctx.Done() select) for the monitor's shape.
package asyncmaster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/muchq/sgdmaster/internal/clustercore"
	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/gradstate"
	"github.com/muchq/sgdmaster/internal/loss"
	"github.com/muchq/sgdmaster/internal/metrics"
	"github.com/muchq/sgdmaster/internal/stopping"
	"github.com/muchq/sgdmaster/internal/vector"
)

// Config is spec.md §3's AsyncConfig: the immutable parameters of one run.
type Config struct {
	InitialWeights vector.Vector
	MaxSteps       int64
	Stopping       stopping.Criterion
	BatchSize      int
	Split          dataset.SplitStrategy
	CheckEvery     int64
	LeakCoef       float64 // exponential-smoothing coefficient; 0 defaults to 1 (no smoothing)
	Model          loss.Model
}

// Master is the Async Training Coordinator. One Master serves one run at a
// time, enforced by gradstate.Cell.Start's ErrAlreadyRunning precondition.
type Master struct {
	Core *clustercore.Core
	Data *dataset.Dataset
	Cell *gradstate.Cell

	cancelMonitor context.CancelFunc
}

// New constructs an async Master over the given cluster core and dataset.
func New(core *clustercore.Core, data *dataset.Dataset) *Master {
	return &Master{Core: core, Data: data, Cell: gradstate.NewCell()}
}

// Run performs the atomic init spec.md §4.5 describes and spawns the Async
// Loss Monitor, returning the Completion the caller awaits for the terminal
// GradState. Fails with gradstate.ErrAlreadyRunning if a run is already
// active.
func (m *Master) Run(ctx context.Context, cfg Config) (*gradstate.Completion, error) {
	var completion *gradstate.Completion
	var startErr error
	if err := m.Core.WithClusterReady(ctx, func() {
		completion, startErr = m.Cell.Start(cfg.InitialWeights, m.Core.Clock.Now())
	}); err != nil {
		return nil, err
	}
	if startErr != nil {
		return nil, startErr
	}

	workers := m.Core.Registry.Snapshot()
	var ranges []dataset.Range
	if cfg.Split != nil {
		ranges = cfg.Split(m.Data, len(workers))
	} else {
		var dropped int
		ranges, dropped = dataset.EqualPieces(m.Data, len(workers))
		if dropped > 0 {
			slog.Warn("asyncmaster: dropping trailing remainder samples", "dropped", dropped)
		}
	}
	for i, w := range workers {
		r := ranges[i]
		if err := w.InitAsync(ctx, cfg.InitialWeights.Data(), r.Lo, r.Hi, cfg.BatchSize); err != nil {
			return nil, fmt.Errorf("asyncmaster: seeding worker %s: %w", w.Node(), err)
		}
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	m.cancelMonitor = cancel
	monitor := &Monitor{
		Cell:       m.Cell,
		Data:       m.Data,
		Model:      cfg.Model,
		CheckEvery: cfg.CheckEvery,
		LeakCoef:   cfg.LeakCoef,
		Stopping:   cfg.Stopping,
		Terminate:  func(ctx context.Context) { _ = m.EndComputation(ctx) },
	}
	go monitor.Run(monitorCtx)

	slog.Info("asyncmaster: run started", "workers", len(workers), "max_steps", cfg.MaxSteps)
	return completion, nil
}

// HandleGradUpdate is C7's updateGrad handler (spec.md §4.6): applies
// grad -= delta if the run is active, swallowing late stragglers with a
// plain ack. Terminates the run once updates reaches maxSteps. The
// active-check and the mutation happen inside a single Cell.UpdateIfActive
// call so a straggler dispatched concurrently with EndComputation can never
// land after Finish has already stamped the run terminal.
func (m *Master) HandleGradUpdate(ctx context.Context, delta vector.Vector, maxSteps int64) {
	state, applied := m.Cell.UpdateIfActive(delta)
	if !applied {
		slog.Info("asyncmaster: dropping update for inactive run")
		return
	}
	metrics.AsyncUpdatesTotal.Inc()
	if maxSteps > 0 && state.Updates >= maxSteps {
		slog.Info("asyncmaster: maxSteps reached, terminating", "updates", state.Updates)
		_ = m.EndComputation(ctx)
	}
}

// EndComputation is the atomic termination spec.md §4.5 describes:
// broadcast stopAsync, install the best-tracked weights as final, complete
// the promise. Idempotent — a second call after the run is terminal is a
// no-op (gradstate.Cell.Finish already guarantees this).
func (m *Master) EndComputation(ctx context.Context) error {
	if !m.Cell.Active() {
		return nil
	}
	if m.cancelMonitor != nil {
		m.cancelMonitor()
	}
	for _, w := range m.Core.Registry.Snapshot() {
		if err := w.StopAsync(ctx); err != nil {
			slog.Warn("asyncmaster: stopAsync failed", "worker", w.Node(), "error", err)
		}
	}
	best := m.Cell.Best()
	_, completed := m.Cell.Finish(best.BestGrad, best.BestLoss, m.Core.Clock.Now())
	if completed {
		slog.Info("asyncmaster: run terminated", "best_loss", best.BestLoss)
	}
	return nil
}

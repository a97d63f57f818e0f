// Package syncmaster is the Sync Training Loop (spec.md §4.4, C4):
// synchronous epoch/batch pipelining, scattering gradient requests per
// batch, aggregating replies by mean, and checking the stopping criterion at
// epoch boundaries. Uses the same errgroup scatter/gather shape as
// internal/forward, generalized from prediction-gathering to
// gradient-gathering.
package syncmaster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/muchq/sgdmaster/internal/clustercore"
	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/gradstate"
	"github.com/muchq/sgdmaster/internal/loss"
	"github.com/muchq/sgdmaster/internal/metrics"
	"github.com/muchq/sgdmaster/internal/stopping"
	"github.com/muchq/sgdmaster/internal/vector"
	"github.com/muchq/sgdmaster/internal/wsrpc"
	"golang.org/x/sync/errgroup"
)

// Master runs the synchronous training loop over a shared cluster core and
// dataset. One Master serves one GradState cell at a time — concurrent
// Backward calls on the same Master are rejected by gradstate.Cell.Start's
// ErrAlreadyRunning precondition.
type Master struct {
	Core *clustercore.Core
	Data *dataset.Dataset
	Cell *gradstate.Cell
}

// New constructs a sync Master over the given cluster core and dataset.
func New(core *clustercore.Core, data *dataset.Dataset) *Master {
	return &Master{Core: core, Data: data, Cell: gradstate.NewCell()}
}

// Backward runs epochs full passes of batchSize-batched gradient scatter/
// gather over the registered workers, starting from w0, and returns the
// terminal GradState once either the stopping criterion fires on the
// epoch-end loss trace or epochs is reached — whichever is checked first is
// max-epochs (spec.md §4.4, "max-epochs is checked before stopping; stopping
// is only evaluated on a non-empty loss trace").
func (m *Master) Backward(ctx context.Context, epochs, batchSize int, w0 vector.Vector, stop stopping.Criterion) (gradstate.State, error) {
	if _, err := m.Cell.Start(w0, m.Core.Clock.Now()); err != nil {
		return gradstate.State{}, err
	}

	var losses []float64 // most-recent-first, per spec.md's Criterion contract
	for epoch := 0; epoch < epochs; epoch++ {
		var reportErr error
		if err := m.Core.WithClusterReady(ctx, func() {
			reportErr = m.runEpoch(ctx, batchSize)
		}); err != nil {
			return gradstate.State{}, err
		}
		if reportErr != nil {
			return gradstate.State{}, reportErr
		}

		epochLoss, err := m.epochLoss(ctx)
		if err != nil {
			return gradstate.State{}, err
		}
		metrics.SyncLoss.Set(epochLoss)
		losses = append([]float64{epochLoss}, losses...)
		slog.Info("syncmaster: epoch complete", "epoch", epoch, "loss", epochLoss)

		if epoch+1 >= epochs {
			break
		}
		if len(losses) > 0 && stop != nil && stop(losses) {
			slog.Info("syncmaster: stopping criterion satisfied", "epoch", epoch, "loss", epochLoss)
			break
		}
	}

	finalLoss := 0.0
	if len(losses) > 0 {
		finalLoss = losses[0]
	}
	final, _ := m.Cell.Finish(m.Cell.Snapshot().Grad, finalLoss, m.Core.Clock.Now())
	return final, nil
}

// runEpoch sweeps every batch of one piece, scattering a gradient request
// per worker per batch and applying the mean gradient after each gather
// (spec.md §4.4: "For batch in {0, batchSize, 2*batchSize, ...} ∩ [0, piece)").
func (m *Master) runEpoch(ctx context.Context, batchSize int) error {
	workers := m.Core.Registry.Snapshot()
	if len(workers) == 0 {
		return fmt.Errorf("syncmaster: no workers available")
	}

	pieceRanges, dropped := dataset.EqualPieces(m.Data, len(workers))
	if dropped > 0 {
		slog.Warn("syncmaster: dropping trailing remainder samples", "dropped", dropped)
	}
	piece := pieceRanges[0].Len()

	for batch := 0; batch < piece; batch += batchSize {
		if err := m.runBatch(ctx, workers, pieceRanges, batch, batchSize); err != nil {
			return err
		}
	}
	return nil
}

// runBatch scatters GradientRequest(batchWeights, range) to every worker for
// one batch offset, gathers the replies, and applies grad -= mean(replies).
func (m *Master) runBatch(ctx context.Context, workers []wsrpc.WorkerStub, pieceRanges []dataset.Range, batch, batchSize int) error {
	started := time.Now()
	defer func() { metrics.SyncBatchDuration.Observe(time.Since(started).Seconds()) }()
	weights := m.Cell.Snapshot().Grad
	grads := make([]vector.Vector, len(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		i, w := i, w
		piece := pieceRanges[i]
		lo := piece.Lo + batch
		hi := lo + batchSize
		if hi > piece.Hi {
			hi = piece.Hi
		}
		g.Go(func() error {
			raw, _, _, err := w.Gradient(gctx, lo, hi, weights.Data())
			if err != nil {
				return fmt.Errorf("syncmaster: worker %s range [%d,%d): %w", w.Node(), lo, hi, err)
			}
			vec, err := vector.New(raw)
			if err != nil {
				return fmt.Errorf("syncmaster: worker %s: %w", w.Node(), err)
			}
			grads[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	mean, err := vector.Mean(grads)
	if err != nil {
		return fmt.Errorf("syncmaster: %w", err)
	}
	m.Cell.Update(mean)
	return nil
}

// epochLoss evaluates distributed loss over the current weights, the
// canonical end-of-epoch check spec.md §4.4 calls for.
func (m *Master) epochLoss(ctx context.Context) (float64, error) {
	workers := m.Core.Registry.Snapshot()
	weights := m.Cell.Snapshot().Grad
	l, err := loss.Distributed(ctx, workers, m.Data, weights)
	if err != nil {
		return 0, fmt.Errorf("syncmaster: epoch loss: %w", err)
	}
	return l, nil
}

// Package forward is the Forward Orchestrator (spec.md §4.2, C2): given a
// worker snapshot and a weight vector, partitions the dataset into
// per-worker pieces, scatters prediction requests, and reassembles the
// replies in dispatch order. Concurrent scatter/gather uses
// golang.org/x/sync/errgroup, the canonical Go fan-out-then-wait primitive
// (grounded on the pack's use of x/sync in nehraa-Omnyxnet's dependency
// tree) — matching spec.md's "Future.sequence the replies."
package forward

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/vector"
	"github.com/muchq/sgdmaster/internal/wsrpc"
	"golang.org/x/sync/errgroup"
)

// Dispatch scatters a ForwardRequest to every worker over the dataset's
// equal-piece partition and concatenates the predictions in dispatch
// order. Any single RPC failure fails the whole call; no partial results
// are returned (spec.md §4.2, "Failure of any RPC fails the composite").
func Dispatch(ctx context.Context, workers []wsrpc.WorkerStub, d *dataset.Dataset, weights vector.Vector) ([]float64, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("forward: no workers available")
	}

	ranges, dropped := dataset.EqualPieces(d, len(workers))
	if dropped > 0 {
		slog.Warn("forward: dropping trailing remainder samples", "dropped", dropped, "dataset_size", d.Len(), "workers", len(workers))
	}

	predictions := make([][]float64, len(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range workers {
		i, w, r := i, w, ranges[i]
		g.Go(func() error {
			preds, err := w.Forward(gctx, r.Lo, r.Hi, weights.Data())
			if err != nil {
				return fmt.Errorf("forward: worker %s range [%d,%d): %w", w.Node(), r.Lo, r.Hi, err)
			}
			predictions[i] = preds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(ranges)*(d.Len()/len(workers)))
	for _, p := range predictions {
		out = append(out, p...)
	}
	return out, nil
}

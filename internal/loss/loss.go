// Package loss is the Loss Evaluator (spec.md §4.3, C3): distributed,
// local-full and local-sampled mean-squared-error estimation, grounded on
// the teacher's neuro/loss.MeanSquaredError (Forward: mean((pred-target)^2)).
// The model kernel itself is out of scope (spec.md §1); callers supply it
// as a Model callback.
package loss

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/forward"
	"github.com/muchq/sgdmaster/internal/vector"
	"github.com/muchq/sgdmaster/internal/wsrpc"
)

// Model is the pure (weights, x) -> prediction kernel the core treats as an
// external collaborator.
type Model func(weights vector.Vector, x vector.Vector) float64

func mse(predictions []float64, labels []float64) float64 {
	if len(predictions) == 0 {
		return 0
	}
	sum := 0.0
	for i, p := range predictions {
		d := p - labels[i]
		sum += d * d
	}
	return sum / float64(len(predictions))
}

// Distributed computes loss by calling the Forward Orchestrator across the
// current worker set and reducing mean_i (pred_i - y_i)^2 (spec.md §4.3).
func Distributed(ctx context.Context, workers []wsrpc.WorkerStub, d *dataset.Dataset, weights vector.Vector) (float64, error) {
	predictions, err := forward.Dispatch(ctx, workers, d, weights)
	if err != nil {
		return 0, fmt.Errorf("loss: distributed: %w", err)
	}
	labels := make([]float64, len(predictions))
	for i, ex := range d.Slice(dataset.Range{Lo: 0, Hi: len(predictions)}) {
		labels[i] = ex.Label
	}
	return mse(predictions, labels), nil
}

// LocalFull iterates the entire dataset locally, computing
// mean_i (model(w, x_i) - y_i)^2 without touching any worker (spec.md §4.3,
// §4.7 "cheaper than distributed and does not touch workers").
func LocalFull(d *dataset.Dataset, weights vector.Vector, model Model) float64 {
	examples := d.Slice(dataset.Range{Lo: 0, Hi: d.Len()})
	predictions := make([]float64, len(examples))
	labels := make([]float64, len(examples))
	for i, ex := range examples {
		predictions[i] = model(weights, ex.Features)
		labels[i] = ex.Label
	}
	return mse(predictions, labels)
}

// LocalSampled draws count examples uniformly with replacement and computes
// the same reduction as LocalFull over just that sample (spec.md §4.3).
func LocalSampled(d *dataset.Dataset, weights vector.Vector, model Model, count int, rng *rand.Rand) float64 {
	sample := d.Sample(count, rng)
	predictions := make([]float64, len(sample))
	labels := make([]float64, len(sample))
	for i, ex := range sample {
		predictions[i] = model(weights, ex.Features)
		labels[i] = ex.Label
	}
	return mse(predictions, labels)
}

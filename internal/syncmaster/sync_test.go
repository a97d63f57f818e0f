package syncmaster

import (
	"context"
	"testing"
	"time"

	"github.com/muchq/sgdmaster/internal/clock"
	"github.com/muchq/sgdmaster/internal/clustercore"
	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/node"
	"github.com/muchq/sgdmaster/internal/registry"
	"github.com/muchq/sgdmaster/internal/stopping"
	"github.com/muchq/sgdmaster/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker learns nothing; it returns a fixed gradient so tests can assert
// on exact update arithmetic instead of convergence behavior.
type fakeWorker struct {
	n    node.Node
	grad []float64
}

func (f *fakeWorker) Node() node.Node { return f.n }
func (f *fakeWorker) Forward(_ context.Context, lo, hi int, weights []float64) ([]float64, error) {
	out := make([]float64, hi-lo)
	for i := range out {
		sum := 0.0
		for _, w := range weights {
			sum += w
		}
		out[i] = sum
	}
	return out, nil
}
func (f *fakeWorker) Gradient(context.Context, int, int, []float64) ([]float64, time.Time, time.Time, error) {
	return f.grad, time.Time{}, time.Time{}, nil
}
func (f *fakeWorker) InitAsync(context.Context, []float64, int, int, int) error { return nil }
func (f *fakeWorker) StopAsync(context.Context) error                          { return nil }
func (f *fakeWorker) RegisterSlavePeer(context.Context, node.Node) error       { return nil }
func (f *fakeWorker) UnregisterSlavePeer(context.Context, node.Node) error     { return nil }
func (f *fakeWorker) Close() error                                            { return nil }

func mkDataset(n int) *dataset.Dataset {
	examples := make([]dataset.Example, n)
	for i := range examples {
		examples[i] = dataset.Example{Features: vector.Zeros(2), Label: 0}
	}
	return dataset.New(examples)
}

func setup(t *testing.T, grad []float64) (*Master, *registry.Registry) {
	t.Helper()
	reg := registry.New(1)
	require.NoError(t, reg.Register(node.Node{Host: "a"}, &fakeWorker{n: node.Node{Host: "a"}, grad: grad}))
	core := clustercore.New(reg, clock.NewTestClock())
	m := New(core, mkDataset(10))
	return m, reg
}

func TestBackwardAppliesMeanGradientEachEpoch(t *testing.T) {
	// dataset has 10 samples, 1 worker -> piece=10; batchSize=2 -> 5 batches/epoch.
	m, _ := setup(t, []float64{1, 1})
	w0 := vector.Zeros(2)

	final, err := m.Backward(context.Background(), 3, 2, w0, stopping.Never())
	require.NoError(t, err)
	assert.Equal(t, int64(15), final.Updates, "3 epochs * 5 batches/epoch")
	assert.Equal(t, -15.0, final.Grad.At(0))
	assert.True(t, final.Done())
}

func TestBackwardStopsOnCriterionBeforeMaxEpochs(t *testing.T) {
	// zero gradient -> weights and loss never change -> two identical epoch
	// losses satisfy ConsecutiveDelta on the second epoch.
	m, _ := setup(t, []float64{0, 0})
	w0 := vector.Zeros(2)

	final, err := m.Backward(context.Background(), 10, 2, w0, stopping.ConsecutiveDelta(1e-9))
	require.NoError(t, err)
	assert.Equal(t, int64(10), final.Updates, "must stop after the second epoch's identical loss satisfies the criterion")
}

func TestBackwardRejectsConcurrentRun(t *testing.T) {
	m, _ := setup(t, []float64{1, 1})
	_, err := m.Cell.Start(vector.Zeros(2), time.Time{})
	require.NoError(t, err)

	_, err = m.Backward(context.Background(), 1, 1, vector.Zeros(2), stopping.Never())
	assert.Error(t, err)
}

func TestBackwardFailsFastOnWorkerError(t *testing.T) {
	reg := registry.New(1)
	require.NoError(t, reg.Register(node.Node{Host: "a"}, &failingWorker{n: node.Node{Host: "a"}}))
	core := clustercore.New(reg, clock.NewTestClock())
	m := New(core, mkDataset(10))

	_, err := m.Backward(context.Background(), 1, 1, vector.Zeros(2), stopping.Never())
	assert.Error(t, err)
}

type failingWorker struct{ n node.Node }

func (f *failingWorker) Node() node.Node { return f.n }
func (f *failingWorker) Forward(context.Context, int, int, []float64) ([]float64, error) {
	return nil, assert.AnError
}
func (f *failingWorker) Gradient(context.Context, int, int, []float64) ([]float64, time.Time, time.Time, error) {
	return nil, time.Time{}, time.Time{}, assert.AnError
}
func (f *failingWorker) InitAsync(context.Context, []float64, int, int, int) error { return nil }
func (f *failingWorker) StopAsync(context.Context) error                          { return nil }
func (f *failingWorker) RegisterSlavePeer(context.Context, node.Node) error       { return nil }
func (f *failingWorker) UnregisterSlavePeer(context.Context, node.Node) error     { return nil }
func (f *failingWorker) Close() error                                            { return nil }

package asyncmaster

import (
	"context"
	"testing"
	"time"

	"github.com/muchq/sgdmaster/internal/clock"
	"github.com/muchq/sgdmaster/internal/clustercore"
	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/gradstate"
	"github.com/muchq/sgdmaster/internal/node"
	"github.com/muchq/sgdmaster/internal/registry"
	"github.com/muchq/sgdmaster/internal/stopping"
	"github.com/muchq/sgdmaster/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	n         node.Node
	initCalls int
	stopCalls int
}

func (f *fakeWorker) Node() node.Node { return f.n }
func (f *fakeWorker) Forward(context.Context, int, int, []float64) ([]float64, error) {
	return nil, nil
}
func (f *fakeWorker) Gradient(context.Context, int, int, []float64) ([]float64, time.Time, time.Time, error) {
	return nil, time.Time{}, time.Time{}, nil
}
func (f *fakeWorker) InitAsync(context.Context, []float64, int, int, int) error {
	f.initCalls++
	return nil
}
func (f *fakeWorker) StopAsync(context.Context) error {
	f.stopCalls++
	return nil
}
func (f *fakeWorker) RegisterSlavePeer(context.Context, node.Node) error   { return nil }
func (f *fakeWorker) UnregisterSlavePeer(context.Context, node.Node) error { return nil }
func (f *fakeWorker) Close() error                                        { return nil }

func mkDataset(n int) *dataset.Dataset {
	examples := make([]dataset.Example, n)
	for i := range examples {
		examples[i] = dataset.Example{Features: vector.Zeros(1), Label: 0}
	}
	return dataset.New(examples)
}

func linearModel(w, x vector.Vector) float64 { return w.Mul(x).Sum() }

func setup(t *testing.T) (*Master, *fakeWorker) {
	t.Helper()
	reg := registry.New(1)
	fw := &fakeWorker{n: node.Node{Host: "a"}}
	require.NoError(t, reg.Register(fw.n, fw))
	core := clustercore.New(reg, clock.NewTestClock())
	return New(core, mkDataset(4)), fw
}

func TestRunSeedsWorkersAndRejectsDoubleRun(t *testing.T) {
	m, fw := setup(t)
	cfg := Config{InitialWeights: vector.Zeros(1), MaxSteps: 10, Model: linearModel, Stopping: stopping.Never()}

	_, err := m.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, fw.initCalls)

	_, err = m.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, gradstate.ErrAlreadyRunning)
}

func TestHandleGradUpdateAccumulatesAndTerminatesAtMaxSteps(t *testing.T) {
	m, fw := setup(t)
	cfg := Config{InitialWeights: vector.Zeros(1), MaxSteps: 2, Model: linearModel, Stopping: stopping.Never()}
	_, err := m.Run(context.Background(), cfg)
	require.NoError(t, err)

	m.HandleGradUpdate(context.Background(), vector.MustNew([]float64{1}), cfg.MaxSteps)
	assert.True(t, m.Cell.Active())

	m.HandleGradUpdate(context.Background(), vector.MustNew([]float64{1}), cfg.MaxSteps)
	assert.False(t, m.Cell.Active(), "second update reaches maxSteps and terminates the run")
	assert.Equal(t, 1, fw.stopCalls)
}

func TestHandleGradUpdateIgnoredAfterTermination(t *testing.T) {
	m, _ := setup(t)
	cfg := Config{InitialWeights: vector.Zeros(1), MaxSteps: 1, Model: linearModel, Stopping: stopping.Never()}
	_, err := m.Run(context.Background(), cfg)
	require.NoError(t, err)

	m.HandleGradUpdate(context.Background(), vector.MustNew([]float64{1}), cfg.MaxSteps)
	require.False(t, m.Cell.Active())
	before := m.Cell.Snapshot()

	m.HandleGradUpdate(context.Background(), vector.MustNew([]float64{99}), cfg.MaxSteps)
	after := m.Cell.Snapshot()
	assert.Equal(t, before.Updates, after.Updates, "late updates must not change updates count")
}

func TestEndComputationIsIdempotent(t *testing.T) {
	m, fw := setup(t)
	cfg := Config{InitialWeights: vector.Zeros(1), MaxSteps: 10, Model: linearModel, Stopping: stopping.Never()}
	_, err := m.Run(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, m.EndComputation(context.Background()))
	require.NoError(t, m.EndComputation(context.Background()))
	assert.Equal(t, 1, fw.stopCalls, "EndComputation must be idempotent: only the first call actually stops workers")
}

package loss

import (
	"math/rand"
	"testing"

	"github.com/muchq/sgdmaster/internal/dataset"
	"github.com/muchq/sgdmaster/internal/vector"
	"github.com/stretchr/testify/assert"
)

func linearModel(w vector.Vector, x vector.Vector) float64 {
	return w.Mul(x).Sum()
}

func mkDataset() *dataset.Dataset {
	return dataset.New([]dataset.Example{
		{Features: vector.MustNew([]float64{1, 0}), Label: 1},
		{Features: vector.MustNew([]float64{0, 1}), Label: 1},
		{Features: vector.MustNew([]float64{1, 1}), Label: 2},
	})
}

func TestLocalFullZeroLossForExactFit(t *testing.T) {
	d := mkDataset()
	w := vector.MustNew([]float64{1, 1})
	got := LocalFull(d, w, linearModel)
	assert.InDelta(t, 0.0, got, 1e-9)
}

func TestLocalFullNonzeroLoss(t *testing.T) {
	d := mkDataset()
	w := vector.Zeros(2)
	got := LocalFull(d, w, linearModel)
	assert.InDelta(t, (1.0+1.0+4.0)/3.0, got, 1e-9)
}

func TestLocalSampledDeterministicWithSeededRNG(t *testing.T) {
	d := mkDataset()
	w := vector.MustNew([]float64{1, 1})
	got := LocalSampled(d, w, linearModel, 10, rand.New(rand.NewSource(7)))
	assert.InDelta(t, 0.0, got, 1e-9, "exact-fit weights give zero loss regardless of sample")
}

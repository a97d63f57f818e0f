// Package vector implements the immutable numeric vector algebra the
// coordinator core treats as an external collaborator (SPEC_FULL §1):
// elementwise arithmetic, sparsity metrics, and mean/sum reductions, backed
// by gonum's floats package the way the teacher's neuro/utils.Tensor uses it
// for same-shape elementwise ops.
package vector

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidVector is returned when a vector would be constructed with a
// NaN component. Constructing a vector fails fast on NaN so a malformed
// worker reply is caught at the boundary rather than silently poisoning a
// training run (spec.md §9, "Vector NaN guard").
var ErrInvalidVector = errors.New("invalid vector: NaN component")

// Vector is an immutable, fixed-length numeric vector. Every operation
// returns a new Vector; none mutate the receiver or its arguments.
type Vector struct {
	data []float64
}

// New copies data into a new Vector, rejecting any NaN component.
func New(data []float64) (Vector, error) {
	for i, v := range data {
		if math.IsNaN(v) {
			return Vector{}, fmt.Errorf("%w: component %d", ErrInvalidVector, i)
		}
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	return Vector{data: cp}, nil
}

// MustNew is New but panics on error; used for vector literals in tests.
func MustNew(data []float64) Vector {
	v, err := New(data)
	if err != nil {
		panic(err)
	}
	return v
}

// Zeros returns an n-length vector of zeros.
func Zeros(n int) Vector {
	return Vector{data: make([]float64, n)}
}

// Len returns the number of components.
func (v Vector) Len() int {
	return len(v.data)
}

// Data returns a defensive copy of the underlying slice.
func (v Vector) Data() []float64 {
	cp := make([]float64, len(v.data))
	copy(cp, v.data)
	return cp
}

// At returns the component at index i.
func (v Vector) At(i int) float64 {
	return v.data[i]
}

func (v Vector) clone() []float64 {
	cp := make([]float64, len(v.data))
	copy(cp, v.data)
	return cp
}

// Add returns v + other, elementwise.
func (v Vector) Add(other Vector) Vector {
	result := v.clone()
	floats.Add(result, other.data)
	return Vector{data: result}
}

// Sub returns v - other, elementwise.
func (v Vector) Sub(other Vector) Vector {
	result := v.clone()
	floats.Sub(result, other.data)
	return Vector{data: result}
}

// Mul returns v * other, elementwise.
func (v Vector) Mul(other Vector) Vector {
	result := v.clone()
	floats.Mul(result, other.data)
	return Vector{data: result}
}

// Scale returns v scaled by a constant.
func (v Vector) Scale(c float64) Vector {
	result := v.clone()
	floats.Scale(c, result)
	return Vector{data: result}
}

// Sum returns the sum of all components.
func (v Vector) Sum() float64 {
	return floats.Sum(v.data)
}

// Mean returns the arithmetic mean of all components.
func (v Vector) Mean() float64 {
	if len(v.data) == 0 {
		return 0
	}
	return floats.Sum(v.data) / float64(len(v.data))
}

// Sparsity returns the fraction of components within eps of zero.
func (v Vector) Sparsity(eps float64) float64 {
	if len(v.data) == 0 {
		return 0
	}
	zeros := 0
	for _, x := range v.data {
		if math.Abs(x) <= eps {
			zeros++
		}
	}
	return float64(zeros) / float64(len(v.data))
}

// Mean reduces a slice of same-length Vectors to their componentwise mean,
// the operation C4's sync training loop uses to aggregate per-worker
// gradients (spec.md §4.4: "grad = mean(replies.grad)").
func Mean(vs []Vector) (Vector, error) {
	if len(vs) == 0 {
		return Vector{}, fmt.Errorf("vector.Mean: empty input")
	}
	n := vs[0].Len()
	sum := make([]float64, n)
	for _, v := range vs {
		if v.Len() != n {
			return Vector{}, fmt.Errorf("vector.Mean: length mismatch: %d vs %d", v.Len(), n)
		}
		floats.Add(sum, v.data)
	}
	floats.Scale(1/float64(len(vs)), sum)
	return Vector{data: sum}, nil
}

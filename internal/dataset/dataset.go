// Package dataset holds the read-only indexed training set (spec.md §3,
// "Dataset") and the pure split-strategy functions the training loops use
// to divide it across workers. Loading is an out-of-scope concern for the
// core per spec.md §1, but a real binary still needs a loader — the CSV
// shape here is grounded on the label-first wine-quality master/worker
// reference retrieved for this spec.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"github.com/muchq/sgdmaster/internal/vector"
)

// Example is a single (featureVector, label) training pair.
type Example struct {
	Features vector.Vector
	Label    float64
}

// Dataset is a read-only indexed array of Examples, addressed by integer
// range. Workers address it by range; the coordinator never mutates it.
type Dataset struct {
	examples []Example
}

// New builds a Dataset from a slice of Examples, owning a copy.
func New(examples []Example) *Dataset {
	cp := make([]Example, len(examples))
	copy(cp, examples)
	return &Dataset{examples: cp}
}

// Len returns the total number of examples.
func (d *Dataset) Len() int {
	return len(d.examples)
}

// Range is a half-open integer range [Lo, Hi) into a Dataset.
type Range struct {
	Lo, Hi int
}

// Len returns the number of indices the range spans.
func (r Range) Len() int {
	return r.Hi - r.Lo
}

// Slice returns the examples in [r.Lo, r.Hi).
func (d *Dataset) Slice(r Range) []Example {
	return d.examples[r.Lo:r.Hi]
}

// Sample draws count examples uniformly at random, with replacement —
// used by the Loss Evaluator's local-sampled mode (spec.md §4.3).
func (d *Dataset) Sample(count int, rng *rand.Rand) []Example {
	out := make([]Example, count)
	for i := 0; i < count; i++ {
		out[i] = d.examples[rng.Intn(len(d.examples))]
	}
	return out
}

// SplitStrategy partitions a Dataset of N examples across w workers,
// returning one Range per worker. The core treats this as an opaque
// callback (spec.md §9); it never inspects the partition beyond dispatching
// to it.
type SplitStrategy func(d *Dataset, w int) []Range

// EqualPieces is the default split strategy described by spec.md §4.2:
// piece = floor(N/W) contiguous samples per worker, trailing remainder
// dropped. Returns the number of dropped examples alongside the ranges so
// callers can log the documented limitation.
func EqualPieces(d *Dataset, w int) ([]Range, int) {
	if w <= 0 {
		return nil, d.Len()
	}
	piece := d.Len() / w
	ranges := make([]Range, w)
	for i := 0; i < w; i++ {
		ranges[i] = Range{Lo: i * piece, Hi: (i + 1) * piece}
	}
	dropped := d.Len() - w*piece
	return ranges, dropped
}

// LoadCSV reads a label-first CSV file: column 0 is the label, the
// remaining columns are features. Blank lines are skipped.
func LoadCSV(r io.Reader) (*Dataset, error) {
	scanner := bufio.NewScanner(r)
	var examples []Example
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		label, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d: parse label: %w", line, err)
		}
		feats := make([]float64, 0, len(fields)-1)
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("dataset: line %d: parse feature: %w", line, err)
			}
			feats = append(feats, v)
		}
		vec, err := vector.New(feats)
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", line, err)
		}
		examples = append(examples, Example{Features: vec, Label: label})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: scan: %w", err)
	}
	return New(examples), nil
}

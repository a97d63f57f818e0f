package dataset

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCSV(t *testing.T) {
	csv := "1.0,0.1,0.2\n0.0,0.3,0.4\n\n"
	d, err := LoadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, 1.0, d.Slice(Range{0, 2})[0].Label)
}

func TestLoadCSVRejectsBadRow(t *testing.T) {
	_, err := LoadCSV(strings.NewReader("not-a-number,1,2\n"))
	require.Error(t, err)
}

func TestEqualPiecesDropsRemainder(t *testing.T) {
	d := New(make([]Example, 10))
	ranges, dropped := EqualPieces(d, 3)
	require.Len(t, ranges, 3)
	for _, r := range ranges {
		assert.Equal(t, 3, r.Len())
	}
	assert.Equal(t, 1, dropped, "10 samples / 3 workers drops 1 remainder sample")
}

func TestSample(t *testing.T) {
	d := New([]Example{{Label: 1}, {Label: 2}, {Label: 3}})
	samples := d.Sample(5, rand.New(rand.NewSource(1)))
	assert.Len(t, samples, 5)
}

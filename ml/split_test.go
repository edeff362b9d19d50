package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStratifiedSplitKeepsClassProportions(t *testing.T) {
	features := make([][]float64, 100)
	labels := make([]int, 100)
	for i := range features {
		features[i] = []float64{float64(i)}
		if i < 30 {
			labels[i] = 1
		}
	}

	split, err := StratifiedSplit(features, labels, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, split.TestX, 20)
	assert.Len(t, split.TrainX, 80)

	positives := 0
	for _, y := range split.TestY {
		positives += y
	}
	assert.Equal(t, 6, positives)

	seen := make(map[float64]bool)
	for _, row := range append(split.TrainX, split.TestX...) {
		assert.False(t, seen[row[0]], "sample %v assigned twice", row[0])
		seen[row[0]] = true
	}
	assert.Len(t, seen, 100)
}

func TestStratifiedSplitReproducible(t *testing.T) {
	features, labels := syntheticPatients(50, 1)

	a, err := StratifiedSplit(features, labels, 0.2, 42)
	require.NoError(t, err)
	b, err := StratifiedSplit(features, labels, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := StratifiedSplit(features, labels, 0.2, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a.TestX, c.TestX)
}

func TestStratifiedSplitErrors(t *testing.T) {
	_, err := StratifiedSplit(nil, nil, 0.2, 1)
	assert.Error(t, err)
	_, err = StratifiedSplit([][]float64{{1}}, []int{0, 1}, 0.2, 1)
	assert.Error(t, err)
}

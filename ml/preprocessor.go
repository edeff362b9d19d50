package ml

import (
	"errors"
	"fmt"
	"math"
)

// DataPreprocessor standardizes feature columns to zero mean and unit variance.
type DataPreprocessor struct {
	means []float64
	stds  []float64
}

// ComputeStats records the per-column mean and standard deviation of features.
func (p *DataPreprocessor) ComputeStats(features [][]float64) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	width := len(features[0])
	means := make([]float64, width)
	stds := make([]float64, width)
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d has %d values, expected %d", i, len(row), width)
		}
		for j, v := range row {
			means[j] += v
		}
	}
	n := float64(len(features))
	for j := range means {
		means[j] /= n
	}
	for _, row := range features {
		for j, v := range row {
			diff := v - means[j]
			stds[j] += diff * diff
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		// constant columns pass through centered
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	p.means = means
	p.stds = stds
	return nil
}

// Transform returns standardized copies of features.
func (p *DataPreprocessor) Transform(features [][]float64) ([][]float64, error) {
	if p.means == nil {
		return nil, errors.New("feature stats not computed")
	}
	out := make([][]float64, len(features))
	for i, row := range features {
		if len(row) != len(p.means) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(p.means))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - p.means[j]) / p.stds[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// Means returns a copy of the column means.
func (p *DataPreprocessor) Means() []float64 {
	return append([]float64(nil), p.means...)
}

// Stds returns a copy of the column standard deviations.
func (p *DataPreprocessor) Stds() []float64 {
	return append([]float64(nil), p.stds...)
}

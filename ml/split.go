package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

const defaultTestRatio = 0.2

// Split holds a train/test partition of a dataset.
type Split struct {
	TrainX [][]float64
	TrainY []int
	TestX  [][]float64
	TestY  []int
}

// StratifiedSplit partitions features and labels so each class keeps its
// proportion in the test set. The same seed always yields the same split.
func StratifiedSplit(features [][]float64, labels []int, testRatio float64, seed int64) (*Split, error) {
	if len(features) == 0 {
		return nil, errors.New("features is empty")
	}
	if len(features) != len(labels) {
		return nil, errors.New("features and labels size mismatch")
	}
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = defaultTestRatio
	}

	byClass := make(map[int][]int)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	rnd := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for _, class := range classes {
		indices := byClass[class]
		rnd.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		nTest := int(math.Round(float64(len(indices)) * testRatio))
		if nTest >= len(indices) && len(indices) > 1 {
			nTest = len(indices) - 1
		}
		testIdx = append(testIdx, indices[:nTest]...)
		trainIdx = append(trainIdx, indices[nTest:]...)
	}
	rnd.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rnd.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	split := &Split{}
	for _, idx := range trainIdx {
		split.TrainX = append(split.TrainX, features[idx])
		split.TrainY = append(split.TrainY, labels[idx])
	}
	for _, idx := range testIdx {
		split.TestX = append(split.TestX, features[idx])
		split.TestY = append(split.TestY, labels[idx])
	}
	return split, nil
}

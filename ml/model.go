package ml

import "errors"

// Model type identifiers accepted by LoadModel and NewModel.
const (
	ModelTypeLogisticRegression = "logistic_regression"
	ModelTypeDecisionTree       = "decision_tree"
)

var (
	// ErrModelNotFound is returned when a model or feature artifact does not exist.
	ErrModelNotFound = errors.New("model file not found")
	// ErrNotTrained is returned when predicting or saving with an empty model.
	ErrNotTrained = errors.New("model not trained")
)

// MLModel is a binary classifier. Predict returns the class label (0 or 1)
// and the probability of the positive class.
type MLModel interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	Save(path string) error
	Load(path string) error
}

// WeightedModel is implemented by models that expose one weight per input
// feature, used for the feature-importance listing.
type WeightedModel interface {
	Weights() []float64
}

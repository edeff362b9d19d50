package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

const (
	defaultMaxIter = 1000
	defaultC       = 1.0
	defaultTol     = 1e-4
)

// LogisticRegression is an L2-regularized binary logistic regression fitted
// with Newton's method. Coefficients are stored on the raw feature scale.
type LogisticRegression struct {
	Coef      []float64
	Intercept float64

	MaxIter     int
	C           float64
	Tol         float64
	RandomState int64

	NIter     int
	Converged bool
}

type logisticRegressionArtifact struct {
	ModelType   string    `json:"model_type"`
	Coef        []float64 `json:"coef"`
	Intercept   float64   `json:"intercept"`
	MaxIter     int       `json:"max_iter"`
	C           float64   `json:"c"`
	RandomState int64     `json:"random_state"`
	NIter       int       `json:"n_iter"`
	Converged   bool      `json:"converged"`
}

// NewLogisticRegression returns an untrained model. A non-positive maxIter
// selects the default of 1000 iterations.
func NewLogisticRegression(maxIter int, seed int64) *LogisticRegression {
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}
	return &LogisticRegression{
		MaxIter:     maxIter,
		C:           defaultC,
		Tol:         defaultTol,
		RandomState: seed,
	}
}

// Train fits the model. Labels must be 0 or 1 and both classes must be present.
func (lr *LogisticRegression) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if err := checkBinaryLabels(labels); err != nil {
		return err
	}
	if lr.MaxIter <= 0 {
		lr.MaxIter = defaultMaxIter
	}
	if lr.C <= 0 {
		lr.C = defaultC
	}
	if lr.Tol <= 0 {
		lr.Tol = defaultTol
	}

	scaler := &DataPreprocessor{}
	if err := scaler.ComputeStats(features); err != nil {
		return err
	}
	scaled, err := scaler.Transform(features)
	if err != nil {
		return err
	}

	width := len(scaled[0]) + 1
	beta := make([]float64, width)
	lambda := 1 / lr.C
	lr.Converged = false
	lr.NIter = 0

	for iter := 1; iter <= lr.MaxIter; iter++ {
		grad := make([]float64, width)
		hess := make([][]float64, width)
		for i := range hess {
			hess[i] = make([]float64, width)
		}
		for i, row := range scaled {
			p := sigmoid(beta[0] + dot(beta[1:], row))
			diff := p - float64(labels[i])
			weight := p * (1 - p)
			grad[0] += diff
			hess[0][0] += weight
			for j, xj := range row {
				grad[j+1] += diff * xj
				hess[0][j+1] += weight * xj
				hess[j+1][0] += weight * xj
				for k, xk := range row {
					hess[j+1][k+1] += weight * xj * xk
				}
			}
		}
		for j := 1; j < width; j++ {
			grad[j] += lambda * beta[j]
			hess[j][j] += lambda
		}
		hess[0][0] += 1e-10

		step, err := solveLinear(hess, grad)
		if err != nil {
			return fmt.Errorf("newton step %d: %w", iter, err)
		}
		maxStep := 0.0
		for j := range beta {
			beta[j] -= step[j]
			maxStep = math.Max(maxStep, math.Abs(step[j]))
		}
		lr.NIter = iter
		if maxStep < lr.Tol {
			lr.Converged = true
			break
		}
	}

	means, stds := scaler.Means(), scaler.Stds()
	lr.Coef = make([]float64, width-1)
	lr.Intercept = beta[0]
	for j := range lr.Coef {
		lr.Coef[j] = beta[j+1] / stds[j]
		lr.Intercept -= beta[j+1] * means[j] / stds[j]
	}
	return nil
}

// Predict returns the class label and the positive-class probability.
func (lr *LogisticRegression) Predict(features []float64) (int, float64, error) {
	p, err := lr.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	if p > 0.5 {
		return 1, p, nil
	}
	return 0, p, nil
}

// PredictProba returns the probability of the positive class.
func (lr *LogisticRegression) PredictProba(features []float64) (float64, error) {
	if len(lr.Coef) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != len(lr.Coef) {
		return 0, fmt.Errorf("expected %d features, got %d", len(lr.Coef), len(features))
	}
	return sigmoid(lr.Intercept + dot(lr.Coef, features)), nil
}

// Weights returns the raw-scale coefficients.
func (lr *LogisticRegression) Weights() []float64 {
	return append([]float64(nil), lr.Coef...)
}

// Save writes the fitted coefficients as JSON.
func (lr *LogisticRegression) Save(path string) error {
	if len(lr.Coef) == 0 {
		return ErrNotTrained
	}
	payload, err := json.MarshalIndent(logisticRegressionArtifact{
		ModelType:   ModelTypeLogisticRegression,
		Coef:        lr.Coef,
		Intercept:   lr.Intercept,
		MaxIter:     lr.MaxIter,
		C:           lr.C,
		RandomState: lr.RandomState,
		NIter:       lr.NIter,
		Converged:   lr.Converged,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func (lr *LogisticRegression) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact logisticRegressionArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return err
	}
	if artifact.ModelType != "" && artifact.ModelType != ModelTypeLogisticRegression {
		return fmt.Errorf("artifact holds %q, not %q", artifact.ModelType, ModelTypeLogisticRegression)
	}
	if len(artifact.Coef) == 0 {
		return errors.New("artifact has no coefficients")
	}
	lr.Coef = artifact.Coef
	lr.Intercept = artifact.Intercept
	lr.MaxIter = artifact.MaxIter
	lr.C = artifact.C
	lr.RandomState = artifact.RandomState
	lr.NIter = artifact.NIter
	lr.Converged = artifact.Converged
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func checkBinaryLabels(labels []int) error {
	var negatives, positives int
	for i, label := range labels {
		switch label {
		case 0:
			negatives++
		case 1:
			positives++
		default:
			return fmt.Errorf("label %d at index %d is not 0 or 1", label, i)
		}
	}
	if negatives == 0 || positives == 0 {
		return errors.New("training data needs samples of both classes")
	}
	return nil
}

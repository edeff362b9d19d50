package inference

import (
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"heartrisk/ml"
)

// countingModel records how often the underlying model is consulted.
type countingModel struct {
	ml.MLModel
	calls atomic.Int64
}

func (c *countingModel) Predict(features []float64) (int, float64, error) {
	c.calls.Add(1)
	return c.MLModel.Predict(features)
}

func fixtureModel(intercept float64) *ml.LogisticRegression {
	model := ml.NewLogisticRegression(1000, 42)
	model.Coef = []float64{0.05, 0, 0.01, 0.02, 1, 1, 1, 0.5}
	model.Intercept = intercept
	return model
}

func fixtureArtifacts(model ml.MLModel) *Artifacts {
	return &Artifacts{
		Model:        model,
		ModelType:    ml.ModelTypeLogisticRegression,
		FeatureNames: ml.FeatureNames(),
	}
}

func alice() Record {
	return Record{
		Name: "Alice",
		Fields: map[string]float64{
			"age":             45,
			"weight":          70,
			"bloodSugar":      95,
			"bloodPressure":   118,
			"smoker":          0,
			"chronic_disease": 0,
			"diabetic":        0,
			"alcoholic":       0,
		},
	}
}

func highRiskPatient() Record {
	rec := alice()
	rec.Name = "Bob"
	rec.Fields["age"] = 70
	rec.Fields["bloodPressure"] = 160
	rec.Fields["smoker"] = 1
	rec.Fields["chronic_disease"] = 1
	rec.Fields["diabetic"] = 1
	return rec
}

// writeArtifacts persists a fixture model and feature list into dir.
func writeArtifacts(t *testing.T, dir string, intercept float64) (string, string) {
	t.Helper()
	modelPath := filepath.Join(dir, "heart_disease_model.json")
	featuresPath := filepath.Join(dir, "features.csv")
	require.NoError(t, fixtureModel(intercept).Save(modelPath))
	require.NoError(t, ml.SaveFeatureNames(featuresPath, ml.FeatureNames()))
	return modelPath, featuresPath
}

package ml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankFeatures(t *testing.T) {
	ranked, err := RankFeatures([]string{"age", "smoker", "weight"}, []float64{0.05, 1.2, -0.01})
	require.NoError(t, err)
	assert.Equal(t, []FeatureImportance{
		{Feature: "smoker", Importance: 1.2},
		{Feature: "age", Importance: 0.05},
		{Feature: "weight", Importance: -0.01},
	}, ranked)

	_, err = RankFeatures([]string{"age"}, nil)
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	metrics := Metrics{
		Accuracy:    0.8751,
		Precision:   0.8,
		Recall:      0.9,
		Specificity: 0.85,
		ROCAUC:      0.93,
		Confusion:   ConfusionMatrix{TN: 17, FP: 3, FN: 2, TP: 18},
	}
	importance := []FeatureImportance{{Feature: "smoker", Importance: 1.5}, {Feature: "age", Importance: 0.04}}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, metrics, importance))
	out := buf.String()

	lines := strings.Split(out, "\n")
	assert.Equal(t, "Accuracy: 0.88", lines[0])
	assert.Equal(t, "Precision: 0.80", lines[1])
	assert.Equal(t, "Recall (Sensitivity): 0.90", lines[2])
	assert.Equal(t, "Specificity: 0.85", lines[3])
	assert.Equal(t, "ROC AUC: 0.93", lines[4])
	assert.Contains(t, out, "Confusion Matrix:\n[[17 3]\n [2 18]]\n")
	assert.Contains(t, out, "Feature Importance:\n")
	assert.Regexp(t, `smoker\s+1\.500000`, out)
	assert.Less(t, strings.Index(out, "smoker"), strings.Index(out, "age "))
}

func TestWriteReportWithoutImportance(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, Metrics{}, nil))
	assert.NotContains(t, buf.String(), "Feature Importance")
}

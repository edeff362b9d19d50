package inference

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartrisk/ml"
)

func TestPredictOne(t *testing.T) {
	svc, err := NewService(fixtureArtifacts(fixtureModel(-8)))
	require.NoError(t, err)

	result, err := svc.PredictOne(context.Background(), alice())
	require.NoError(t, err)
	assert.Equal(t, "Alice", result.PatientName)
	assert.Equal(t, 0, result.Prediction)
	assert.GreaterOrEqual(t, result.Probability, 0.0)
	assert.LessOrEqual(t, result.Probability, 1.0)
	assert.Equal(t, ml.RiskLevelFromProbability(result.Probability), result.RiskLevel)
	assert.Equal(t, ml.RiskLow, result.RiskLevel)
	assert.Equal(t, "No Heart Disease", result.Outcome())
}

func TestPredictBatch(t *testing.T) {
	svc, err := NewService(fixtureArtifacts(fixtureModel(-8)))
	require.NoError(t, err)

	anonymous := alice()
	anonymous.Name = "  "
	records := []Record{alice(), highRiskPatient(), anonymous}

	results, err := svc.PredictBatch(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, results, len(records))
	assert.Equal(t, "Alice", results[0].PatientName)
	assert.Equal(t, "Bob", results[1].PatientName)
	assert.Equal(t, DefaultPatientName, results[2].PatientName)
	assert.Equal(t, 1, results[1].Prediction)
	assert.Equal(t, ml.RiskHigh, results[1].RiskLevel)
	for _, r := range results {
		assert.Contains(t, []int{0, 1}, r.Prediction)
		assert.GreaterOrEqual(t, r.Probability, 0.0)
		assert.LessOrEqual(t, r.Probability, 1.0)
	}

	empty, err := svc.PredictBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPredictIgnoresExtraFieldsAndOrder(t *testing.T) {
	svc, err := NewService(fixtureArtifacts(fixtureModel(-8)))
	require.NoError(t, err)

	rec := alice()
	rec.Fields["cholesterol"] = 240
	withExtra, err := svc.PredictOne(context.Background(), rec)
	require.NoError(t, err)
	plain, err := svc.PredictOne(context.Background(), alice())
	require.NoError(t, err)
	assert.Equal(t, plain, withExtra)
}

func TestPredictMissingFeaturesNeverCallsModel(t *testing.T) {
	model := &countingModel{MLModel: fixtureModel(-8)}
	svc, err := NewService(fixtureArtifacts(model))
	require.NoError(t, err)

	rec := alice()
	delete(rec.Fields, "bloodPressure")
	_, err = svc.PredictOne(context.Background(), rec)

	var missing *MissingFeaturesError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, []string{"bloodPressure"}, missing.Missing)
	assert.Contains(t, err.Error(), "bloodPressure")
	assert.Zero(t, model.calls.Load())
}

func TestPredictBatchMissingFeaturesIsAllOrNothing(t *testing.T) {
	model := &countingModel{MLModel: fixtureModel(-8)}
	svc, err := NewService(fixtureArtifacts(model))
	require.NoError(t, err)

	first := alice()
	delete(first.Fields, "smoker")
	second := highRiskPatient()
	delete(second.Fields, "age")

	results, err := svc.PredictBatch(context.Background(), []Record{alice(), first, second})
	assert.Nil(t, results)
	var missing *MissingFeaturesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"age", "smoker"}, missing.Missing, "reported in model feature order")
	assert.Zero(t, model.calls.Load())
}

func TestPredictIsIdempotent(t *testing.T) {
	for _, cacheSize := range []int{0, 16} {
		model := &countingModel{MLModel: fixtureModel(-6)}
		svc, err := NewService(fixtureArtifacts(model), WithCache(cacheSize))
		require.NoError(t, err)

		first, err := svc.PredictOne(context.Background(), highRiskPatient())
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := svc.PredictOne(context.Background(), highRiskPatient())
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
		if cacheSize > 0 {
			assert.EqualValues(t, 1, model.calls.Load(), "repeat predictions are served from cache")
		} else {
			assert.EqualValues(t, 6, model.calls.Load())
		}
	}
}

func TestReloadSwapsModelAndPurgesCache(t *testing.T) {
	svc, err := NewService(fixtureArtifacts(fixtureModel(-8)), WithCache(8))
	require.NoError(t, err)

	before, err := svc.PredictOne(context.Background(), alice())
	require.NoError(t, err)

	require.NoError(t, svc.Reload(fixtureArtifacts(fixtureModel(0))))
	after, err := svc.PredictOne(context.Background(), alice())
	require.NoError(t, err)
	assert.Greater(t, after.Probability, before.Probability)

	assert.Error(t, svc.Reload(nil))
	assert.Error(t, svc.Reload(&Artifacts{Model: fixtureModel(0)}))
}

func TestPredictHonoursCancelledContext(t *testing.T) {
	svc, err := NewService(fixtureArtifacts(fixtureModel(-8)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.PredictOne(ctx, alice())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewServiceRejectsEmptyArtifacts(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)
	_, err = NewService(&Artifacts{Model: fixtureModel(0)})
	assert.Error(t, err)
}

func TestPredictRejectsNonFiniteValues(t *testing.T) {
	model := &countingModel{MLModel: fixtureModel(-8)}
	svc, err := NewService(fixtureArtifacts(model))
	require.NoError(t, err)

	rec := alice()
	rec.Fields["age"] = math.NaN()
	_, err = svc.PredictBatch(context.Background(), []Record{alice(), rec})
	assert.ErrorContains(t, err, "age is not a finite number")

	rec.Fields["age"] = math.Inf(1)
	_, err = svc.PredictOne(context.Background(), rec)
	assert.Error(t, err)
}

package http

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartrisk/db"
	"heartrisk/inference"
	"heartrisk/ml"
	"heartrisk/monitoring"
)

func newTestServer(t *testing.T, predictor inference.Predictor, opts ...HandlerOption) http.Handler {
	t.Helper()
	server := NewServer(DefaultServerConfig(), NewHandlers(predictor, opts...), nil, nil)
	return server.Handler()
}

func TestPredictAlice(t *testing.T) {
	handler := newTestServer(t, newTestService(t, newCountingModel()))

	rec := postJSON(t, handler, "/predict", aliceJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	resp := decode[PredictionResponse](t, rec)
	assert.Equal(t, "Alice", resp.PatientName)
	require.NotNil(t, resp.PatientAge)
	assert.Equal(t, 45.0, *resp.PatientAge)
	assert.GreaterOrEqual(t, resp.Probability, 0.0)
	assert.LessOrEqual(t, resp.Probability, 1.0)
	assert.Equal(t, ml.RiskLevelFromProbability(resp.Probability), resp.RiskLevel)
	assert.Equal(t, ml.RiskLow, resp.RiskLevel)
	assert.Equal(t, "No Heart Disease", resp.FinalObservation)
}

func TestPredictHighRisk(t *testing.T) {
	handler := newTestServer(t, newTestService(t, newCountingModel()))

	rec := postJSON(t, handler, "/predict", bobJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[PredictionResponse](t, rec)
	assert.Equal(t, ml.RiskHigh, resp.RiskLevel)
	assert.Equal(t, "Heart Disease", resp.FinalObservation)
}

func TestPredictMissingFeatureNeverCallsModel(t *testing.T) {
	model := newCountingModel()
	handler := newTestServer(t, newTestService(t, model))

	body := strings.Replace(aliceJSON, `"bloodPressure":118,`, "", 1)
	rec := postJSON(t, handler, "/predict", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[map[string]string](t, rec)
	assert.Equal(t, "Missing features: bloodPressure", resp["detail"])
	assert.Zero(t, model.calls.Load())
}

func TestPredictNullFieldIsMissing(t *testing.T) {
	handler := newTestServer(t, newTestService(t, newCountingModel()))

	body := strings.Replace(aliceJSON, `"smoker":0`, `"smoker":null`, 1)
	rec := postJSON(t, handler, "/predict", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing features: smoker")
}

func TestPredictDefaultsNameAndAcceptsBooleans(t *testing.T) {
	handler := newTestServer(t, newTestService(t, newCountingModel()))

	body := `{"age":70,"weight":90,"bloodSugar":95,"bloodPressure":160,` +
		`"smoker":true,"chronic_disease":true,"diabetic":true,"alcoholic":false}`
	rec := postJSON(t, handler, "/predict", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[PredictionResponse](t, rec)
	assert.Equal(t, inference.DefaultPatientName, resp.PatientName)
	assert.Equal(t, ml.RiskHigh, resp.RiskLevel)
}

func TestPredictBadRequests(t *testing.T) {
	model := newCountingModel()
	handler := newTestServer(t, newTestService(t, model))

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{name: "empty body", body: "", detail: "Invalid request body: body is empty"},
		{name: "malformed", body: `{"name":`, detail: "Invalid request body"},
		{name: "array", body: `[1,2]`, detail: "Invalid request body"},
		{name: "non numeric", body: strings.Replace(aliceJSON, `"age":45`, `"age":"old"`, 1), detail: "Invalid value for age: must be a number"},
		{name: "numeric name", body: `{"name":7}`, detail: "Invalid value for name: must be a string"},
		{name: "trailing data", body: aliceJSON + `{}`, detail: "trailing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/predict", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode[map[string]string](t, rec)["detail"], tt.detail)
		})
	}
	assert.Zero(t, model.calls.Load())
}

func TestPredictBodyTooLarge(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 32
	handler := NewServer(cfg, NewHandlers(newTestService(t, newCountingModel())), nil, nil).Handler()

	rec := postJSON(t, handler, "/predict", aliceJSON)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPredictModelNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "model")
	lazy := inference.NewLazy(func() (*inference.Service, error) {
		artifacts, err := inference.LoadArtifacts(inference.ArtifactConfig{
			ModelFile:    "heart_disease_model.json",
			FeaturesFile: "features.csv",
			SearchDirs:   []string{missing},
		})
		if err != nil {
			return nil, err
		}
		return inference.NewService(artifacts)
	})
	metrics := monitoring.NewMetrics()
	handler := newTestServer(t, lazy, WithMetrics(metrics))

	rec := postJSON(t, handler, "/predict", aliceJSON)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decode[map[string]string](t, rec)["detail"]
	assert.True(t, strings.HasPrefix(detail, "Error loading model: "), detail)
}

type failingPredictor struct{}

func (failingPredictor) PredictOne(context.Context, inference.Record) (inference.Result, error) {
	return inference.Result{}, errors.New("numerical overflow")
}

func (failingPredictor) PredictBatch(context.Context, []inference.Record) ([]inference.Result, error) {
	return nil, errors.New("numerical overflow")
}

func TestPredictUnexpectedError(t *testing.T) {
	handler := newTestServer(t, failingPredictor{})

	rec := postJSON(t, handler, "/predict", aliceJSON)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error during prediction: numerical overflow", decode[map[string]string](t, rec)["detail"])
}

func TestPredictBatch(t *testing.T) {
	handler := newTestServer(t, newTestService(t, newCountingModel()))

	rec := postJSON(t, handler, "/predict/batch", "["+aliceJSON+","+bobJSON+"]")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[[]PredictionResponse](t, rec)
	require.Len(t, resp, 2)
	assert.Equal(t, "Alice", resp[0].PatientName)
	assert.Equal(t, "Bob", resp[1].PatientName)
	assert.Equal(t, ml.RiskHigh, resp[1].RiskLevel)

	rec = postJSON(t, handler, "/predict/batch", "[]")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestPredictBatchMissingFeatures(t *testing.T) {
	model := newCountingModel()
	handler := newTestServer(t, newTestService(t, model))

	noAge := strings.Replace(bobJSON, `"age":70,`, "", 1)
	noSmoker := strings.Replace(aliceJSON, `"smoker":0,`, "", 1)
	rec := postJSON(t, handler, "/predict/batch", "["+noSmoker+","+noAge+"]")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing features: age, smoker", decode[map[string]string](t, rec)["detail"])
	assert.Zero(t, model.calls.Load())
}

func TestPredictRecordsHistoryAndMetrics(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "heartrisk.db"))
	require.NoError(t, err)
	defer store.Close()
	metrics := monitoring.NewMetrics()

	handler := newTestServer(t, newTestService(t, newCountingModel()),
		WithHistory(store, true), WithMetrics(metrics))

	require.Equal(t, http.StatusOK, postJSON(t, handler, "/predict", aliceJSON).Code)
	require.Equal(t, http.StatusOK, postJSON(t, handler, "/predict/batch", "["+bobJSON+"]").Code)

	records, err := store.RecentPredictions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	names := []string{records[0].PatientName, records[1].PatientName}
	assert.ElementsMatch(t, []string{"Alice", "Bob"}, names)
	assert.NotEmpty(t, records[0].RequestID)

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	rec := newRecorder(handler, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `heartrisk_predictions_total{risk_level="High Risk"} 1`)
	assert.Contains(t, rec.Body.String(), `heartrisk_predictions_total{risk_level="Low Risk"} 1`)
}

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartrisk/db"
)

func TestHealthHandler(t *testing.T) {
	handler := newTestServer(t, newTestService(t, newCountingModel()))

	rec := newRecorder(handler, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHistoryDisabled(t *testing.T) {
	handler := newTestServer(t, newTestService(t, newCountingModel()))

	for _, path := range []string{"/api/predictions", "/api/training"} {
		rec := newRecorder(handler, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "disabled")
	}
}

func TestHistoryEndpoints(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "heartrisk.db"))
	require.NoError(t, err)
	defer store.Close()

	auc := 0.9
	require.NoError(t, store.SaveTrainingLog(context.Background(), db.TrainingLog{
		ModelName: "logistic_regression", Accuracy: 0.85, ROCAUC: &auc, DataPoints: 300,
	}))
	handler := newTestServer(t, newTestService(t, newCountingModel()), WithHistory(store, true))

	for _, body := range []string{aliceJSON, bobJSON, aliceJSON} {
		require.Equal(t, http.StatusOK, postJSON(t, handler, "/predict", body).Code)
	}

	rec := newRecorder(handler, httptest.NewRequest(http.MethodGet, "/api/predictions?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Predictions []db.PredictionRecord `json:"predictions"`
	}](t, rec)
	assert.Len(t, history.Predictions, 2)

	rec = newRecorder(handler, httptest.NewRequest(http.MethodGet, "/api/predictions?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = newRecorder(handler, httptest.NewRequest(http.MethodGet, "/api/predictions?min_risk=High+Risk", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	high := decode[struct {
		Predictions []db.PredictionRecord `json:"predictions"`
	}](t, rec)
	require.Len(t, high.Predictions, 1)
	assert.Equal(t, "Bob", high.Predictions[0].PatientName)

	rec = newRecorder(handler, httptest.NewRequest(http.MethodGet, "/api/predictions?min_risk=Severe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = newRecorder(handler, httptest.NewRequest(http.MethodGet, "/api/training", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[struct {
		Runs []db.TrainingLog `json:"runs"`
	}](t, rec)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, 300, runs.Runs[0].DataPoints)
}

func TestHistoryWithoutRecording(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "heartrisk.db"))
	require.NoError(t, err)
	defer store.Close()
	handler := newTestServer(t, newTestService(t, newCountingModel()), WithHistory(store, false))

	require.Equal(t, http.StatusOK, postJSON(t, handler, "/predict", aliceJSON).Code)
	records, err := store.RecentPredictions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestServer(t, newTestService(t, newCountingModel()))

	rec := newRecorder(handler, httptest.NewRequest(http.MethodGet, "/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"heartrisk/inference"
	"heartrisk/ml"
)

type countingModel struct {
	ml.MLModel
	calls atomic.Int64
}

func (c *countingModel) Predict(features []float64) (int, float64, error) {
	c.calls.Add(1)
	return c.MLModel.Predict(features)
}

func newCountingModel() *countingModel {
	model := ml.NewLogisticRegression(1000, 42)
	model.Coef = []float64{0.05, 0, 0.01, 0.02, 1, 1, 1, 0.5}
	model.Intercept = -8
	return &countingModel{MLModel: model}
}

func newTestService(t *testing.T, model ml.MLModel) *inference.Service {
	t.Helper()
	svc, err := inference.NewService(&inference.Artifacts{
		Model:        model,
		ModelType:    ml.ModelTypeLogisticRegression,
		FeatureNames: ml.FeatureNames(),
	})
	require.NoError(t, err)
	return svc
}

const aliceJSON = `{"name":"Alice","age":45,"weight":70,"bloodSugar":95,"bloodPressure":118,` +
	`"smoker":0,"chronic_disease":0,"diabetic":0,"alcoholic":0}`

const bobJSON = `{"name":"Bob","age":70,"weight":90,"bloodSugar":95,"bloodPressure":160,` +
	`"smoker":1,"chronic_disease":1,"diabetic":1,"alcoholic":0}`

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func newRecorder(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

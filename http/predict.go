package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/inference"
	"heartrisk/ml"
	"heartrisk/monitoring"
)

// PatientRequest is the /predict body: a display name plus numeric fields
// keyed by feature name. Booleans count as 0 or 1.
type PatientRequest struct {
	Name   string
	Fields map[string]float64
}

func (p *PatientRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &badRequestError{msg: "Invalid request body: " + jsonProblem(err)}
	}
	if raw == nil {
		return &badRequestError{msg: "Invalid request body: expected a JSON object"}
	}

	p.Fields = make(map[string]float64, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		if isNull(value) {
			continue
		}
		if key == ml.NameColumn {
			if err := json.Unmarshal(value, &p.Name); err != nil {
				return &badRequestError{msg: "Invalid value for name: must be a string"}
			}
			continue
		}
		v, err := parseNumber(value)
		if err != nil {
			return &badRequestError{msg: fmt.Sprintf("Invalid value for %s: must be a number", key)}
		}
		p.Fields[key] = v
	}
	return nil
}

func (p PatientRequest) record() inference.Record {
	return inference.Record{Name: p.Name, Fields: p.Fields}
}

// PredictionResponse is the /predict success body.
type PredictionResponse struct {
	PatientName      string       `json:"patient_name"`
	Probability      float64      `json:"probability"`
	PatientAge       *float64     `json:"patient_age"`
	RiskLevel        ml.RiskLevel `json:"risk_level"`
	FinalObservation string       `json:"final_observation"`
}

func newPredictionResponse(result inference.Result, rec inference.Record) PredictionResponse {
	resp := PredictionResponse{
		PatientName:      result.PatientName,
		Probability:      result.Probability,
		RiskLevel:        result.RiskLevel,
		FinalObservation: result.Outcome(),
	}
	if age, ok := rec.Fields["age"]; ok {
		resp.PatientAge = &age
	}
	return resp
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req PatientRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeDecodeError(w, err)
		return
	}

	rec := req.record()
	result, err := h.predictor.PredictOne(r.Context(), rec)
	if err != nil {
		h.writePredictError(w, r, err)
		return
	}
	h.observe(r, "/predict", start, []inference.Result{result})
	writeJSON(w, http.StatusOK, newPredictionResponse(result, rec))
}

func (h *Handlers) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var reqs []PatientRequest
	if err := decodeBody(r, &reqs); err != nil {
		h.writeDecodeError(w, err)
		return
	}

	recs := make([]inference.Record, len(reqs))
	for i, req := range reqs {
		recs[i] = req.record()
	}
	results, err := h.predictor.PredictBatch(r.Context(), recs)
	if err != nil {
		h.writePredictError(w, r, err)
		return
	}
	h.observe(r, "/predict/batch", start, results)

	resp := make([]PredictionResponse, len(results))
	for i, result := range results {
		resp[i] = newPredictionResponse(result, recs[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// observe records served predictions in metrics, history and the feed.
// Failures here never fail the request.
func (h *Handlers) observe(r *http.Request, endpoint string, start time.Time, results []inference.Result) {
	requestID := GetRequestID(r.Context())
	if h.metrics != nil {
		h.metrics.ObserveLatency(endpoint, time.Since(start))
		for _, result := range results {
			h.metrics.ObservePrediction(result.RiskLevel)
		}
	}

	if h.store != nil && h.record {
		records := make([]db.PredictionRecord, len(results))
		for i, result := range results {
			records[i] = db.PredictionRecord{
				RequestID:   requestID,
				PatientName: result.PatientName,
				Prediction:  result.Prediction,
				Probability: result.Probability,
				RiskLevel:   result.RiskLevel.String(),
			}
		}
		if err := h.store.SavePredictions(r.Context(), records); err != nil {
			h.logger.Warn("failed to record predictions", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	if h.feed != nil {
		for _, result := range results {
			if err := h.feed.Publish(monitoring.EventPrediction, result); err != nil {
				h.logger.Debug("prediction event not published", zap.Error(err))
				break
			}
		}
	}
}

func (h *Handlers) writeDecodeError(w http.ResponseWriter, err error) {
	if h.metrics != nil {
		h.metrics.ObserveError(monitoring.ErrorKindValidation)
	}
	var tooLarge *http.MaxBytesError
	var bad *badRequestError
	switch {
	case errors.As(err, &tooLarge):
		writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
	case errors.As(err, &bad):
		writeDetail(w, http.StatusBadRequest, bad.msg)
	default:
		writeDetail(w, http.StatusBadRequest, "Invalid request body: "+jsonProblem(err))
	}
}

// writePredictError maps prediction failures onto status codes: missing
// features are the caller's fault, artifact problems and everything else
// are the server's.
func (h *Handlers) writePredictError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *inference.MissingFeaturesError
	var loadErr *inference.LoadError
	kind := monitoring.ErrorKindPrediction
	status := http.StatusInternalServerError
	var detail string

	switch {
	case errors.As(err, &missing):
		kind = monitoring.ErrorKindValidation
		status = http.StatusBadRequest
		detail = "Missing features: " + strings.Join(missing.Missing, ", ")
	case errors.As(err, &loadErr), errors.Is(err, ml.ErrModelNotFound):
		kind = monitoring.ErrorKindModelLoad
		detail = "Error loading model: " + err.Error()
	default:
		detail = "Error during prediction: " + err.Error()
	}

	if h.metrics != nil {
		h.metrics.ObserveError(kind)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("kind", kind),
			zap.Error(err))
	}
	writeDetail(w, status, detail)
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return &badRequestError{msg: "Invalid request body: trailing data after JSON value"}
	}
	return nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func jsonProblem(err error) string {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "body is empty"
	case errors.As(err, &syntax):
		return fmt.Sprintf("malformed JSON at offset %d", syntax.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("expected %s", typeErr.Type)
	default:
		return err.Error()
	}
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/inference"
	"heartrisk/ml"
	"heartrisk/monitoring"
)

// HistoryStore is the persistence used by the history endpoints.
// *db.Store satisfies it.
type HistoryStore interface {
	SavePredictions(ctx context.Context, records []db.PredictionRecord) error
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
}

// Feed publishes prediction events and serves feed subscribers.
// *monitoring.Hub satisfies it.
type Feed interface {
	http.Handler
	Publish(eventType monitoring.EventType, data any) error
}

// Handlers serves the prediction API. Only the predictor is required.
type Handlers struct {
	predictor inference.Predictor
	store     HistoryStore
	record    bool
	feed      Feed
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithHistory enables the history endpoints; record also stores every
// served prediction.
func WithHistory(store HistoryStore, record bool) HandlerOption {
	return func(h *Handlers) {
		h.store = store
		h.record = record
	}
}

// WithFeed publishes every prediction to feed and serves its subscribers.
func WithFeed(feed Feed) HandlerOption {
	return func(h *Handlers) { h.feed = feed }
}

// WithMetrics records prediction metrics and mounts /metrics.
func WithMetrics(metrics *monitoring.Metrics) HandlerOption {
	return func(h *Handlers) { h.metrics = metrics }
}

func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandlers serves predictions from predictor.
func NewHandlers(predictor inference.Predictor, opts ...HandlerOption) *Handlers {
	h := &Handlers{predictor: predictor, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type route struct {
	method  string
	path    string
	handler http.Handler
}

func (h *Handlers) routes() []route {
	routes := []route{
		{http.MethodPost, "/predict", http.HandlerFunc(h.handlePredict)},
		{http.MethodPost, "/predict/batch", http.HandlerFunc(h.handlePredictBatch)},
		{http.MethodGet, "/api/health", http.HandlerFunc(h.handleHealth)},
		{http.MethodGet, "/api/predictions", http.HandlerFunc(h.handlePredictions)},
		{http.MethodGet, "/api/training", http.HandlerFunc(h.handleTraining)},
	}
	if h.feed != nil {
		routes = append(routes, route{http.MethodGet, "/api/ws/predictions", h.feed})
	}
	if h.metrics != nil {
		routes = append(routes, route{http.MethodGet, "/metrics", h.metrics.Handler()})
	}
	return routes
}

// Register mounts every route on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	for _, rt := range h.routes() {
		mux.Handle(rt.method+" "+rt.path, rt.handler)
	}
}

// Paths lists the mounted route paths.
func (h *Handlers) Paths() []string {
	routes := h.routes()
	paths := make([]string, len(routes))
	for i, rt := range routes {
		paths[i] = rt.path
	}
	return paths
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeDetail(w, http.StatusNotFound, "Prediction history is disabled")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeDetail(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	var minRisk ml.RiskLevel
	if raw := r.URL.Query().Get("min_risk"); raw != "" {
		level, err := ml.RiskLevelFromString(raw)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "min_risk must be one of Low Risk, Medium Risk, High Risk")
			return
		}
		minRisk = level
	}
	records, err := h.store.RecentPredictions(r.Context(), limit)
	if err != nil {
		h.logger.Error("load prediction history failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Error loading prediction history: "+err.Error())
		return
	}
	if minRisk != "" {
		records = atLeast(records, minRisk)
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": records})
}

// atLeast keeps the records whose risk level is minRisk or higher.
func atLeast(records []db.PredictionRecord, minRisk ml.RiskLevel) []db.PredictionRecord {
	kept := make([]db.PredictionRecord, 0, len(records))
	for _, rec := range records {
		if ml.RiskLevel(rec.RiskLevel).Severity() >= minRisk.Severity() {
			kept = append(kept, rec)
		}
	}
	return kept
}

func (h *Handlers) handleTraining(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeDetail(w, http.StatusNotFound, "Training log is disabled")
		return
	}
	logs, err := h.store.LoadTrainingLog(r.Context())
	if err != nil {
		h.logger.Error("load training log failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Error loading training log: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": logs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail writes the {"detail": ...} error body.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// Package inference turns loaded model artifacts into patient predictions.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"heartrisk/ml"
)

// Predictor is the prediction surface consumed by the HTTP layer and CLIs.
type Predictor interface {
	PredictOne(ctx context.Context, rec Record) (Result, error)
	PredictBatch(ctx context.Context, recs []Record) ([]Result, error)
}

type snapshot struct {
	artifacts  *Artifacts
	generation uint64
}

// Service predicts with an immutable artifact snapshot shared by all callers.
// Reload swaps the whole snapshot; in-flight calls finish on the old one.
type Service struct {
	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
	cache      *lru.Cache[string, Result]
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithCache enables an LRU cache of up to size results. size <= 0 disables it.
func WithCache(size int) Option {
	return func(s *Service) error {
		if size <= 0 {
			return nil
		}
		cache, err := lru.New[string, Result](size)
		if err != nil {
			return err
		}
		s.cache = cache
		return nil
	}
}

// WithLogger sets the logger used for reload events.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// NewService wraps loaded artifacts.
func NewService(artifacts *Artifacts, opts ...Option) (*Service, error) {
	if err := checkArtifacts(artifacts); err != nil {
		return nil, err
	}
	s := &Service{logger: zap.NewNop()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.install(artifacts)
	return s, nil
}

// Reload replaces the artifacts and drops cached results.
func (s *Service) Reload(artifacts *Artifacts) error {
	if err := checkArtifacts(artifacts); err != nil {
		return err
	}
	s.install(artifacts)
	s.logger.Info("model artifacts reloaded",
		zap.String("model_path", artifacts.ModelPath),
		zap.String("features_path", artifacts.FeaturesPath),
		zap.Uint64("generation", s.generation.Load()))
	return nil
}

func (s *Service) install(artifacts *Artifacts) {
	snap := &snapshot{artifacts: artifacts, generation: s.generation.Add(1)}
	s.current.Store(snap)
	if s.cache != nil {
		s.cache.Purge()
	}
}

// Artifacts returns the artifacts currently in use.
func (s *Service) Artifacts() *Artifacts {
	return s.current.Load().artifacts
}

// FeatureNames returns a copy of the model's feature order.
func (s *Service) FeatureNames() []string {
	return append([]string(nil), s.Artifacts().FeatureNames...)
}

// PredictOne predicts a single patient.
func (s *Service) PredictOne(ctx context.Context, rec Record) (Result, error) {
	results, err := s.predict(ctx, []Record{rec})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// PredictBatch predicts every record, returning results in input order.
// Nothing is predicted if any record lacks a feature.
func (s *Service) PredictBatch(ctx context.Context, recs []Record) ([]Result, error) {
	if len(recs) == 0 {
		return []Result{}, nil
	}
	return s.predict(ctx, recs)
}

func (s *Service) predict(ctx context.Context, recs []Record) ([]Result, error) {
	snap := s.current.Load()
	names := snap.artifacts.FeatureNames
	if missing := missingFeatures(names, recs); len(missing) > 0 {
		return nil, &MissingFeaturesError{Missing: missing}
	}

	results := make([]Result, len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vector := project(names, rec)
		name := displayName(rec)
		if j := nonFinite(vector); j >= 0 {
			return nil, fmt.Errorf("predict %s: %s is not a finite number", name, names[j])
		}

		var key string
		if s.cache != nil {
			key = cacheKey(snap.generation, name, vector)
			if cached, ok := s.cache.Get(key); ok {
				results[i] = cached
				continue
			}
		}

		label, p, err := snap.artifacts.Model.Predict(vector)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", name, err)
		}
		result := Result{
			PatientName: name,
			Prediction:  label,
			Probability: p,
			RiskLevel:   ml.RiskLevelFromProbability(p),
		}
		if s.cache != nil {
			s.cache.Add(key, result)
		}
		results[i] = result
	}
	return results, nil
}

func nonFinite(vector []float64) int {
	for i, v := range vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

func checkArtifacts(artifacts *Artifacts) error {
	if artifacts == nil || artifacts.Model == nil {
		return errors.New("artifacts have no model")
	}
	if len(artifacts.FeatureNames) == 0 {
		return errors.New("artifacts have no feature names")
	}
	return nil
}

func cacheKey(generation uint64, name string, vector []float64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(generation, 10))
	b.WriteByte('|')
	b.WriteString(name)
	for _, v := range vector {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

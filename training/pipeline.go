// Package training fits a heart-disease classifier from a labeled CSV and
// persists the model, its feature order and an evaluation report.
package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"heartrisk/db"
	"heartrisk/ml"
)

// Config controls one training run.
type Config struct {
	DataPath     string
	Charset      string
	ModelType    string
	ModelPath    string
	FeaturesPath string
	MetricsPath  string
	MaxIter      int
	MaxDepth     int
	TestRatio    float64
	Seed         int64
}

// DefaultConfig trains logistic regression on ./hd_training_dataset.csv and
// writes into models/.
func DefaultConfig() Config {
	return Config{
		DataPath:     "./hd_training_dataset.csv",
		Charset:      "utf-8",
		ModelType:    ml.ModelTypeLogisticRegression,
		ModelPath:    "models/heart_disease_model.json",
		FeaturesPath: "models/features.csv",
		MetricsPath:  "models/model_results.txt",
		MaxIter:      1000,
		MaxDepth:     5,
		TestRatio:    0.2,
		Seed:         42,
	}
}

// Report describes a finished run.
type Report struct {
	ModelType  string                 `json:"model_type"`
	Metrics    ml.Metrics             `json:"metrics"`
	Importance []ml.FeatureImportance `json:"importance,omitempty"`
	DataPoints int                    `json:"data_points"`
	TrainSize  int                    `json:"train_size"`
	TestSize   int                    `json:"test_size"`
	Iterations int                    `json:"iterations,omitempty"`
	Converged  bool                   `json:"converged"`
	Duration   time.Duration          `json:"duration"`
}

// LogStore records finished runs. *db.Store satisfies it.
type LogStore interface {
	SaveTrainingLog(ctx context.Context, entry db.TrainingLog) error
}

// Trainer runs the training pipeline for one Config.
type Trainer struct {
	cfg    Config
	logger *zap.Logger
	store  LogStore
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger; nil keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Trainer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithLogStore appends every successful run to store.
func WithLogStore(store LogStore) Option {
	return func(t *Trainer) { t.store = store }
}

// NewTrainer returns a Trainer for cfg.
func NewTrainer(cfg Config, opts ...Option) *Trainer {
	t := &Trainer{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run loads the dataset, fits on a stratified split, evaluates on the held
// out part and writes all artifacts. Artifacts are replaced only when every
// one of them serialized successfully.
func (t *Trainer) Run(ctx context.Context) (*Report, error) {
	cfg := t.cfg
	if cfg.ModelPath == "" || cfg.FeaturesPath == "" || cfg.MetricsPath == "" {
		return nil, errors.New("model, features and metrics paths are required")
	}
	start := time.Now()
	names := ml.FeatureNames()

	ds, err := ml.OpenDataset(cfg.DataPath, cfg.Charset, names, ml.LabelColumn)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	t.logger.Info("dataset loaded",
		zap.String("path", cfg.DataPath),
		zap.Int("rows", ds.Len()),
		zap.Int("positives", ds.Positives()))

	split, err := ml.StratifiedSplit(ds.X, ds.Y, cfg.TestRatio, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := ml.NewModel(cfg.ModelType, cfg.MaxIter, cfg.MaxDepth, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := model.Train(split.TrainX, split.TrainY); err != nil {
		return nil, fmt.Errorf("train %s: %w", modelTypeName(cfg.ModelType), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics, err := ml.Evaluate(model, split.TestX, split.TestY)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	report := &Report{
		ModelType:  modelTypeName(cfg.ModelType),
		Metrics:    metrics,
		DataPoints: ds.Len(),
		TrainSize:  len(split.TrainY),
		TestSize:   len(split.TestY),
	}
	if weighted, ok := model.(ml.WeightedModel); ok {
		report.Importance, err = ml.RankFeatures(names, weighted.Weights())
		if err != nil {
			return nil, err
		}
	}
	if lr, ok := model.(*ml.LogisticRegression); ok {
		report.Iterations = lr.NIter
		report.Converged = lr.Converged
		if !lr.Converged {
			t.logger.Warn("solver did not converge", zap.Int("max_iter", lr.MaxIter))
		}
	} else {
		report.Converged = true
	}

	err = writeArtifacts([]artifact{
		{path: cfg.ModelPath, write: func(path string) error { return model.Save(path) }},
		{path: cfg.FeaturesPath, write: func(path string) error { return ml.SaveFeatureNames(path, names) }},
		{path: cfg.MetricsPath, write: func(path string) error {
			return writeFile(path, func(w io.Writer) error { return ml.WriteReport(w, metrics, report.Importance) })
		}},
	})
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)

	t.logger.Info("training finished",
		zap.String("model_type", report.ModelType),
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("roc_auc", metrics.ROCAUC),
		zap.Int("train_size", report.TrainSize),
		zap.Int("test_size", report.TestSize),
		zap.Duration("duration", report.Duration))

	if t.store != nil {
		if err := t.store.SaveTrainingLog(ctx, trainingLog(report)); err != nil {
			t.logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	return report, nil
}

func trainingLog(r *Report) db.TrainingLog {
	entry := db.TrainingLog{
		ModelName:   r.ModelType,
		Accuracy:    r.Metrics.Accuracy,
		Precision:   r.Metrics.Precision,
		Recall:      r.Metrics.Recall,
		Specificity: r.Metrics.Specificity,
		TrainedAt:   time.Now().UTC(),
		DataPoints:  r.DataPoints,
	}
	if !math.IsNaN(r.Metrics.ROCAUC) {
		auc := r.Metrics.ROCAUC
		entry.ROCAUC = &auc
	}
	return entry
}

func modelTypeName(modelType string) string {
	if modelType == "" {
		return ml.ModelTypeLogisticRegression
	}
	return modelType
}

type artifact struct {
	path  string
	write func(path string) error
}

// writeArtifacts writes every artifact to a temp file beside its target and
// renames them into place only after all writes succeeded.
func writeArtifacts(artifacts []artifact) error {
	temps := make([]string, 0, len(artifacts))
	cleanup := func() {
		for _, tmp := range temps {
			os.Remove(tmp)
		}
	}

	for _, a := range artifacts {
		dir := filepath.Dir(a.path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cleanup()
			return fmt.Errorf("create %s: %w", dir, err)
		}
		f, err := os.CreateTemp(dir, "."+filepath.Base(a.path)+".*.tmp")
		if err != nil {
			cleanup()
			return err
		}
		tmp := f.Name()
		f.Close()
		temps = append(temps, tmp)
		if err := os.Chmod(tmp, 0o644); err != nil {
			cleanup()
			return err
		}
		if err := a.write(tmp); err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", a.path, err)
		}
	}

	return install(artifacts, temps)
}

// rename is swapped in tests to simulate a failing install.
var rename = os.Rename

// install moves every temp file into place. Existing files are moved aside
// first and put back if any later install fails, so the model and its feature
// list never come from different runs.
func install(artifacts []artifact, temps []string) error {
	backups := make([]string, len(artifacts))
	installed := 0
	rollback := func() {
		for i := installed - 1; i >= 0; i-- {
			if backups[i] != "" {
				os.Rename(backups[i], artifacts[i].path)
			} else {
				os.Remove(artifacts[i].path)
			}
		}
		for i := installed; i < len(artifacts); i++ {
			if backups[i] != "" {
				os.Rename(backups[i], artifacts[i].path)
			}
			os.Remove(temps[i])
		}
	}

	for i, a := range artifacts {
		if _, err := os.Stat(a.path); err == nil {
			backup := temps[i] + ".bak"
			if err := rename(a.path, backup); err != nil {
				rollback()
				return fmt.Errorf("back up %s: %w", a.path, err)
			}
			backups[i] = backup
		}
		if err := rename(temps[i], a.path); err != nil {
			rollback()
			return fmt.Errorf("install %s: %w", a.path, err)
		}
		installed++
	}
	for _, b := range backups {
		if b != "" {
			os.Remove(b)
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

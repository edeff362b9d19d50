// Package config loads config.yaml, an optional .env file and HEARTRISK_*
// environment overrides into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"heartrisk/logging"
	"heartrisk/ml"
)

const envPrefix = "HEARTRISK_"

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Log      logging.Config `yaml:"log"`
	ML       MLConfig       `yaml:"ml"`
	Cache    CacheConfig    `yaml:"cache"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DatabaseConfig enables SQLite history when Path is set.
type DatabaseConfig struct {
	Path              string `yaml:"path"`
	RecordPredictions bool   `yaml:"record_predictions"`
}

// MLConfig locates the model artifacts for serving and holds the training
// settings read by train_model.
type MLConfig struct {
	ModelType      string        `yaml:"model_type"`
	ModelDir       string        `yaml:"model_dir"`
	ModelFile      string        `yaml:"model_file"`
	FeaturesFile   string        `yaml:"features_file"`
	MetricsFile    string        `yaml:"metrics_file"`
	LazyLoad       bool          `yaml:"lazy_load"`
	WatchArtifacts bool          `yaml:"watch_artifacts"`
	WatchDebounce  time.Duration `yaml:"watch_debounce"`

	DataPath  string  `yaml:"data_path"`
	Charset   string  `yaml:"charset"`
	MaxIter   int     `yaml:"max_iter"`
	MaxDepth  int     `yaml:"max_depth"`
	Seed      int64   `yaml:"seed"`
	TestRatio float64 `yaml:"test_ratio"`
}

// CacheConfig sizes the prediction result cache. Size 0 disables it.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// Default returns the configuration used when no file or environment
// overrides a value.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:           8000,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			RequestTimeout: 10 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{RecordPredictions: true},
		Log:      logging.DefaultConfig(),
		ML: MLConfig{
			ModelType:     ml.ModelTypeLogisticRegression,
			ModelDir:      "models",
			ModelFile:     "heart_disease_model.json",
			FeaturesFile:  "features.csv",
			MetricsFile:   "model_results.txt",
			WatchDebounce: 500 * time.Millisecond,
			DataPath:      "./hd_training_dataset.csv",
			Charset:       "utf-8",
			MaxIter:       1000,
			MaxDepth:      5,
			Seed:          42,
			TestRatio:     0.2,
		},
		Cache: CacheConfig{Size: 1024},
	}
}

// Load reads path over the defaults, then applies the environment. A missing
// config file is not an error; a missing .env file neither.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if _, err := ml.NewModel(c.ML.ModelType, 0, 0, 0); err != nil {
		return fmt.Errorf("ml.model_type: %w", err)
	}
	if c.ML.ModelFile == "" || c.ML.FeaturesFile == "" {
		return errors.New("ml.model_file and ml.features_file are required")
	}
	if c.ML.TestRatio <= 0 || c.ML.TestRatio >= 1 {
		return fmt.Errorf("ml.test_ratio %v must be in (0, 1)", c.ML.TestRatio)
	}
	return nil
}

// ModelPath joins the model directory and file name.
func (m MLConfig) ModelPath() string {
	return joinUnlessAbs(m.ModelDir, m.ModelFile)
}

func (m MLConfig) FeaturesPath() string {
	return joinUnlessAbs(m.ModelDir, m.FeaturesFile)
}

func (m MLConfig) MetricsPath() string {
	return joinUnlessAbs(m.ModelDir, m.MetricsFile)
}

func joinUnlessAbs(dir, file string) string {
	if dir == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func (c *Config) applyEnv() error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.HTTP.Port = n
		}
	}
	setInt("HTTP_PORT", &c.HTTP.Port)
	setString("DB_PATH", &c.Database.Path)
	setBool("RECORD_PREDICTIONS", &c.Database.RecordPredictions)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)
	setString("LOG_FILE", &c.Log.File)
	setString("MODEL_TYPE", &c.ML.ModelType)
	setString("MODEL_DIR", &c.ML.ModelDir)
	setString("MODEL_FILE", &c.ML.ModelFile)
	setString("FEATURES_FILE", &c.ML.FeaturesFile)
	setBool("LAZY_LOAD", &c.ML.LazyLoad)
	setBool("WATCH_ARTIFACTS", &c.ML.WatchArtifacts)
	setString("DATA_PATH", &c.ML.DataPath)
	setString("CHARSET", &c.ML.Charset)
	setString("METRICS_FILE", &c.ML.MetricsFile)
	setInt("MAX_ITER", &c.ML.MaxIter)
	setInt("MAX_DEPTH", &c.ML.MaxDepth)
	setInt("CACHE_SIZE", &c.Cache.Size)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		c.HTTP.AllowedOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

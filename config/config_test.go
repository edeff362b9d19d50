package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.yaml"), filepath.Join(dir, ".env"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, "logistic_regression", cfg.ML.ModelType)
	assert.Equal(t, filepath.Join("models", "heart_disease_model.json"), cfg.ML.ModelPath())
	assert.Equal(t, filepath.Join("models", "features.csv"), cfg.ML.FeaturesPath())
	assert.Equal(t, int64(42), cfg.ML.Seed)
	assert.Equal(t, 0.2, cfg.ML.TestRatio)
	assert.Empty(t, cfg.Database.Path)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
http:
  port: 9090
  request_timeout: 3s
database:
  path: data/heartrisk.db
log:
  level: debug
  format: console
ml:
  model_type: decision_tree
  model_dir: /srv/model
  lazy_load: true
cache:
  size: 16
`)
	cfg, err := Load(path, filepath.Join(dir, ".env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout, "unset keys keep defaults")
	assert.Equal(t, "data/heartrisk.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "decision_tree", cfg.ML.ModelType)
	assert.Equal(t, "/srv/model/heart_disease_model.json", cfg.ML.ModelPath())
	assert.True(t, cfg.ML.LazyLoad)
	assert.Equal(t, 16, cfg.Cache.Size)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "http:\n  port: 9090\n")
	envFile := writeFile(t, dir, ".env", "HEARTRISK_LOG_LEVEL=warn\n")
	t.Setenv("HEARTRISK_HTTP_PORT", "7000")
	t.Setenv("HEARTRISK_WATCH_ARTIFACTS", "true")
	t.Setenv("HEARTRISK_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HEARTRISK_DATA_PATH", "/data/train.csv")
	t.Setenv("HEARTRISK_MAX_ITER", "200")
	t.Cleanup(func() { os.Unsetenv("HEARTRISK_LOG_LEVEL") })

	cfg, err := Load(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.HTTP.Port)
	assert.True(t, cfg.ML.WatchArtifacts)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "/data/train.csv", cfg.ML.DataPath)
	assert.Equal(t, 200, cfg.ML.MaxIter)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")

	_, err := Load(writeFile(t, dir, "bad.yaml", "http: [1, 2"), env)
	assert.Error(t, err)

	_, err = Load(writeFile(t, dir, "type.yaml", "ml:\n  model_type: svm\n"), env)
	assert.ErrorContains(t, err, "model_type")

	t.Setenv("HEARTRISK_CACHE_SIZE", "lots")
	_, err = Load("", env)
	assert.ErrorContains(t, err, "HEARTRISK_CACHE_SIZE")
}

package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"heartrisk/ml"
)

// Artifacts is a loaded model together with the feature order it was trained on.
// It is never modified after LoadArtifacts returns.
type Artifacts struct {
	Model        ml.MLModel
	ModelType    string
	FeatureNames []string
	ModelPath    string
	FeaturesPath string
	LoadedAt     time.Time
}

// ArtifactConfig locates the model and feature files. Relative file names are
// resolved against each of SearchDirs in turn; the first directory holding
// both files wins.
type ArtifactConfig struct {
	ModelType    string
	ModelFile    string
	FeaturesFile string
	SearchDirs   []string
}

// DefaultSearchDirs returns the working-directory model folder followed by the
// model folder next to the running executable.
func DefaultSearchDirs(dir string) []string {
	dirs := []string{dir}
	if exe, err := os.Executable(); err == nil && !filepath.IsAbs(dir) {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), dir))
	}
	return dirs
}

// Resolve returns the model and feature paths to load. A missing pair yields
// an error wrapping ml.ErrModelNotFound.
func (c ArtifactConfig) Resolve() (modelPath, featuresPath string, err error) {
	if c.ModelFile == "" || c.FeaturesFile == "" {
		return "", "", fmt.Errorf("%w: model and feature file names are required", ml.ErrModelNotFound)
	}
	dirs := c.SearchDirs
	if len(dirs) == 0 {
		dirs = []string{""}
	}
	for _, dir := range dirs {
		modelPath = joinUnlessAbs(dir, c.ModelFile)
		featuresPath = joinUnlessAbs(dir, c.FeaturesFile)
		if fileExists(modelPath) && fileExists(featuresPath) {
			return modelPath, featuresPath, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s and %s not found in %v", ml.ErrModelNotFound, c.ModelFile, c.FeaturesFile, dirs)
}

// LoadArtifacts resolves and reads the model and feature list.
func LoadArtifacts(cfg ArtifactConfig) (*Artifacts, error) {
	modelPath, featuresPath, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	modelType := cfg.ModelType
	if modelType == "" {
		modelType = ml.ModelTypeLogisticRegression
	}
	model, err := ml.LoadModel(modelType, modelPath)
	if err != nil {
		return nil, err
	}
	names, err := ml.LoadFeatureNames(featuresPath)
	if err != nil {
		return nil, err
	}
	if weighted, ok := model.(ml.WeightedModel); ok && len(weighted.Weights()) != len(names) {
		return nil, fmt.Errorf("model %s has %d weights but %s lists %d features",
			modelPath, len(weighted.Weights()), featuresPath, len(names))
	}
	return &Artifacts{
		Model:        model,
		ModelType:    modelType,
		FeatureNames: names,
		ModelPath:    modelPath,
		FeaturesPath: featuresPath,
		LoadedAt:     time.Now(),
	}, nil
}

func joinUnlessAbs(dir, file string) string {
	if dir == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

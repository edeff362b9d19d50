package ml

import (
	"errors"
	"fmt"
	"os"
)

// NewModel returns an untrained model of the given type.
func NewModel(modelType string, maxIter int, maxDepth int, seed int64) (MLModel, error) {
	switch modelType {
	case ModelTypeLogisticRegression, "":
		return NewLogisticRegression(maxIter, seed), nil
	case ModelTypeDecisionTree:
		return NewDecisionTree(maxDepth), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

// LoadModel reads a persisted model. A missing file yields an error wrapping
// ErrModelNotFound.
func LoadModel(modelType, path string) (MLModel, error) {
	if err := checkArtifact(path); err != nil {
		return nil, err
	}
	model, err := NewModel(modelType, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return model, nil
}

func checkArtifact(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrModelNotFound)
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w at %s", ErrModelNotFound, path)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%w at %s: is a directory", ErrModelNotFound, path)
	}
	return nil
}

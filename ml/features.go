package ml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// LabelColumn holds the 0/1 heart-disease outcome in training data.
	LabelColumn = "heart_disease"
	// NameColumn holds the patient display name in prediction input.
	NameColumn = "name"

	featureHeader = "feature"
)

// FeatureNames returns the training feature columns in model order.
func FeatureNames() []string {
	return []string{
		"age",
		"weight",
		"bloodSugar",
		"bloodPressure",
		"smoker",
		"chronic_disease",
		"diabetic",
		"alcoholic",
	}
}

// WriteFeatureNames writes a single-column CSV with header "feature".
func WriteFeatureNames(w io.Writer, names []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{featureHeader}); err != nil {
		return err
	}
	for _, name := range names {
		if err := cw.Write([]string{name}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveFeatureNames writes names to path in the WriteFeatureNames format.
func SaveFeatureNames(path string, names []string) error {
	if len(names) == 0 {
		return errors.New("feature names empty")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteFeatureNames(f, names); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFeatureNames parses the CSV written by WriteFeatureNames.
func ReadFeatureNames(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("feature file is empty")
	}
	column := -1
	for i, h := range records[0] {
		if strings.TrimSpace(h) == featureHeader {
			column = i
			break
		}
	}
	if column < 0 {
		return nil, fmt.Errorf("feature file has no %q column", featureHeader)
	}
	names := make([]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if column >= len(record) {
			continue
		}
		if name := strings.TrimSpace(record[column]); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("feature file lists no features")
	}
	return names, nil
}

// LoadFeatureNames reads the feature list at path. A missing file yields an
// error wrapping ErrModelNotFound.
func LoadFeatureNames(path string) ([]string, error) {
	if err := checkArtifact(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := ReadFeatureNames(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return names, nil
}

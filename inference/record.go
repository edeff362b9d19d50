package inference

import (
	"fmt"
	"strings"

	"heartrisk/ml"
)

// DefaultPatientName is used when a record carries no display name.
const DefaultPatientName = "Unknown"

// Record is one patient's input: a display name plus named numeric fields.
// Fields may hold more names than the model uses; extras are ignored.
type Record struct {
	Name   string
	Fields map[string]float64
}

// Result is the prediction for one Record.
type Result struct {
	PatientName string       `json:"patient_name"`
	Prediction  int          `json:"prediction"`
	Probability float64      `json:"probability"`
	RiskLevel   ml.RiskLevel `json:"risk_level"`
}

// Outcome returns "Heart Disease" or "No Heart Disease".
func (r Result) Outcome() string {
	return ml.Outcome(r.Prediction)
}

// MissingFeaturesError reports feature names absent from the input, in model
// feature order.
type MissingFeaturesError struct {
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("missing features: %s", strings.Join(e.Missing, ", "))
}

// missingFeatures returns the names in featureNames absent from any record,
// preserving featureNames order.
func missingFeatures(featureNames []string, records []Record) []string {
	var missing []string
	for _, name := range featureNames {
		for _, rec := range records {
			if _, ok := rec.Fields[name]; !ok {
				missing = append(missing, name)
				break
			}
		}
	}
	return missing
}

// project builds the feature vector in featureNames order.
func project(featureNames []string, rec Record) []float64 {
	vector := make([]float64, len(featureNames))
	for i, name := range featureNames {
		vector[i] = rec.Fields[name]
	}
	return vector
}

func displayName(rec Record) string {
	if name := strings.TrimSpace(rec.Name); name != "" {
		return name
	}
	return DefaultPatientName
}

package ml

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// FeatureImportance pairs a feature with its model weight.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RankFeatures pairs names with weights, sorted by weight descending.
func RankFeatures(names []string, weights []float64) ([]FeatureImportance, error) {
	if len(names) != len(weights) {
		return nil, fmt.Errorf("%d feature names but %d weights", len(names), len(weights))
	}
	ranked := make([]FeatureImportance, len(names))
	for i, name := range names {
		ranked[i] = FeatureImportance{Feature: name, Importance: weights[i]}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Importance > ranked[b].Importance
	})
	return ranked, nil
}

// WriteReport writes the evaluation summary in the plain-text metrics format.
// importance may be nil for models without per-feature weights.
func WriteReport(w io.Writer, m Metrics, importance []FeatureImportance) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Accuracy: %.2f\n", m.Accuracy)
	fmt.Fprintf(bw, "Precision: %.2f\n", m.Precision)
	fmt.Fprintf(bw, "Recall (Sensitivity): %.2f\n", m.Recall)
	fmt.Fprintf(bw, "Specificity: %.2f\n", m.Specificity)
	fmt.Fprintf(bw, "ROC AUC: %.2f\n", m.ROCAUC)
	fmt.Fprintf(bw, "\nConfusion Matrix:\n%s\n", m.Confusion)

	if len(importance) > 0 {
		fmt.Fprint(bw, "\nFeature Importance:\n")
		values := make([]string, len(importance))
		nameWidth, valueWidth := len("Feature"), len("Importance")
		for i, fi := range importance {
			values[i] = strconv.FormatFloat(fi.Importance, 'f', 6, 64)
			nameWidth = max(nameWidth, len(fi.Feature))
			valueWidth = max(valueWidth, len(values[i]))
		}
		fmt.Fprintf(bw, "%*s  %*s\n", nameWidth, "Feature", valueWidth, "Importance")
		for i, fi := range importance {
			fmt.Fprintf(bw, "%*s  %*s\n", nameWidth, fi.Feature, valueWidth, values[i])
		}
	}
	return bw.Flush()
}

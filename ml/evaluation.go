package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ConfusionMatrix counts binary outcomes with 1 as the positive class.
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

// Metrics summarizes a held-out evaluation.
type Metrics struct {
	Accuracy    float64         `json:"accuracy"`
	Precision   float64         `json:"precision"`
	Recall      float64         `json:"recall"`
	Specificity float64         `json:"specificity"`
	ROCAUC      float64         `json:"roc_auc"`
	Confusion   ConfusionMatrix `json:"confusion_matrix"`
	Samples     int             `json:"samples"`
}

// NewConfusionMatrix tallies actual against predicted labels.
func NewConfusionMatrix(actual, predicted []int) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(actual) != len(predicted) {
		return cm, errors.New("actual and predicted size mismatch")
	}
	for i := range actual {
		switch {
		case actual[i] == 1 && predicted[i] == 1:
			cm.TP++
		case actual[i] == 1:
			cm.FN++
		case predicted[i] == 1:
			cm.FP++
		default:
			cm.TN++
		}
	}
	return cm, nil
}

func (cm ConfusionMatrix) Total() int {
	return cm.TN + cm.FP + cm.FN + cm.TP
}

func (cm ConfusionMatrix) Accuracy() float64 {
	return ratio(cm.TP+cm.TN, cm.Total())
}

// Precision is 0 when nothing was predicted positive.
func (cm ConfusionMatrix) Precision() float64 {
	return ratio(cm.TP, cm.TP+cm.FP)
}

// Recall (sensitivity) is 0 when there are no positive samples.
func (cm ConfusionMatrix) Recall() float64 {
	return ratio(cm.TP, cm.TP+cm.FN)
}

// Specificity is tn/(tn+fp), or 0 when there are no negative samples.
func (cm ConfusionMatrix) Specificity() float64 {
	return ratio(cm.TN, cm.TN+cm.FP)
}

// String renders the matrix as rows of actual class, columns of predicted.
func (cm ConfusionMatrix) String() string {
	return fmt.Sprintf("[[%d %d]\n [%d %d]]", cm.TN, cm.FP, cm.FN, cm.TP)
}

// Evaluate scores model on a labeled test set.
func Evaluate(model MLModel, features [][]float64, labels []int) (Metrics, error) {
	if len(features) == 0 {
		return Metrics{}, errors.New("test set is empty")
	}
	if len(features) != len(labels) {
		return Metrics{}, errors.New("features and labels size mismatch")
	}
	predicted := make([]int, len(features))
	scores := make([]float64, len(features))
	for i, row := range features {
		label, p, err := model.Predict(row)
		if err != nil {
			return Metrics{}, fmt.Errorf("predict row %d: %w", i, err)
		}
		predicted[i] = label
		scores[i] = p
	}
	cm, err := NewConfusionMatrix(labels, predicted)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{
		Accuracy:    cm.Accuracy(),
		Precision:   cm.Precision(),
		Recall:      cm.Recall(),
		Specificity: cm.Specificity(),
		ROCAUC:      ROCAUC(labels, scores),
		Confusion:   cm,
		Samples:     len(labels),
	}, nil
}

// ROCAUC computes the area under the ROC curve as the Mann-Whitney statistic,
// averaging ranks across tied scores. It is NaN when only one class is present.
func ROCAUC(labels []int, scores []float64) float64 {
	if len(labels) != len(scores) {
		return math.NaN()
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	ranks := make([]float64, len(scores))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	var positives, negatives int
	rankSum := 0.0
	for i, label := range labels {
		if label == 1 {
			positives++
			rankSum += ranks[i]
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return math.NaN()
	}
	np := float64(positives)
	return (rankSum - np*(np+1)/2) / (np * float64(negatives))
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

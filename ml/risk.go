package ml

import "fmt"

// RiskLevel is the coarse band derived from the positive-class probability.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low Risk"
	RiskMedium RiskLevel = "Medium Risk"
	RiskHigh   RiskLevel = "High Risk"
)

// Probability cut points: p < LowRiskThreshold is low, p >= HighRiskThreshold is high.
const (
	LowRiskThreshold  = 0.3
	HighRiskThreshold = 0.7
)

const (
	OutcomeHeartDisease   = "Heart Disease"
	OutcomeNoHeartDisease = "No Heart Disease"
)

// RiskLevelFromProbability maps a probability onto the fixed risk bands.
func RiskLevelFromProbability(p float64) RiskLevel {
	switch {
	case p >= HighRiskThreshold:
		return RiskHigh
	case p >= LowRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskLevelFromString parses a stored risk label.
func RiskLevelFromString(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), nil
	default:
		return "", fmt.Errorf("invalid risk level: %q", s)
	}
}

// Severity orders levels: Low=1, Medium=2, High=3, unknown=0.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

func (r RiskLevel) String() string {
	return string(r)
}

// Outcome is the human-readable label for a binary prediction.
func Outcome(prediction int) string {
	if prediction == 1 {
		return OutcomeHeartDisease
	}
	return OutcomeNoHeartDisease
}

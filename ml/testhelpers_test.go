package ml

import (
	"math/rand"
)

// syntheticPatients builds a reproducible cohort where risk grows with age,
// blood pressure, blood sugar and the boolean risk factors.
func syntheticPatients(n int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	features := make([][]float64, 0, n)
	labels := make([]int, 0, n)
	for i := 0; i < n; i++ {
		age := 30 + rnd.Float64()*45
		weight := 55 + rnd.Float64()*50
		sugar := 80 + rnd.Float64()*80
		pressure := 100 + rnd.Float64()*60
		smoker := float64(rnd.Intn(2))
		chronic := float64(rnd.Intn(2))
		diabetic := float64(rnd.Intn(2))
		alcoholic := float64(rnd.Intn(2))

		score := 0.08*(age-52) + 0.03*(pressure-130) + 0.02*(sugar-120) +
			1.2*smoker + 1.0*chronic + 0.9*diabetic + 0.6*alcoholic - 1.8
		score += rnd.NormFloat64() * 0.5

		label := 0
		if score > 0 {
			label = 1
		}
		features = append(features, []float64{age, weight, sugar, pressure, smoker, chronic, diabetic, alcoholic})
		labels = append(labels, label)
	}
	return features, labels
}

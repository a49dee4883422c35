package domain

import (
	"math"
	"sort"
)

const (
	// EstimateBaseline is the prediction for an intake with no numeric answers.
	EstimateBaseline = 550.0
	// ModifierWeight scales every numeric answer.
	ModifierWeight = 0.5
	// ModifierCap bounds the summed modifier from above. There is no lower bound.
	ModifierCap = 30.0
)

// Estimate reduces the answers to the predicted value T. Numeric answers add
// ModifierWeight times their value to the modifier; every other kind adds
// nothing. Contributions are summed in ascending order so the float result
// does not depend on insertion order. The result is rounded half away from
// zero.
func Estimate(answers Answers) int {
	contributions := make([]float64, 0, len(answers.keys))
	for _, k := range answers.keys {
		contributions = append(contributions, modifierFor(answers.values[k]))
	}
	sort.Float64s(contributions)
	var modifier float64
	for _, c := range contributions {
		modifier += c
	}
	if math.IsNaN(modifier) {
		// only reachable when the sum overflows in both directions
		modifier = 0
	}
	total := math.Round(EstimateBaseline + math.Min(ModifierCap, modifier))
	if total <= float64(math.MinInt) {
		return math.MinInt
	}
	return int(total)
}

func modifierFor(a Answer) float64 {
	switch a.Kind {
	case KindNumber:
		if math.IsNaN(a.num) || math.IsInf(a.num, 0) {
			return 0
		}
		return a.num * ModifierWeight
	case KindText, KindBool, KindAbsent:
		return 0
	}
	return 0
}

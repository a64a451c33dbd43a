package mount

import "fmt"

// SelectBest returns the index, combination and score of the lowest score.
// Ties go to the lowest index.
func SelectBest(combos []Combination, scores []float64) (int, Combination, float64, error) {
	if len(combos) != len(scores) {
		return -1, nil, 0, fmt.Errorf("%w: %d combinations, %d scores", ErrScoreMismatch, len(combos), len(scores))
	}
	if len(combos) == 0 {
		return -1, nil, 0, ErrNoValidCombinations
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] < scores[best] {
			best = i
		}
	}
	return best, combos[best], scores[best], nil
}

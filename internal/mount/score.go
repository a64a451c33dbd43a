package mount

import (
	"context"
	"fmt"
	"math"
)

// resolve looks up the axis parameters of every candidate for axisType.
func resolve(c Combination, axisType string) ([]Params, error) {
	params := make([]Params, len(c))
	for i, cand := range c {
		p, ok := cand.Axes[axisType]
		if !ok {
			return nil, &AxisDataNotFoundError{Tag: cand.Tag, AxisType: axisType}
		}
		params[i] = p
	}
	return params, nil
}

// Resolve checks that every candidate of c carries axisType data.
func Resolve(c Combination, axisType string) error {
	_, err := resolve(c, axisType)
	return err
}

// Score applies c to st and evaluates it once.
//
// Axis data is resolved for every candidate before st is touched, so a
// missing axis type never reaches the external model. Every parameter of
// every candidate is written before Evaluate.
func Score(ctx context.Context, st State, c Combination, axisType string) (float64, error) {
	params, err := resolve(c, axisType)
	if err != nil {
		return 0, err
	}

	for i, cand := range c {
		if err := st.Apply(ctx, cand.Label, params[i]); err != nil {
			return 0, &EvaluationError{Tags: c.Tags(), Err: fmt.Errorf("apply %s: %w", cand.Tag, err)}
		}
	}

	value, err := st.Evaluate(ctx)
	if err != nil {
		return 0, &EvaluationError{Tags: c.Tags(), Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &EvaluationError{Tags: c.Tags(), Err: fmt.Errorf("invalid merit value %v", value)}
	}
	return value, nil
}

// ScoreAll scores combos one at a time in order. It stops at the first
// failure; a partial score list is never returned. onScored may be nil.
func ScoreAll(ctx context.Context, st State, combos []Combination, axisType string, onScored func(i int, c Combination, score float64)) ([]float64, error) {
	scores := make([]float64, 0, len(combos))
	for i, c := range combos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := Score(ctx, st, c, axisType)
		if err != nil {
			return nil, fmt.Errorf("combination %d: %w", i, err)
		}
		scores = append(scores, s)

		if onScored != nil {
			onScored(i, c, s)
		}
	}
	return scores, nil
}

package mount

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAxisDataNotFound is returned when a candidate has no axis record
	// for the requested axis type.
	ErrAxisDataNotFound = errors.New("axis data not found")

	// ErrNoValidCombinations is returned when there is nothing to select from.
	ErrNoValidCombinations = errors.New("no valid combinations")

	// ErrScoreMismatch is returned when combinations and scores differ in length.
	ErrScoreMismatch = errors.New("combination and score counts differ")

	// ErrExternalEvaluation is returned when the external model fails to
	// apply or evaluate a combination.
	ErrExternalEvaluation = errors.New("external evaluation failed")
)

// AxisDataNotFoundError names the candidate and axis type that could not be resolved.
type AxisDataNotFoundError struct {
	Tag      Tag
	AxisType string
}

func (e *AxisDataNotFoundError) Error() string {
	return fmt.Sprintf("axis data not found: %s axis %q", e.Tag, e.AxisType)
}

func (e *AxisDataNotFoundError) Is(target error) bool {
	return target == ErrAxisDataNotFound
}

// EvaluationError carries the combination that the external model failed on.
type EvaluationError struct {
	Tags []Tag
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating [%s]: %v", describeTags(e.Tags), e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Is(target error) bool {
	return target == ErrExternalEvaluation
}

func describeTags(tags []Tag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidates means a match was requested against an empty set.
	ErrNoCandidates = errors.New("no candidates to match against")
	// ErrAxisNotFound means a resolved column is missing from the dataset.
	ErrAxisNotFound = errors.New("axis column not found in dataset")
	// ErrKeyColumnAxis means the row key column was chosen as a plotted axis.
	ErrKeyColumnAxis = errors.New("row key column cannot be plotted")
	// ErrLowConfidence means a match exceeded the configured edit distance.
	ErrLowConfidence = errors.New("match distance above threshold")
	// ErrPrediction wraps any failure of the prediction service.
	ErrPrediction = errors.New("prediction failed")
)

// AxisError ties an axis failure to the axis and column involved.
type AxisError struct {
	Axis   string
	Column string
	Err    error
}

func (e *AxisError) Error() string {
	return fmt.Sprintf("%s axis %q: %v", e.Axis, e.Column, e.Err)
}

func (e *AxisError) Unwrap() error {
	return e.Err
}

// LowConfidenceError reports which field failed the distance threshold.
type LowConfidenceError struct {
	Field    string
	Label    string
	Match    string
	Distance int
	Max      int
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("%s %q is %d edits from %q (max %d)", e.Field, e.Label, e.Distance, e.Match, e.Max)
}

func (e *LowConfidenceError) Unwrap() error {
	return ErrLowConfidence
}

// IsInvariantViolation reports errors that point at a defect rather than
// bad input.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrNoCandidates) || errors.Is(err, ErrAxisNotFound)
}

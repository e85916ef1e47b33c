package models

import (
	"encoding/json"
	"math"
)

// Point is one (x, y) pair taken from a dataset row. Flagged points carry
// at least one coordinate that is not a number.
type Point struct {
	Key     string  `json:"key"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Flagged bool    `json:"flagged,omitempty"`
}

// MarshalJSON writes NaN coordinates as null.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key     string   `json:"key"`
		X       *float64 `json:"x"`
		Y       *float64 `json:"y"`
		Flagged bool     `json:"flagged,omitempty"`
	}{
		Key:     p.Key,
		X:       finiteOrNil(p.X),
		Y:       finiteOrNil(p.Y),
		Flagged: p.Flagged,
	})
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NumericConversionWarning records a cell that could not be read as a number.
type NumericConversionWarning struct {
	RowKey string `json:"row_key"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// ChartSpec is the render-ready description of a chart.
type ChartSpec struct {
	XAxisColumn string                     `json:"x_axis_column"`
	YAxisColumn string                     `json:"y_axis_column"`
	PlotType    string                     `json:"plot_type"`
	Label       string                     `json:"label"`
	Points      []Point                    `json:"points"`
	Warnings    []NumericConversionWarning `json:"warnings,omitempty"`
}

package service

import (
	"fmt"

	"chartbot/internal/models"
	"chartbot/internal/tabular"
)

// NaNPolicy decides what happens to rows with a non-numeric coordinate.
type NaNPolicy string

const (
	// NaNExclude drops the row from the point list.
	NaNExclude NaNPolicy = "exclude"
	// NaNFlag keeps the row and marks the point as flagged.
	NaNFlag NaNPolicy = "flag"
)

// ParseNaNPolicy maps a config value to a policy.
func ParseNaNPolicy(s string) (NaNPolicy, error) {
	switch NaNPolicy(s) {
	case NaNExclude, "":
		return NaNExclude, nil
	case NaNFlag:
		return NaNFlag, nil
	default:
		return "", fmt.Errorf("unknown nan policy %q", s)
	}
}

// ChartSpecBuilder projects a dataset onto a resolved intent.
type ChartSpecBuilder struct {
	policy NaNPolicy
}

// NewChartSpecBuilder creates a builder with the given policy.
func NewChartSpecBuilder(policy NaNPolicy) *ChartSpecBuilder {
	if policy == "" {
		policy = NaNExclude
	}
	return &ChartSpecBuilder{policy: policy}
}

// Build produces one point per dataset row in row order. Cells that are not
// numbers are reported as warnings and handled per the builder's policy.
func (b *ChartSpecBuilder) Build(ds *models.Dataset, resolved models.ResolvedIntent) (*models.ChartSpec, error) {
	xIndex, err := axisIndex(ds, "x", resolved.XAxisColumn)
	if err != nil {
		return nil, err
	}
	yIndex, err := axisIndex(ds, "y", resolved.YAxisColumn)
	if err != nil {
		return nil, err
	}

	spec := &models.ChartSpec{
		XAxisColumn: resolved.XAxisColumn,
		YAxisColumn: resolved.YAxisColumn,
		PlotType:    resolved.PlotType,
		Label:       fmt.Sprintf("%s vs %s", resolved.XAxisColumn, resolved.YAxisColumn),
		Points:      make([]models.Point, 0, len(ds.Rows)),
	}

	for _, row := range ds.Rows {
		key := row[0]
		x, xok := tabular.ParseNumber(row[xIndex])
		y, yok := tabular.ParseNumber(row[yIndex])

		if !xok {
			spec.Warnings = append(spec.Warnings, models.NumericConversionWarning{
				RowKey: key, Column: resolved.XAxisColumn, Value: row[xIndex],
			})
		}
		if !yok {
			spec.Warnings = append(spec.Warnings, models.NumericConversionWarning{
				RowKey: key, Column: resolved.YAxisColumn, Value: row[yIndex],
			})
		}

		flagged := !xok || !yok
		if flagged && b.policy == NaNExclude {
			continue
		}
		spec.Points = append(spec.Points, models.Point{Key: key, X: x, Y: y, Flagged: flagged})
	}

	return spec, nil
}

func axisIndex(ds *models.Dataset, axis, column string) (int, error) {
	idx := ds.ColumnIndex(column)
	switch {
	case idx < 0:
		return -1, &AxisError{Axis: axis, Column: column, Err: ErrAxisNotFound}
	case idx == 0:
		return -1, &AxisError{Axis: axis, Column: column, Err: ErrKeyColumnAxis}
	}
	return idx, nil
}

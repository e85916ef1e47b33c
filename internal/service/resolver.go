package service

import (
	"fmt"

	"chartbot/internal/models"
)

// Resolve snaps a predicted intent onto real columns and a supported plot
// type. Axis labels are matched in normalized form and mapped back to the
// original column name by position; the plot type is matched as given
// against the vocabulary. It always returns a usable answer when both
// candidate sets are non-empty, however poor the prediction.
func Resolve(intent models.VisualizationIntent, columns, plotTypes []string) (models.ResolvedIntent, error) {
	normalized := NormalizeLabels(columns)

	x, err := Nearest(NormalizeLabel(intent.XAxisLabel), normalized)
	if err != nil {
		return models.ResolvedIntent{}, fmt.Errorf("resolve x axis: %w", err)
	}
	y, err := Nearest(NormalizeLabel(intent.YAxisLabel), normalized)
	if err != nil {
		return models.ResolvedIntent{}, fmt.Errorf("resolve y axis: %w", err)
	}
	plot, err := Nearest(intent.PlotType, plotTypes)
	if err != nil {
		return models.ResolvedIntent{}, fmt.Errorf("resolve plot type: %w", err)
	}

	return models.ResolvedIntent{
		XAxisColumn:  columns[x.Index],
		YAxisColumn:  columns[y.Index],
		PlotType:     plotTypes[plot.Index],
		XDistance:    x.Distance,
		YDistance:    y.Distance,
		PlotDistance: plot.Distance,
	}, nil
}

// IntentResolver applies Resolve with a fixed plot vocabulary and an
// optional distance ceiling for the axis matches.
type IntentResolver struct {
	plotTypes   []string
	maxDistance int
}

// NewIntentResolver creates a resolver. A maxDistance of zero or less
// accepts any match.
func NewIntentResolver(plotTypes []string, maxDistance int) *IntentResolver {
	if len(plotTypes) == 0 {
		plotTypes = models.DefaultPlotTypes
	}
	return &IntentResolver{
		plotTypes:   plotTypes,
		maxDistance: maxDistance,
	}
}

// PlotTypes returns the vocabulary in match order.
func (r *IntentResolver) PlotTypes() []string {
	return append([]string(nil), r.plotTypes...)
}

// Resolve resolves intent against the dataset columns.
func (r *IntentResolver) Resolve(intent models.VisualizationIntent, columns []string) (models.ResolvedIntent, error) {
	resolved, err := Resolve(intent, columns, r.plotTypes)
	if err != nil {
		return models.ResolvedIntent{}, err
	}
	if r.maxDistance <= 0 {
		return resolved, nil
	}

	if resolved.XDistance > r.maxDistance {
		return resolved, &LowConfidenceError{
			Field: "x axis", Label: intent.XAxisLabel, Match: resolved.XAxisColumn,
			Distance: resolved.XDistance, Max: r.maxDistance,
		}
	}
	if resolved.YDistance > r.maxDistance {
		return resolved, &LowConfidenceError{
			Field: "y axis", Label: intent.YAxisLabel, Match: resolved.YAxisColumn,
			Distance: resolved.YDistance, Max: r.maxDistance,
		}
	}
	return resolved, nil
}

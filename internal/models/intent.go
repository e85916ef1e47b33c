package models

// Supported plot types.
const (
	PlotScatter  = "scatter"
	PlotBar      = "bar"
	PlotLine     = "line"
	PlotDoughnut = "doughnut"
)

// DefaultPlotTypes is the plot vocabulary in match order.
var DefaultPlotTypes = []string{PlotScatter, PlotBar, PlotLine, PlotDoughnut}

// VisualizationIntent is the raw guess returned by the prediction service.
// The JSON tags follow the predictor's wire format.
type VisualizationIntent struct {
	XAxisLabel string `json:"X_AXIS_LABEL"`
	YAxisLabel string `json:"Y_AXIS_LABEL"`
	PlotType   string `json:"PLOT_TYPE"`
}

// ResolvedIntent is a VisualizationIntent snapped onto real columns and a
// supported plot type. The distances are the winning edit distances.
type ResolvedIntent struct {
	XAxisColumn  string `json:"x_axis_column"`
	YAxisColumn  string `json:"y_axis_column"`
	PlotType     string `json:"plot_type"`
	XDistance    int    `json:"x_distance"`
	YDistance    int    `json:"y_distance"`
	PlotDistance int    `json:"plot_distance"`
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chartbot/internal/llm"
	"chartbot/internal/models"
	"chartbot/internal/observability"
	"chartbot/internal/service"
	"chartbot/internal/state"
)

var (
	chartX         string
	chartY         string
	chartType      string
	chartQuery     string
	chartPredictor string
	chartNaN       string
	chartMaxDist   int
	chartTimeout   time.Duration
)

var chartCmd = &cobra.Command{
	Use:   "chart FILE",
	Short: "Resolve a chart for FILE and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runChart,
}

func init() {
	chartCmd.Flags().StringVarP(&chartX, "x", "x", "", "x axis label")
	chartCmd.Flags().StringVarP(&chartY, "y", "y", "", "y axis label")
	chartCmd.Flags().StringVarP(&chartType, "type", "t", models.PlotScatter, "plot type")
	chartCmd.Flags().StringVarP(&chartQuery, "query", "q", "", "free text request sent to the predictor")
	chartCmd.Flags().StringVar(&chartPredictor, "predictor", "http://127.0.0.1:5000", "prediction service base URL")
	chartCmd.Flags().StringVar(&chartNaN, "nan-policy", string(service.NaNExclude), "non-numeric rows: exclude or flag")
	chartCmd.Flags().IntVar(&chartMaxDist, "max-distance", 0, "reject axis matches further than this many edits (0 = never)")
	chartCmd.Flags().DurationVar(&chartTimeout, "timeout", 30*time.Second, "overall timeout")
	chartCmd.MarkFlagsMutuallyExclusive("query", "x")
	chartCmd.MarkFlagsMutuallyExclusive("query", "y")
}

func runChart(cmd *cobra.Command, args []string) error {
	if chartQuery == "" && (chartX == "" || chartY == "") {
		return errors.New("either --query or both --x and --y are required")
	}

	policy, err := service.ParseNaNPolicy(chartNaN)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), chartTimeout)
	defer cancel()

	logger := observability.NewLogger(observability.LogConfig{
		Level:       logLevel,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "chartctl",
	})
	pipeline := service.NewPipeline(
		llm.NewClient(llm.Config{BaseURL: chartPredictor}),
		service.NewIntentResolver(models.DefaultPlotTypes, chartMaxDist),
		service.NewChartSpecBuilder(policy),
		nil,
		logger,
	)

	sess := state.NewSession("chartctl")
	if err := loadFile(ctx, pipeline, sess, args[0]); err != nil {
		return err
	}

	var chart *models.ChartSpec
	if chartQuery != "" {
		chart, err = pipeline.Query(ctx, sess, chartQuery)
	} else {
		chart, err = pipeline.ResolveIntent(ctx, sess, models.VisualizationIntent{
			XAxisLabel: chartX,
			YAxisLabel: chartY,
			PlotType:   chartType,
		})
	}
	if err != nil {
		return err
	}

	printSummary(cmd.ErrOrStderr(), chart)
	return writeChart(cmd.OutOrStdout(), chart)
}

func loadFile(ctx context.Context, pipeline *service.Pipeline, sess *state.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = pipeline.Upload(ctx, sess, filepath.Base(path), f)
	return err
}

func printSummary(w io.Writer, chart *models.ChartSpec) {
	fmt.Fprintf(w, "%s %s (%s), %d points\n",
		color.GreenString("✓"),
		color.New(color.Bold).Sprint(chart.Label),
		chart.PlotType,
		len(chart.Points))
	for _, warn := range chart.Warnings {
		fmt.Fprintf(w, "  %s row %s: %s=%q is not a number\n",
			color.YellowString("!"), warn.RowKey, warn.Column, warn.Value)
	}
}

func writeChart(w io.Writer, chart *models.ChartSpec) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(chart)
}

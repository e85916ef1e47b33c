package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"chartbot/internal/models"
	"chartbot/internal/observability"
	"chartbot/internal/state"
	"chartbot/internal/tabular"
)

// Predictor turns a natural-language query into a visualization intent.
type Predictor interface {
	Predict(ctx context.Context, query string) (models.VisualizationIntent, error)
}

// HistoryRecorder stores the outcome of each query run.
type HistoryRecorder interface {
	Record(ctx context.Context, entry models.HistoryEntry) (int64, error)
}

// Pipeline drives a session from upload through chart publication.
type Pipeline struct {
	predictor Predictor
	resolver  *IntentResolver
	builder   *ChartSpecBuilder
	history   HistoryRecorder
	logger    *observability.Logger
}

// NewPipeline wires a pipeline. history may be nil.
func NewPipeline(predictor Predictor, resolver *IntentResolver, builder *ChartSpecBuilder, history HistoryRecorder, logger *observability.Logger) *Pipeline {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Pipeline{
		predictor: predictor,
		resolver:  resolver,
		builder:   builder,
		history:   history,
		logger:    logger.WithOperation("pipeline"),
	}
}

// Upload parses an uploaded file and makes it the session's dataset.
// Files ending in .xlsx are read as workbooks, everything else as text.
func (p *Pipeline) Upload(ctx context.Context, sess *state.Session, name string, r io.Reader) (*models.Dataset, error) {
	return p.Load(ctx, sess, name, func() (*models.Dataset, error) {
		if strings.EqualFold(filepath.Ext(name), ".xlsx") {
			return tabular.ParseXLSX(name, r)
		}
		return tabular.ParseReader(name, r)
	})
}

// Load runs load as a parse run of sess and publishes its dataset. A parse
// failure leaves the previous dataset in place.
func (p *Pipeline) Load(ctx context.Context, sess *state.Session, name string, load func() (*models.Dataset, error)) (*models.Dataset, error) {
	run := sess.BeginUpload()
	logger := p.logger.WithSession(sess.ID).WithRun(run)

	ds, err := load()
	if err != nil {
		sess.Fail(run, err)
		logger.Warn().Err(err).Str("file", name).Msg("dataset rejected")
		return nil, err
	}
	if err := sess.PublishDataset(run, name, ds); err != nil {
		logger.Info().Str("file", name).Msg("upload superseded")
		return nil, err
	}

	logger.Info().
		Str("file", name).
		Int("rows", ds.NumRows()).
		Int("columns", ds.NumColumns()).
		Msg("dataset loaded")
	return ds, nil
}

// Query predicts, resolves and builds a chart for query. It returns
// state.ErrStaleRun if a newer run started before this one finished; the
// newer run's result is never overwritten.
func (p *Pipeline) Query(ctx context.Context, sess *state.Session, query string) (*models.ChartSpec, error) {
	run, ds, err := sess.BeginQuery(query)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, sess, run, query, ds, nil)
}

// Regenerate reruns the session's current query.
func (p *Pipeline) Regenerate(ctx context.Context, sess *state.Session) (*models.ChartSpec, error) {
	run, query, ds, err := sess.BeginRegenerate()
	if err != nil {
		return nil, err
	}
	return p.run(ctx, sess, run, query, ds, nil)
}

// ResolveIntent builds a chart from an intent supplied directly, skipping
// the predictor.
func (p *Pipeline) ResolveIntent(ctx context.Context, sess *state.Session, intent models.VisualizationIntent) (*models.ChartSpec, error) {
	run, ds, err := sess.BeginQuery("")
	if err != nil {
		return nil, err
	}
	return p.run(ctx, sess, run, "", ds, &intent)
}

func (p *Pipeline) run(ctx context.Context, sess *state.Session, run uint64, query string, ds *models.Dataset, intent *models.VisualizationIntent) (*models.ChartSpec, error) {
	logger := p.logger.WithSession(sess.ID).WithRun(run)
	entry := models.HistoryEntry{SessionID: sess.ID, Query: query}

	chart, err := p.execute(ctx, sess, run, ds, query, intent, &entry, logger)
	switch {
	case err == nil:
		entry.Status = models.HistoryOK
	case errors.Is(err, state.ErrStaleRun):
		entry.Status = models.HistoryStale
		logger.Info().Msg("run superseded, result discarded")
	default:
		entry.Status = models.HistoryError
		entry.Error = err.Error()
		sess.Fail(run, err)
		if IsInvariantViolation(err) {
			logger.Error().Err(err).Msg("pipeline invariant violated")
		} else {
			logger.Warn().Err(err).Msg("query failed")
		}
	}

	if query != "" {
		p.record(ctx, entry, logger)
	}
	return chart, err
}

func (p *Pipeline) execute(ctx context.Context, sess *state.Session, run uint64, ds *models.Dataset, query string, intent *models.VisualizationIntent, entry *models.HistoryEntry, logger *observability.Logger) (*models.ChartSpec, error) {
	if intent == nil {
		predicted, err := p.predictor.Predict(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPrediction, err)
		}
		intent = &predicted
	}
	logger.Debug().
		Str("x_label", intent.XAxisLabel).
		Str("y_label", intent.YAxisLabel).
		Str("plot_type", intent.PlotType).
		Msg("intent received")

	if !sess.Advance(run, state.PhaseResolving) {
		return nil, state.ErrStaleRun
	}
	resolved, err := p.resolver.Resolve(*intent, ds.Columns)
	if err != nil {
		return nil, err
	}
	entry.Resolved = &resolved

	if !sess.Advance(run, state.PhaseBuilding) {
		return nil, state.ErrStaleRun
	}
	chart, err := p.builder.Build(ds, resolved)
	if err != nil {
		return nil, err
	}
	for _, w := range chart.Warnings {
		logger.Warn().
			Str("row", w.RowKey).
			Str("column", w.Column).
			Str("value", w.Value).
			Msg("non-numeric cell")
	}

	if err := sess.Publish(run, chart); err != nil {
		return nil, err
	}
	logger.Info().
		Str("x", resolved.XAxisColumn).
		Str("y", resolved.YAxisColumn).
		Str("plot_type", resolved.PlotType).
		Int("points", len(chart.Points)).
		Msg("chart published")
	return chart, nil
}

func (p *Pipeline) record(ctx context.Context, entry models.HistoryEntry, logger *observability.Logger) {
	if p.history == nil {
		return
	}
	if _, err := p.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn().Err(err).Msg("failed to record query history")
	}
}

package gapanalysis

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "repgap/gapanalysis"

// Options are the per-run knobs. The zero value analyzes every row with the
// engine's catalog and band.
type Options struct {
	Filter  Filter
	Targets map[string]float64
	// Band overrides the engine band when non-nil.
	Band           *float64
	Sort           string
	Value          string
	ShortLabels    bool
	LabelMaxLength int
	// IncludeOverAttributed keeps rows whose counts exceed their spec count
	// in the aggregation. They are reported by the health check either way.
	IncludeOverAttributed bool
	Rollup                string
}

// Summary is the headline of a run.
type Summary struct {
	TotalRows           int                    `json:"total_rows"`
	AnalyzedRows        int                    `json:"analyzed_rows"`
	RejectedRows        int                    `json:"rejected_rows"`
	ExcludedRows        int                    `json:"excluded_rows"`
	FilteredOutRows     int                    `json:"filtered_out_rows"`
	Modules             int                    `json:"modules"`
	TotalPeople         int64                  `json:"total_people"`
	Band                float64                `json:"band"`
	IssueCounts         map[Severity]int       `json:"issue_counts"`
	Classifications     map[Classification]int `json:"classifications"`
	DefaultTargetFields []string               `json:"default_target_fields,omitempty"`
	Duration            time.Duration          `json:"duration_ns"`
}

// Report is everything one analysis run produces.
type Report struct {
	Columns        []ColumnMapping   `json:"columns"`
	DroppedColumns []string          `json:"dropped_columns"`
	Aggregates     []ModuleAggregate `json:"aggregates"`
	Gaps           []GapResult       `json:"gaps"`
	Heatmap        HeatmapMatrix     `json:"heatmap"`
	Health         []HealthIssue     `json:"health"`
	Summary        Summary           `json:"summary"`
	Diversity      DiversityReport   `json:"diversity"`
	Coverage       ModuleCoverage    `json:"coverage"`
}

// Engine runs the analysis pipeline against one catalog snapshot. It holds
// no per-run state and is safe for concurrent use.
type Engine struct {
	catalog *Catalog
	band    float64
	health  HealthOptions
	logger  *slog.Logger
	tracer  trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBand sets the default classification band.
func WithBand(band float64) EngineOption {
	return func(e *Engine) { e.band = band }
}

// WithHealthOptions sets the health check thresholds.
func WithHealthOptions(opts HealthOptions) EngineOption {
	return func(e *Engine) { e.health = opts }
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// NewEngine returns an engine for catalog.
func NewEngine(catalog *Catalog, opts ...EngineOption) (*Engine, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, &CatalogError{Message: "catalog has no fields"}
	}
	e := &Engine{
		catalog: catalog,
		band:    DefaultBand,
		health:  DefaultHealthOptions(),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "gap_engine"))
	return e, nil
}

// Catalog returns the engine's catalog snapshot.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Band returns the engine's default band.
func (e *Engine) Band() float64 {
	return e.band
}

// Analyze runs one table through the pipeline. Missing required columns end
// the run with a *SchemaError; every other data problem is reported in
// Report.Health.
func (e *Engine) Analyze(ctx context.Context, table RawTable, opts Options) (*Report, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "gapanalysis.Analyze",
		trace.WithAttributes(attribute.Int("rows.total", len(table.Rows))))
	defer span.End()

	run, err := e.prepare(opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reg, err := NewRegistry(run.catalog)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	_, nspan := e.tracer.Start(ctx, "gapanalysis.Normalize")
	norm := Normalize(table, reg)
	nspan.End()
	if err := norm.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.WarnContext(ctx, "analysis halted on schema",
			slog.Any("missing_fields", norm.MissingFields),
			slog.Any("dropped_columns", norm.Dropped))
		return nil, err
	}
	e.logger.DebugContext(ctx, "normalized",
		slog.Int("rows", len(norm.Rows)),
		slog.Int("rejected", len(norm.Rejected)),
		slog.Int("dropped_columns", len(norm.Dropped)))

	rows := FilterRows(norm.Rows, opts.Filter)
	admitted, excluded := rows, []NormalizedRow(nil)
	if !opts.IncludeOverAttributed {
		admitted, excluded = PartitionOverAttributed(rows, run.catalog)
	}

	var (
		aggs   []ModuleAggregate
		health []HealthIssue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, s := e.tracer.Start(gctx, "gapanalysis.Aggregate")
		defer s.End()
		aggs = Rollup(Aggregate(admitted, run.catalog), run.rollup)
		return gctx.Err()
	})
	g.Go(func() error {
		_, s := e.tracer.Start(gctx, "gapanalysis.CheckHealth")
		defer s.End()
		health = CheckHealth(rows, run.catalog, e.health)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	_, cspan := e.tracer.Start(ctx, "gapanalysis.Compute")
	calc := NewCalculator(run.catalog, run.band)
	gaps := calc.Compute(aggs)
	heatmap := BuildHeatmap(gaps, run.catalog, HeatmapOptions{
		Value:          run.value,
		Order:          run.order,
		ShortLabels:    opts.ShortLabels,
		LabelMaxLength: opts.LabelMaxLength,
	})
	cspan.End()

	issues := make([]HealthIssue, 0, len(norm.Issues)+len(health))
	issues = append(issues, norm.Issues...)
	issues = append(issues, health...)

	report := &Report{
		Columns:        norm.Columns,
		DroppedColumns: nonNil(norm.Dropped),
		Aggregates:     aggs,
		Gaps:           gaps,
		Heatmap:        heatmap,
		Health:         issues,
		Diversity:      DiversityOf(aggs, run.catalog),
		Coverage:       Coverage(aggs),
	}
	report.Summary = summarize(report, norm, len(rows), len(excluded), calc.Band(), run.catalog)
	report.Summary.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("rows.analyzed", report.Summary.AnalyzedRows),
		attribute.Int("modules", report.Summary.Modules),
		attribute.Int("issues.error", report.Summary.IssueCounts[SeverityError]),
	)
	e.logger.InfoContext(ctx, "analysis complete",
		slog.Int("rows", report.Summary.TotalRows),
		slog.Int("analyzed", report.Summary.AnalyzedRows),
		slog.Int("modules", report.Summary.Modules),
		slog.Int("errors", report.Summary.IssueCounts[SeverityError]),
		slog.Int("warnings", report.Summary.IssueCounts[SeverityWarning]),
		slog.Duration("duration", report.Summary.Duration))
	return report, nil
}

type runSettings struct {
	catalog *Catalog
	band    float64
	order   ModuleOrder
	value   ValueMode
	rollup  Dimension
}

// prepare validates per-run options before any row is touched.
func (e *Engine) prepare(opts Options) (runSettings, error) {
	run := runSettings{catalog: e.catalog, band: e.band}
	if len(opts.Targets) > 0 {
		c, err := e.catalog.WithTargets(opts.Targets)
		if err != nil {
			return run, err
		}
		run.catalog = c
	}
	if opts.Band != nil {
		if *opts.Band < 0 {
			return run, &OptionError{Option: "band", Message: "band must not be negative"}
		}
		run.band = *opts.Band
	}
	var err error
	if run.order, err = OrderByName(opts.Sort); err != nil {
		return run, err
	}
	if run.value, err = ParseValueMode(opts.Value); err != nil {
		return run, err
	}
	if run.rollup, err = ParseDimension(opts.Rollup); err != nil {
		return run, err
	}
	if opts.LabelMaxLength < 0 {
		return run, &OptionError{Option: "label_max_length", Message: "must not be negative"}
	}
	return run, nil
}

func summarize(r *Report, norm NormalizeResult, filtered, excluded int, band float64, catalog *Catalog) Summary {
	s := Summary{
		TotalRows:           norm.TotalRows,
		RejectedRows:        len(norm.Rejected),
		ExcludedRows:        excluded,
		FilteredOutRows:     len(norm.Rows) - filtered,
		AnalyzedRows:        filtered - excluded,
		Modules:             len(r.Aggregates),
		Band:                band,
		IssueCounts:         CountBySeverity(r.Health),
		Classifications:     map[Classification]int{ClassUnder: 0, ClassOn: 0, ClassOver: 0, ClassNoData: 0},
		DefaultTargetFields: catalog.FieldsWithoutTarget(),
	}
	for _, a := range r.Aggregates {
		s.TotalPeople += a.TotalPeople
	}
	for _, g := range r.Gaps {
		s.Classifications[g.Classification]++
	}
	return s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"repgap/internal/config"
	apierrors "repgap/internal/errors"
	"repgap/internal/exporter"
	"repgap/internal/gapanalysis"
	"repgap/internal/infrastructure"
	"repgap/internal/ingest"
	api "repgap/pkg/contracts/api/v1"
)

// Run outcomes recorded on the analysis_runs_total counter
const (
	OutcomeSuccess     = "success"
	OutcomeSchemaError = "schema_error"
	OutcomeFailed      = "failed"
)

// AnalysisResult is one finished run and the metadata exports carry.
type AnalysisResult struct {
	RunID      string
	Source     string
	AnalyzedAt time.Time
	Report     *gapanalysis.Report
}

// Meta returns the export metadata of the run.
func (r *AnalysisResult) Meta() exporter.Meta {
	return exporter.Meta{RunID: r.RunID, Source: r.Source, AnalyzedAt: r.AnalyzedAt}
}

// Response returns the API view of the run.
func (r *AnalysisResult) Response() api.AnalysisResponse {
	return api.AnalysisResponse{
		RunID:      r.RunID,
		Source:     r.Source,
		AnalyzedAt: r.AnalyzedAt,
		Report:     r.Report,
	}
}

// ExportTarget is a validated export request.
type ExportTarget struct {
	Format exporter.Format
	Table  exporter.Table
}

// ContentType returns the MIME type of the export.
func (t ExportTarget) ContentType() string {
	return t.Format.ContentType()
}

// FileName returns the download name of the export.
func (t ExportTarget) FileName() string {
	return exporter.FileName(t.Format, t.Table)
}

// AnalysisService owns the catalog snapshot and the engine built from it.
// It is safe for concurrent use.
type AnalysisService struct {
	cfg        config.AnalysisConfig
	engine     *gapanalysis.Engine
	reader     *ingest.Reader
	exporter   *exporter.Exporter
	exportsDir string
	bom        bool
	metrics    *infrastructure.AnalysisMetrics
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceOption configures an AnalysisService
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	metrics    *infrastructure.AnalysisMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
	catalog    *gapanalysis.Catalog
	exportsDir string
	bom        bool
	ingest     ingest.Options
	now        func() time.Time
}

// WithMetrics records run metrics on m
func WithMetrics(m *infrastructure.AnalysisMetrics) ServiceOption {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithTracer traces engine stages with tracer
func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(o *serviceOptions) { o.tracer = tracer }
}

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithCatalog uses catalog instead of loading the configured catalog file
func WithCatalog(catalog *gapanalysis.Catalog) ServiceOption {
	return func(o *serviceOptions) { o.catalog = catalog }
}

// WithExportsDir sets where SaveExports writes files
func WithExportsDir(dir string, bom bool) ServiceOption {
	return func(o *serviceOptions) {
		o.exportsDir = dir
		o.bom = bom
	}
}

// WithIngestOptions tunes how uploads are read
func WithIngestOptions(opts ingest.Options) ServiceOption {
	return func(o *serviceOptions) { o.ingest = opts }
}

// WithClock replaces time.Now for run timestamps
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.now = now }
}

// NewAnalysisService loads the catalog and builds the engine
func NewAnalysisService(cfg config.AnalysisConfig, opts ...ServiceOption) (*AnalysisService, error) {
	o := serviceOptions{logger: slog.Default(), now: time.Now, exportsDir: "exports"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	catalog := o.catalog
	if catalog == nil {
		var err error
		if catalog, err = config.LoadCatalog(cfg.CatalogFile, cfg.DefaultTarget); err != nil {
			return nil, apierrors.NewConfigError("failed to load demographic catalog", err).
				WithContext("catalog_file", cfg.CatalogFile)
		}
	}

	engine, err := gapanalysis.NewEngine(catalog,
		gapanalysis.WithLogger(o.logger),
		gapanalysis.WithTracer(o.tracer),
		gapanalysis.WithBand(cfg.Band),
		gapanalysis.WithHealthOptions(gapanalysis.HealthOptions{
			SparseThreshold:      cfg.SparseThreshold,
			SmallModuleThreshold: cfg.SmallModuleThreshold,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis engine: %w", err)
	}

	registry, err := gapanalysis.NewRegistry(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to build field registry: %w", err)
	}

	logger := o.logger.With(slog.String("component", "analysis_service"))
	logger.Info("analysis service initialized",
		slog.Int("catalog_fields", catalog.Len()),
		slog.Float64("band", cfg.Band),
		slog.Float64("default_target", catalog.DefaultTarget()),
		slog.String("catalog_file", cfg.CatalogFile),
		slog.String("exports_dir", o.exportsDir))

	return &AnalysisService{
		cfg:        cfg,
		engine:     engine,
		reader:     ingest.NewReader(registry, o.ingest, o.logger),
		exporter:   exporter.New(o.exportsDir, o.bom, o.logger),
		exportsDir: o.exportsDir,
		bom:        o.bom,
		metrics:    o.metrics,
		logger:     logger,
		now:        o.now,
	}, nil
}

// Engine returns the underlying engine.
func (s *AnalysisService) Engine() *gapanalysis.Engine {
	return s.engine
}

// MaxUploadBytes is the configured upload limit; zero means unlimited.
func (s *AnalysisService) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

// applyDefaults fills per-run options the caller left unset from configuration
func (s *AnalysisService) applyDefaults(opts gapanalysis.Options) gapanalysis.Options {
	if !s.cfg.ExcludeOverAttributed {
		opts.IncludeOverAttributed = true
	}
	if opts.LabelMaxLength == 0 {
		opts.LabelMaxLength = s.cfg.LabelMaxLength
	}
	return opts
}

// AnalyzeTable runs an already-tabular dataset through the engine.
func (s *AnalysisService) AnalyzeTable(ctx context.Context, source string, table gapanalysis.RawTable, opts gapanalysis.Options) (*AnalysisResult, error) {
	runID := infrastructure.NewID()
	ctx = infrastructure.WithRunID(ctx, runID)
	start := s.now()

	s.logger.DebugContext(ctx, "analysis started",
		slog.String("source", source),
		slog.Int("columns", len(table.Headers)),
		slog.Int("rows", len(table.Rows)))

	report, err := s.engine.Analyze(ctx, table, s.applyDefaults(opts))
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, gapanalysis.ErrMissingRequiredFields) {
			outcome = OutcomeSchemaError
		}
		infrastructure.RecordError(ctx, err)
		infrastructure.RecordAnalysisRun(ctx, s.metrics, infrastructure.AnalysisRun{
			Source:   sourceKind(source),
			Outcome:  outcome,
			Duration: time.Since(start),
			Rows:     len(table.Rows),
		})
		s.logger.WarnContext(ctx, "analysis failed",
			slog.String("source", source),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()))
		return nil, err
	}

	issues := make(map[string]int, len(report.Summary.IssueCounts))
	for sev, n := range report.Summary.IssueCounts {
		issues[string(sev)] = n
	}
	infrastructure.RecordAnalysisRun(ctx, s.metrics, infrastructure.AnalysisRun{
		Source:   sourceKind(source),
		Outcome:  OutcomeSuccess,
		Duration: time.Since(start),
		Rows:     report.Summary.TotalRows,
		Rejected: report.Summary.RejectedRows,
		Excluded: report.Summary.ExcludedRows,
		Issues:   issues,
	})

	s.logger.InfoContext(ctx, "analysis completed",
		slog.String("source", source),
		slog.Int("modules", report.Summary.Modules),
		slog.Int("analyzed_rows", report.Summary.AnalyzedRows),
		slog.Int("rejected_rows", report.Summary.RejectedRows),
		slog.Int("excluded_rows", report.Summary.ExcludedRows),
		slog.Int("health_issues", len(report.Health)),
		slog.Duration("duration", time.Since(start)))

	return &AnalysisResult{
		RunID:      runID,
		Source:     source,
		AnalyzedAt: start.UTC(),
		Report:     report,
	}, nil
}

// AnalyzeUpload reads an uploaded file and analyzes it. The format comes
// from the file extension.
func (s *AnalysisService) AnalyzeUpload(ctx context.Context, filename string, src io.Reader, size int64, opts gapanalysis.Options) (*AnalysisResult, error) {
	if size == 0 {
		return nil, apierrors.NewAppValidationError(ErrEmptyUpload.Error()).WithContext("file", filename)
	}
	if s.metrics != nil && size > 0 {
		s.metrics.UploadBytes.Record(ctx, size,
			metric.WithAttributes(attribute.String("format", strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."))))
	}

	table, err := s.reader.Read(filename, src)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			return nil, apierrors.UnsupportedFormatError(filepath.Ext(filename), ingest.SupportedExtensions())
		}
		return nil, err
	}
	if len(table.Headers) == 0 {
		return nil, apierrors.NewParsingError("no header row found", ErrNoHeaderRow).WithContext("file", filename)
	}
	return s.AnalyzeTable(ctx, filename, table, opts)
}

// AnalyzeFile analyzes a file on disk.
func (s *AnalysisService) AnalyzeFile(ctx context.Context, path string, opts gapanalysis.Options) (*AnalysisResult, error) {
	if _, err := ingest.DetectFormat(path); err != nil {
		return nil, apierrors.UnsupportedFormatError(filepath.Ext(path), ingest.SupportedExtensions())
	}
	table, err := s.reader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(table.Headers) == 0 {
		return nil, apierrors.NewParsingError("no header row found", ErrNoHeaderRow).WithContext("file", path)
	}
	return s.AnalyzeTable(ctx, filepath.Base(path), table, opts)
}

// ResolveExport validates an export format and table name.
func (s *AnalysisService) ResolveExport(format, table string) (ExportTarget, error) {
	f, err := exporter.ParseFormat(format)
	if err != nil {
		return ExportTarget{}, apierrors.UnsupportedFormatError(format, []string{string(exporter.FormatCSV), string(exporter.FormatXLSX)})
	}
	t, err := exporter.ParseTable(table)
	if err != nil {
		return ExportTarget{}, apierrors.ErrValidation("table", err.Error())
	}
	return ExportTarget{Format: f, Table: t}, nil
}

// Export writes one table, or the workbook, of a finished run to w.
func (s *AnalysisService) Export(ctx context.Context, w io.Writer, result *AnalysisResult, target ExportTarget) error {
	if result == nil || result.Report == nil {
		return apierrors.NewAppValidationError("no analysis result to export")
	}
	if err := s.exporter.Write(w, result.Report, result.Meta(), target.Format, target.Table); err != nil {
		infrastructure.RecordError(ctx, err)
		return apierrors.ExportError(err)
	}
	s.recordExport(ctx, target)
	s.logger.DebugContext(ctx, "export written",
		slog.String("run_id", result.RunID),
		slog.String("format", string(target.Format)),
		slog.String("table", string(target.Table)))
	return nil
}

// SaveExports writes every CSV table and the workbook into the exports
// directory and returns the file paths.
func (s *AnalysisService) SaveExports(ctx context.Context, result *AnalysisResult) ([]string, error) {
	if result == nil || result.Report == nil {
		return nil, apierrors.NewAppValidationError("no analysis result to export")
	}
	return s.saveExports(ctx, s.exporter, result)
}

// SaveExportsTo writes the export set into subdir of the exports directory.
// Batch runs use one subdirectory per input file.
func (s *AnalysisService) SaveExportsTo(ctx context.Context, result *AnalysisResult, subdir string) ([]string, error) {
	if result == nil || result.Report == nil {
		return nil, apierrors.NewAppValidationError("no analysis result to export")
	}
	clean := filepath.Clean(subdir)
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, apierrors.ErrValidation("subdir", "must be a relative path inside the exports directory")
	}
	return s.saveExports(ctx, exporter.New(filepath.Join(s.exportsDir, clean), s.bom, s.logger), result)
}

func (s *AnalysisService) saveExports(ctx context.Context, exp *exporter.Exporter, result *AnalysisResult) ([]string, error) {
	paths, err := exp.WriteAll(result.Report, result.Meta())
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return paths, apierrors.NewStorageError("failed to save exports", err)
	}
	for _, table := range []exporter.Table{exporter.TableGaps, exporter.TableHeatmap, exporter.TableHealth, exporter.TableModules} {
		s.recordExport(ctx, ExportTarget{Format: exporter.FormatCSV, Table: table})
	}
	s.recordExport(ctx, ExportTarget{Format: exporter.FormatXLSX})
	return paths, nil
}

func (s *AnalysisService) recordExport(ctx context.Context, target ExportTarget) {
	if s.metrics == nil {
		return
	}
	s.metrics.ExportsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format", string(target.Format)),
		attribute.String("table", string(target.Table)),
	))
}

// Catalog describes the active catalog and each field's resolved target.
func (s *AnalysisService) Catalog() api.CatalogResponse {
	catalog := s.engine.Catalog()
	resp := api.CatalogResponse{DefaultTarget: catalog.DefaultTarget()}
	for _, f := range catalog.Fields() {
		target := catalog.TargetFor(f.Name)
		resp.Fields = append(resp.Fields, api.CatalogField{
			Name:            f.Name,
			Label:           catalog.Label(f.Name),
			ShortLabel:      catalog.ShortLabel(f.Name),
			Target:          target.Percent,
			TargetIsDefault: target.IsDefault,
			Aliases:         f.Aliases,
			Group:           f.Group,
			Independent:     f.Independent,
		})
	}
	for _, g := range catalog.Groups() {
		resp.Groups = append(resp.Groups, api.CatalogGroup{Name: g.Name, Fields: g.Fields})
	}
	return resp
}

// sourceKind keeps metric cardinality bounded: file names collapse to
// their extension.
func sourceKind(source string) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(source)), "."); ext != "" {
		return ext
	}
	if source == "" {
		return "unknown"
	}
	return "json"
}

package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"repgap/internal/config"
)

// MeterName is the instrumentation scope for application metrics and spans
const MeterName = "repgap"

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	EnableMetrics  bool
	EnableTracing  bool
	SampleRatio    float64
	// TraceWriter receives stdout-exported spans; nil means os.Stdout.
	TraceWriter io.Writer
}

// OTelConfigFrom maps telemetry configuration to an OTelConfig
func OTelConfigFrom(cfg config.TelemetryConfig) *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	return &OTelConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: config.AppVersion,
		Environment:    env,
		EnableMetrics:  cfg.MetricsEnabled,
		EnableTracing:  cfg.TracingEnabled,
		SampleRatio:    1.0,
	}
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel sets up tracing and metrics. Disabled signals fall back to
// no-op implementations so callers never need nil checks.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = OTelConfigFrom(config.Default().Telemetry)
	}
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", instanceID()),
	)

	providers := &OTelProviders{
		Logger: logger,
		Tracer: otel.Tracer(MeterName),
		Meter:  noop.NewMeterProvider().Meter(MeterName),
	}

	if cfg.EnableTracing {
		if err := initializeTracing(cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if cfg.EnableMetrics {
		if err := initializeMetrics(cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracing_enabled", cfg.EnableTracing),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

func initializeTracing(cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	w := cfg.TraceWriter
	if w == nil {
		w = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(tp)
	return nil
}

func initializeMetrics(cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	otel.SetMeterProvider(mp)
	return nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// AnalysisMetrics holds the application metrics
type AnalysisMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	RunsTotal     metric.Int64Counter
	RunDuration   metric.Float64Histogram
	RowsProcessed metric.Int64Counter
	RowsRejected  metric.Int64Counter
	RowsExcluded  metric.Int64Counter
	HealthIssues  metric.Int64Counter
	UploadBytes   metric.Int64Histogram
	ExportsTotal  metric.Int64Counter
}

// CreateAnalysisMetrics registers the application instruments on meter
func CreateAnalysisMetrics(meter metric.Meter) (*AnalysisMetrics, error) {
	var (
		m   AnalysisMetrics
		err error
	)
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}

	m.HTTPRequestsTotal = counter("http_requests_total", "Total number of HTTP requests")
	m.RunsTotal = counter("analysis_runs_total", "Total number of analysis runs by outcome")
	m.RowsProcessed = counter("analysis_rows_total", "Rows received by analysis runs")
	m.RowsRejected = counter("analysis_rows_rejected_total", "Rows rejected during normalization")
	m.RowsExcluded = counter("analysis_rows_excluded_total", "Over-attributed rows excluded from aggregation")
	m.HealthIssues = counter("analysis_health_issues_total", "Health issues reported, by severity")
	m.ExportsTotal = counter("analysis_exports_total", "Exports produced, by format and table")
	if err != nil {
		return nil, err
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.RunDuration, err = meter.Float64Histogram("analysis_run_duration_seconds",
		metric.WithDescription("Analysis run duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.UploadBytes, err = meter.Int64Histogram("analysis_upload_bytes",
		metric.WithDescription("Size of uploaded files"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	return &m, nil
}

// AnalysisRun is what RecordAnalysisRun needs to know about a finished run
type AnalysisRun struct {
	Source   string
	Outcome  string
	Duration time.Duration
	Rows     int
	Rejected int
	Excluded int
	Issues   map[string]int
}

// RecordAnalysisRun records one run on m and annotates the current span
func RecordAnalysisRun(ctx context.Context, m *AnalysisMetrics, run AnalysisRun) {
	if m == nil {
		return
	}
	source := attribute.String("source", run.Source)
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(source, attribute.String("outcome", run.Outcome)))
	m.RunDuration.Record(ctx, run.Duration.Seconds(), metric.WithAttributes(source))
	m.RowsProcessed.Add(ctx, int64(run.Rows), metric.WithAttributes(source))
	m.RowsRejected.Add(ctx, int64(run.Rejected), metric.WithAttributes(source))
	m.RowsExcluded.Add(ctx, int64(run.Excluded), metric.WithAttributes(source))
	for severity, n := range run.Issues {
		m.HealthIssues.Add(ctx, int64(n), metric.WithAttributes(attribute.String("severity", severity)))
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("analysis.recorded", trace.WithAttributes(
			attribute.String("outcome", run.Outcome),
			attribute.Int("rows", run.Rows),
			attribute.Float64("duration_seconds", run.Duration.Seconds()),
		))
	}
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func instanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

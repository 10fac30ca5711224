// Package services implements the application layer between the HTTP
// handlers, the CLI and the gap analysis engine.
//
// AnalysisService owns one catalog snapshot and the engine built from it.
// It turns uploads and JSON tables into engine input, assigns a run ID to
// every analysis, records run metrics and produces exports. Services never
// write HTTP responses; they return errors from repgap/internal/errors or
// repgap/internal/gapanalysis and leave the status mapping to the
// transport layer.
//
// HealthService reports liveness, readiness and version information.
//
// # Usage
//
//	svc, err := services.NewAnalysisService(cfg.Analysis,
//	    services.WithLogger(logger),
//	    services.WithMetrics(metrics),
//	    services.WithExportsDir(cfg.GetExportsDir(), true),
//	)
//	result, err := svc.AnalyzeUpload(ctx, "employees.xlsx", file, size, opts)
package services

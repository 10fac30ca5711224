package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"repgap/internal/config"
	"repgap/pkg/contracts"
	api "repgap/pkg/contracts/api/v1"
)

// Health statuses
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// HealthService provides health check functionality
type HealthService struct {
	version    string
	analysis   *AnalysisService
	exportsDir string
	startTime  time.Time
	logger     *slog.Logger
}

// NewHealthService creates a health service. analysis may be nil, in which
// case readiness reports the catalog as unavailable.
func NewHealthService(version string, analysis *AnalysisService, paths config.PathsConfig, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:    version,
		analysis:   analysis,
		exportsDir: paths.ExportsDir,
		startTime:  time.Now(),
		logger:     logger.With(slog.String("component", "health_service")),
	}
}

// Uptime returns how long the service has been running
func (hs *HealthService) Uptime() time.Duration {
	return time.Since(hs.startTime)
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) api.HealthResponse {
	status := hs.ReadinessCheck(ctx)
	if status.Status == StatusReady {
		status.Status = StatusOK
	}
	return status
}

// ReadinessCheck reports whether the catalog is loaded and exports can be written
func (hs *HealthService) ReadinessCheck(ctx context.Context) api.HealthResponse {
	status := api.HealthResponse{
		Status:    StatusReady,
		Version:   hs.version,
		Uptime:    hs.Uptime().Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks: map[string]string{
			"catalog": hs.checkCatalog(),
			"exports": hs.checkExportsDir(),
		},
	}
	for name, check := range status.Checks {
		if check != StatusOK {
			status.Status = StatusNotReady
			hs.logger.WarnContext(ctx, "readiness check failed",
				slog.String("check", name),
				slog.String("result", check))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) api.HealthResponse {
	return api.HealthResponse{
		Status:    StatusAlive,
		Version:   hs.version,
		Uptime:    hs.Uptime().Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks: map[string]string{
			"goroutines": fmt.Sprintf("%d", runtime.NumGoroutine()),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	info := contracts.GetVersionInfo()
	return map[string]interface{}{
		"version":        hs.version,
		"build_time":     info.BuildTime,
		"git_commit":     info.GitCommit,
		"go_version":     info.GoVersion,
		"os":             info.OS,
		"arch":           info.Architecture,
		"api_version":    info.APIVersion,
		"catalog_format": info.CatalogFormat,
		"uptime":         hs.Uptime().Seconds(),
		"start_time":     hs.startTime.Format(time.RFC3339),
	}
}

func (hs *HealthService) checkCatalog() string {
	if hs.analysis == nil || hs.analysis.Engine() == nil {
		return "not loaded"
	}
	return StatusOK
}

func (hs *HealthService) checkExportsDir() string {
	if hs.exportsDir == "" {
		return StatusOK
	}
	info, err := os.Stat(hs.exportsDir)
	switch {
	case os.IsNotExist(err):
		// Created on first save.
		return StatusOK
	case err != nil:
		return err.Error()
	case !info.IsDir():
		return "not a directory"
	}
	return StatusOK
}

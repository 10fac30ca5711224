package http

import (
	"context"
	"io"

	"repgap/internal/gapanalysis"
	"repgap/internal/services"
	api "repgap/pkg/contracts/api/v1"
)

// AnalysisServiceInterface defines the analysis operations the handlers need
type AnalysisServiceInterface interface {
	AnalyzeTable(ctx context.Context, source string, table gapanalysis.RawTable, opts gapanalysis.Options) (*services.AnalysisResult, error)
	AnalyzeUpload(ctx context.Context, filename string, src io.Reader, size int64, opts gapanalysis.Options) (*services.AnalysisResult, error)
	ResolveExport(format, table string) (services.ExportTarget, error)
	Export(ctx context.Context, w io.Writer, result *services.AnalysisResult, target services.ExportTarget) error
	Catalog() api.CatalogResponse
	MaxUploadBytes() int64
}

var _ AnalysisServiceInterface = (*services.AnalysisService)(nil)

package http

import (
	"bytes"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "repgap/internal/errors"
	"repgap/internal/middleware"
	"repgap/internal/services"
	api "repgap/pkg/contracts/api/v1"
)

const (
	// RunIDHeader carries the analysis run ID on export downloads
	RunIDHeader = "X-Run-ID"

	// multipartMemory is how much of an upload is held in memory before
	// spilling to temporary files
	multipartMemory = 8 << 20

	jsonSource = "request"
)

// AnalysisHandler serves the gap analysis API
type AnalysisHandler struct {
	service      AnalysisServiceInterface
	validator    *middleware.ValidationMiddleware
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(service AnalysisServiceInterface, validator *middleware.ValidationMiddleware, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		service:      service,
		validator:    validator,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("component", "analysis_handler")),
	}
}

// Routes returns the analysis routes, mounted under /api/analysis
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(render.SetContentType(render.ContentTypeJSON)).Post("/", h.Analyze)
	r.With(render.SetContentType(render.ContentTypeJSON)).Post("/upload", h.Upload)
	r.Post("/export", h.Export)
	return r
}

// Analyze handles POST /api/analysis
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	result, ok := h.analyzeJSON(w, r)
	if !ok {
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, result.Response())
}

// Upload handles POST /api/analysis/upload
func (h *AnalysisHandler) Upload(w http.ResponseWriter, r *http.Request) {
	result, ok := h.analyzeUpload(w, r)
	if !ok {
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, result.Response())
}

// Export handles POST /api/analysis/export?format=csv|xlsx&table=...
// The body is either the JSON of POST /api/analysis or a multipart upload.
func (h *AnalysisHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := api.ExportQuery{
		Format: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))),
		Table:  strings.ToLower(strings.TrimSpace(r.URL.Query().Get("table"))),
	}
	if q.Format == "" {
		q.Format = "csv"
	}
	if err := h.validator.ValidateStruct(&q); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	target, err := h.service.ResolveExport(q.Format, q.Table)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var (
		result *services.AnalysisResult
		ok     bool
	)
	if isMultipart(r) {
		result, ok = h.analyzeUpload(w, r)
	} else {
		result, ok = h.analyzeJSON(w, r)
	}
	if !ok {
		return
	}

	// Buffered so a failed export can still be reported as a problem.
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf, result, target); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", target.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": target.FileName()}))
	w.Header().Set(RunIDHeader, result.RunID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write export",
			slog.String("run_id", result.RunID),
			slog.String("error", err.Error()))
	}
}

// GetCatalog handles GET /api/catalog
func (h *AnalysisHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Catalog())
}

func (h *AnalysisHandler) analyzeJSON(w http.ResponseWriter, r *http.Request) (*services.AnalysisResult, bool) {
	var req api.AnalysisRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}

	result, err := h.service.AnalyzeTable(r.Context(), jsonSource, TableFromRequest(req), OptionsFromRequest(req.AnalysisOptions))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	return result, true
}

func (h *AnalysisHandler) analyzeUpload(w http.ResponseWriter, r *http.Request) (*services.AnalysisResult, bool) {
	limit := h.service.MaxUploadBytes()
	if limit > 0 {
		if r.ContentLength > limit {
			h.errorHandler.HandleError(w, r, apierrors.PayloadTooLargeError(limit))
			return nil, false
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.errorHandler.HandleError(w, r, apierrors.PayloadTooLargeError(limit))
			return nil, false
		}
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return nil, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "a file field is required"))
		return nil, false
	}
	defer file.Close()

	opts, err := optionsFromForm(url.Values(r.MultipartForm.Value))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	if err := h.validator.ValidateStruct(&opts); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}

	h.logger.DebugContext(r.Context(), "upload received",
		slog.String("file", header.Filename),
		slog.Int64("size", header.Size))

	result, err := h.service.AnalyzeUpload(r.Context(), header.Filename, file, header.Size, OptionsFromRequest(opts))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return nil, false
	}
	return result, true
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"repgap/internal/gapanalysis"
)

// Common error types following RFC 7807
const (
	TypeValidation      = "/errors/validation"
	TypeNotFound        = "/errors/not-found"
	TypeRateLimit       = "/errors/rate-limit"
	TypeInternal        = "/errors/internal"
	TypeServiceDown     = "/errors/service-unavailable"
	TypeTimeout         = "/errors/timeout"
	TypePayloadTooLarge = "/errors/payload-too-large"
	TypeUnsupported     = "/errors/unsupported-format"
	TypeMethodNotAllow  = "/errors/method-not-allowed"
)

// Domain-specific error types
const (
	TypeSchema        = "/errors/analysis/missing-fields"
	TypeCatalog       = "/errors/analysis/invalid-catalog"
	TypeOptions       = "/errors/analysis/invalid-options"
	TypeUnreadable    = "/errors/analysis/unreadable-input"
	TypeDataIntegrity = "/errors/analysis/data-integrity"
	TypeExport        = "/errors/analysis/export-failed"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	problem := h.ErrorToProblem(err, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem.WithExtension("trace_id", reqID)
	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	path := r.URL.Path

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			path,
		)
	}

	var schemaErr *gapanalysis.SchemaError
	if errors.As(err, &schemaErr) {
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeSchema,
			"Missing Required Fields",
			schemaErr.Error(),
			path,
		).WithExtension("missing_fields", schemaErr.Missing)
	}

	var catalogErr *gapanalysis.CatalogError
	if errors.As(err, &catalogErr) {
		p := NewProblemDetails(http.StatusBadRequest, TypeCatalog, "Invalid Catalog", catalogErr.Error(), path)
		if catalogErr.Field != "" {
			p.WithExtension("field", catalogErr.Field)
		}
		return p
	}

	var optionErr *gapanalysis.OptionError
	if errors.As(err, &optionErr) {
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeOptions,
			"Invalid Analysis Options",
			optionErr.Error(),
			path,
		).WithExtension("option", optionErr.Option)
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return NewProblemDetails(
			http.StatusBadRequest,
			TypeValidation,
			"Validation Failed",
			"Request validation failed",
			path,
		).WithExtension("errors", FieldErrors(validationErrs))
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return NewProblemDetails(
			http.StatusRequestEntityTooLarge,
			TypePayloadTooLarge,
			"Payload Too Large",
			"The request body exceeds the maximum allowed size",
			path,
		).WithExtension("max_size", maxBytesErr.Limit)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErrorToProblem(appErr, path)
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		path,
	)
}

func appErrorToProblem(appErr *AppError, path string) *ProblemDetails {
	var p *ProblemDetails
	switch appErr.Type {
	case ErrTypeParsing:
		p = NewProblemDetails(http.StatusBadRequest, TypeUnreadable, "Unreadable Input", appErr.Message, path)
	case ErrTypeValidation, ErrTypeRow:
		p = NewProblemDetails(http.StatusBadRequest, TypeValidation, "Validation Failed", appErr.Message, path)
	case ErrTypeSchema:
		p = NewProblemDetails(http.StatusUnprocessableEntity, TypeSchema, "Missing Required Fields", appErr.Message, path)
	case ErrTypeIntegrity:
		p = NewProblemDetails(http.StatusUnprocessableEntity, TypeDataIntegrity, "Data Integrity Violation", appErr.Message, path)
	case ErrTypeNotFound:
		p = NewProblemDetails(http.StatusNotFound, TypeNotFound, "Resource Not Found", appErr.Message, path)
	case ErrTypeStorage:
		p = NewProblemDetails(http.StatusInternalServerError, TypeExport, "Storage Failure", "The report could not be written", path)
	default:
		p = NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
			"An unexpected error occurred while processing your request", path)
	}
	for k, v := range appErr.Context {
		p.WithExtension(k, v)
	}
	return p.WithExtension("error_type", string(appErr.Type))
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case "VALIDATION_FAILED", "INVALID_REQUEST", "MISSING_CONTENT_TYPE":
		problemType = TypeValidation
	case "NOT_FOUND":
		problemType = TypeNotFound
	case "PAYLOAD_TOO_LARGE":
		problemType = TypePayloadTooLarge
	case "UNSUPPORTED_FORMAT", "UNSUPPORTED_MEDIA_TYPE":
		problemType = TypeUnsupported
	case "RATE_LIMIT_EXCEEDED":
		problemType = TypeRateLimit
	case "EXPORT_FAILED":
		problemType = TypeExport
	case "SERVICE_UNAVAILABLE":
		problemType = TypeServiceDown
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}

	return problem
}

// FieldErrors flattens validator errors into API validation errors
func FieldErrors(errs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, fe := range errs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: formatFieldError(fe),
		})
	}
	return out
}

func formatFieldError(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "dive":
		return fmt.Sprintf("%s has an invalid element", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound answers requests for unknown routes
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, NotFoundError("route "+r.URL.Path))
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethodNotAllow,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

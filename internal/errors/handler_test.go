package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repgap/internal/gapanalysis"
)

func newTestHandler(t *testing.T, includeStack bool) (*ErrorHandler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewErrorHandler(logger, includeStack), &buf
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	type request struct {
		Band float64 `validate:"gte=0"`
	}
	validationErr := validator.New().Struct(request{Band: -1})
	require.Error(t, validationErr)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantExt    string
	}{
		{
			name:       "missing required fields",
			err:        fmt.Errorf("analyze: %w", &gapanalysis.SchemaError{Missing: []string{"grade", "spec_count"}}),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeSchema,
			wantExt:    "missing_fields",
		},
		{
			name:       "catalog error",
			err:        &gapanalysis.CatalogError{Field: "lgbt", Message: "target must be within [0, 100]"},
			wantStatus: http.StatusBadRequest,
			wantType:   TypeCatalog,
			wantExt:    "field",
		},
		{
			name:       "option error",
			err:        &gapanalysis.OptionError{Option: "band", Message: "must be non-negative"},
			wantStatus: http.StatusBadRequest,
			wantType:   TypeOptions,
			wantExt:    "option",
		},
		{
			name:       "validator errors",
			err:        validationErr,
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
			wantExt:    "errors",
		},
		{
			name:       "max bytes",
			err:        &http.MaxBytesError{Limit: 10},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   TypePayloadTooLarge,
			wantExt:    "max_size",
		},
		{
			name:       "deadline exceeded",
			err:        fmt.Errorf("aggregate: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "api error",
			err:        UnsupportedFormatError("pdf", []string{"csv"}),
			wantStatus: http.StatusUnsupportedMediaType,
			wantType:   TypeUnsupported,
			wantExt:    "details",
		},
		{
			name:       "parsing app error",
			err:        NewParsingError("cannot read workbook", nil),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeUnreadable,
			wantExt:    "error_type",
		},
		{
			name:       "storage app error",
			err:        NewStorageError("write export", fmt.Errorf("disk full")),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeExport,
		},
		{
			name:       "unknown error",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
	}

	h, _ := newTestHandler(t, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/analysis", nil)
			p := h.ErrorToProblem(tt.err, r)

			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, "/api/analysis", p.Instance)
			if tt.wantExt != "" {
				assert.Contains(t, p.Extensions, tt.wantExt)
			}
		})
	}
}

func TestErrorHandler_HandleError(t *testing.T) {
	h, logs := newTestHandler(t, false)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/analysis", nil)
	ctx := context.WithValue(r.Context(), middleware.RequestIDKey, "req-123")
	r = r.WithContext(ctx)

	h.HandleError(w, r, &gapanalysis.SchemaError{Missing: []string{"spec_count"}})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, TypeSchema, body["type"])
	assert.Equal(t, "req-123", body["trace_id"])
	assert.Equal(t, []interface{}{"spec_count"}, body["missing_fields"])
	assert.NotContains(t, body, "stack")
	assert.Contains(t, logs.String(), `"level":"WARN"`)
	assert.Contains(t, logs.String(), `"component":"error_handler"`)
}

func TestErrorHandler_HandleError_Nil(t *testing.T) {
	h, logs := newTestHandler(t, false)
	w := httptest.NewRecorder()

	h.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, 0, w.Body.Len())
	assert.Empty(t, logs.String())
}

func TestErrorHandler_HandleError_StackOnServerErrors(t *testing.T) {
	h, logs := newTestHandler(t, true)
	w := httptest.NewRecorder()

	h.HandleError(w, httptest.NewRequest(http.MethodGet, "/api/analysis/export", nil), fmt.Errorf("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, decodeProblem(t, w), "stack")
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	h, logs := newTestHandler(t, true)
	w := httptest.NewRecorder()

	h.HandlePanic(w, httptest.NewRequest(http.MethodGet, "/api/catalog", nil), "nil map")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, "nil map", body["panic"])
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, false)

	w := httptest.NewRecorder()
	h.NotFound(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeProblem(t, w)
	assert.Equal(t, TypeNotFound, body["type"])
	assert.Equal(t, "NOT_FOUND", body["error_code"])
	assert.Equal(t, "route /api/nope not found", body["detail"])

	w = httptest.NewRecorder()
	h.MethodNotAllowed(w, httptest.NewRequest(http.MethodDelete, "/api/catalog", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, decodeProblem(t, w)["detail"], "DELETE")
}

func TestFieldErrors(t *testing.T) {
	type request struct {
		Sort  string  `validate:"omitempty,oneof=largest-gap label"`
		Band  float64 `validate:"gte=0"`
		Label string  `validate:"required"`
	}
	err := validator.New().Struct(request{Sort: "random", Band: -2})
	require.Error(t, err)

	out := FieldErrors(err.(validator.ValidationErrors))
	require.Len(t, out, 3)
	assert.Equal(t, ValidationError{Field: "Sort", Message: "Sort must be one of: largest-gap label"}, out[0])
	assert.Equal(t, ValidationError{Field: "Band", Message: "Band must be greater than or equal to 0"}, out[1])
	assert.Equal(t, ValidationError{Field: "Label", Message: "Label is required"}, out[2])
}

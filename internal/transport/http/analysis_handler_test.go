package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"repgap/internal/config"
	apierrors "repgap/internal/errors"
	"repgap/internal/gapanalysis"
	"repgap/internal/middleware"
	"repgap/internal/services"
)

func ptr(v float64) *float64 { return &v }

func newTestRouter(t *testing.T, maxUpload int64) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	catalog, err := gapanalysis.NewCatalog([]gapanalysis.DemographicField{
		{Name: "hispanic", Label: "Hispanic", ShortLabel: "H", Target: ptr(18)},
		{Name: "lgbt", Label: "LGBT", Independent: true},
	}, 10)
	require.NoError(t, err)

	svc, err := services.NewAnalysisService(config.AnalysisConfig{
		Band:                  1,
		DefaultTarget:         10,
		ExcludeOverAttributed: true,
		MaxUploadBytes:        maxUpload,
		SparseThreshold:       1,
		SmallModuleThreshold:  10,
	},
		services.WithCatalog(catalog),
		services.WithLogger(logger),
		services.WithExportsDir(t.TempDir(), false),
	)
	require.NoError(t, err)

	errs := apierrors.NewErrorHandler(logger, false)
	validation := middleware.NewValidationMiddleware(logger, errs, 1<<20)
	analysis := NewAnalysisHandler(svc, validation, errs, logger)
	health := NewHealthHandler(services.NewHealthService("1.0.0-test", svc, config.PathsConfig{ExportsDir: t.TempDir()}, logger), logger)

	r := chi.NewRouter()
	r.Get("/api/health", health.HealthCheck)
	r.Get("/api/health/ready", health.ReadinessCheck)
	r.Get("/api/health/live", health.LivenessCheck)
	r.Get("/api/version", health.Version)
	r.Get("/api/catalog", analysis.GetCatalog)
	r.Mount("/api/analysis", analysis.Routes())
	r.Handle("/metrics", NewMetricsHandler(nil, errs))
	return r
}

const analysisBody = `{
	"headers": ["Entity Desc", "Grade", "Component", "Spec Count", "Hispanic", "LGBT"],
	"rows": [
		{"Entity Desc": "Fractions", "Grade": "3", "Component": "Lesson", "Spec Count": 100, "Hispanic": 10, "LGBT": 7}
	]
}`

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAnalysisHandler_Analyze(t *testing.T) {
	router := newTestRouter(t, 1<<20)

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		checkResult func(t *testing.T, body map[string]interface{})
	}{
		{
			name:       "valid table",
			body:       analysisBody,
			wantStatus: http.StatusOK,
			checkResult: func(t *testing.T, body map[string]interface{}) {
				assert.NotEmpty(t, body["run_id"])
				assert.Equal(t, "request", body["source"])
				report := body["report"].(map[string]interface{})
				summary := report["summary"].(map[string]interface{})
				assert.Equal(t, float64(1), summary["modules"])
				assert.Equal(t, float64(100), summary["total_people"])
				gaps := report["gaps"].([]interface{})
				require.Len(t, gaps, 2)
				assert.Equal(t, "under", gaps[0].(map[string]interface{})["classification"])
			},
		},
		{
			name:       "missing required columns",
			body:       `{"headers": ["Entity Desc", "Hispanic"], "rows": [{"Entity Desc": "Fractions", "Hispanic": 1}]}`,
			wantStatus: http.StatusUnprocessableEntity,
			checkResult: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeSchema, body["type"])
				assert.ElementsMatch(t, []interface{}{"grade", "component", "spec_count"}, body["missing_fields"])
			},
		},
		{
			name:       "no headers",
			body:       `{"rows": []}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "target out of range",
			body:       `{"headers": ["Grade"], "targets": {"hispanic": 120}}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown sort order",
			body:       `{"headers": ["Grade"], "sort": "random"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"headers": [`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty body",
			body:       ``,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.checkResult != nil {
				tt.checkResult(t, decodeBody(t, rec))
			}
		})
	}
}

func TestAnalysisHandler_AnalyzeWithOptions(t *testing.T) {
	router := newTestRouter(t, 1<<20)
	body := `{
		"headers": ["Entity Desc", "Grade", "Component", "Spec Count", "Hispanic", "LGBT"],
		"rows": [
			{"Entity Desc": "Fractions", "Grade": "3", "Component": "Lesson", "Spec Count": 100, "Hispanic": 10, "LGBT": 7},
			{"Entity Desc": "Decimals", "Grade": "4", "Component": "Lesson", "Spec Count": 50, "Hispanic": 9, "LGBT": 5}
		],
		"targets": {"hispanic": 10},
		"filter": {"grades": ["3"]},
		"value": "actual"
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decodeBody(t, rec)["report"].(map[string]interface{})
	summary := report["summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["modules"])
	assert.Equal(t, float64(1), summary["filtered_out_rows"])

	gaps := report["gaps"].([]interface{})
	first := gaps[0].(map[string]interface{})
	assert.Equal(t, float64(10), first["target_percent"])
	assert.Equal(t, "on", first["classification"])

	heatmap := report["heatmap"].(map[string]interface{})
	assert.Equal(t, "actual", heatmap["value"])
}

func TestAnalysisHandler_Upload(t *testing.T) {
	csvData := []byte("Entity Desc,Grade,Component,Spec Count,Hispanic,LGBT\nFractions,3,Lesson,100,10,7\n")

	tests := []struct {
		name       string
		filename   string
		data       []byte
		fields     map[string]string
		maxUpload  int64
		wantStatus int
	}{
		{name: "csv", filename: "people.csv", data: csvData, wantStatus: http.StatusOK},
		{name: "csv with options", filename: "people.csv", data: csvData,
			fields: map[string]string{"band": "2.5", "grade": "3,4", "targets": `{"lgbt": 7}`, "short_labels": "true"}, wantStatus: http.StatusOK},
		{name: "unsupported format", filename: "people.pdf", data: csvData, wantStatus: http.StatusUnsupportedMediaType},
		{name: "missing file", wantStatus: http.StatusBadRequest},
		{name: "bad band", filename: "people.csv", data: csvData, fields: map[string]string{"band": "wide"}, wantStatus: http.StatusBadRequest},
		{name: "bad value mode", filename: "people.csv", data: csvData, fields: map[string]string{"value": "ratio"}, wantStatus: http.StatusBadRequest},
		{name: "bad targets", filename: "people.csv", data: csvData, fields: map[string]string{"targets": "[1]"}, wantStatus: http.StatusBadRequest},
		{name: "too large", filename: "people.csv", data: csvData, maxUpload: 16, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maxUpload := tt.maxUpload
			if maxUpload == 0 {
				maxUpload = 1 << 20
			}
			router := newTestRouter(t, maxUpload)

			body, contentType := multipartBody(t, tt.filename, tt.data, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusOK {
				resp := decodeBody(t, rec)
				assert.Equal(t, tt.filename, resp["source"])
			}
		})
	}
}

func TestAnalysisHandler_UploadWorkbook(t *testing.T) {
	router := newTestRouter(t, 1<<20)

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Module Report"},
		{"Entity Desc", "Grade", "Component", "Spec Count", "Hispanic", "LGBT"},
		{"Fractions", "3", "Lesson", 40, 8, 2},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	var data bytes.Buffer
	require.NoError(t, f.Write(&data))
	require.NoError(t, f.Close())

	body, contentType := multipartBody(t, "people.xlsx", data.Bytes(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody(t, rec)["report"].(map[string]interface{})["summary"].(map[string]interface{})
	assert.Equal(t, float64(40), summary["total_people"])
}

func TestAnalysisHandler_Export(t *testing.T) {
	router := newTestRouter(t, 1<<20)

	tests := []struct {
		name            string
		query           string
		wantStatus      int
		wantContentType string
		wantFile        string
	}{
		{name: "default gaps csv", query: "", wantStatus: http.StatusOK, wantContentType: config.ContentTypeCSV, wantFile: config.GapsCSVName},
		{name: "heatmap csv", query: "?format=csv&table=heatmap", wantStatus: http.StatusOK, wantContentType: config.ContentTypeCSV, wantFile: config.HeatmapCSVName},
		{name: "health csv", query: "?format=csv&table=health", wantStatus: http.StatusOK, wantContentType: config.ContentTypeCSV, wantFile: config.HealthCSVName},
		{name: "workbook", query: "?format=xlsx", wantStatus: http.StatusOK, wantContentType: config.ContentTypeXLSX, wantFile: config.WorkbookName},
		{name: "unknown format", query: "?format=pdf", wantStatus: http.StatusBadRequest},
		{name: "unknown table", query: "?table=people", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/analysis/export"+tt.query, strings.NewReader(analysisBody))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantContentType, rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), tt.wantFile)
			assert.NotEmpty(t, rec.Header().Get(RunIDHeader))
			assert.NotZero(t, rec.Body.Len())
		})
	}
}

func TestAnalysisHandler_ExportGapsContent(t *testing.T) {
	router := newTestRouter(t, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/export?format=csv&table=gaps", strings.NewReader(analysisBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Fractions")
	assert.Contains(t, lines[1], "Hispanic")
}

func TestAnalysisHandler_ExportUpload(t *testing.T) {
	router := newTestRouter(t, 1<<20)

	body, contentType := multipartBody(t, "people.csv",
		[]byte("Entity Desc,Grade,Component,Spec Count,Hispanic\nFractions,3,Lesson,100,10\n"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analysis/export?format=xlsx", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Gap Analysis")
}

func TestAnalysisHandler_GetCatalog(t *testing.T) {
	router := newTestRouter(t, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(10), body["default_target"])
	fields := body["fields"].([]interface{})
	require.Len(t, fields, 2)
	assert.Equal(t, "hispanic", fields[0].(map[string]interface{})["name"])
	assert.Equal(t, true, fields[1].(map[string]interface{})["target_is_default"])
}

func TestHealthHandler(t *testing.T) {
	router := newTestRouter(t, 1<<20)

	tests := []struct {
		path       string
		wantStatus string
	}{
		{path: "/api/health", wantStatus: services.StatusOK},
		{path: "/api/health/ready", wantStatus: services.StatusReady},
		{path: "/api/health/live", wantStatus: services.StatusAlive},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantStatus, decodeBody(t, rec)["status"])
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.0.0-test", decodeBody(t, rec)["version"])
}

func TestMetricsHandler_Disabled(t *testing.T) {
	router := newTestRouter(t, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsHandler_Delegates(t *testing.T) {
	exporter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("analysis_runs_total 1\n"))
	})
	h := NewMetricsHandler(exporter, apierrors.NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), false))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "analysis_runs_total")
}

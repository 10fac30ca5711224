package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"repgap/internal/gapanalysis"
)

func ptr(v float64) *float64 { return &v }

// testReport analyzes a small table: one populated module, one empty
// module and an unmapped column.
func testReport(t *testing.T) *gapanalysis.Report {
	t.Helper()
	catalog, err := gapanalysis.NewCatalog([]gapanalysis.DemographicField{
		{Name: "hispanic", Label: "Hispanic", ShortLabel: "H", Target: ptr(18)},
		{Name: "lgbt", Label: "LGBT"},
	}, 10)
	require.NoError(t, err)

	engine, err := gapanalysis.NewEngine(catalog)
	require.NoError(t, err)

	report, err := engine.Analyze(context.Background(), gapanalysis.RawTable{
		Headers: []string{"Entity Desc", "Grade", "Component", "Spec Count", "Hispanic", "LGBT", "Page Folio"},
		Rows: []gapanalysis.RawRow{
			{"Entity Desc": "Fractions", "Grade": "3", "Component": "Lesson", "Spec Count": 100, "Hispanic": 10, "LGBT": 7, "Page Folio": 4},
			{"Entity Desc": "Empty", "Grade": "3", "Component": "Lesson", "Spec Count": 0, "Hispanic": 0, "LGBT": 0},
		},
	}, gapanalysis.Options{})
	require.NoError(t, err)
	return report
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	data = bytes.TrimPrefix(data, utf8BOM)
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, WriteOptions{
		Headers:   []string{"a", "b"},
		Records:   [][]string{{"1", "x,y"}, {"2", `quote "q"`}},
		BOMPrefix: true,
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "x,y"}, {"2", `quote "q"`}}, readCSV(t, buf.Bytes()))
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)

	path, err := w.WriteCSV("nested/out.csv", WriteOptions{Headers: []string{"h"}, Records: [][]string{{"1"}}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "out.csv"), path)

	_, err = w.WriteCSV("nested/out.csv", WriteOptions{Headers: []string{"h"}, Records: [][]string{{"2"}}, Append: true})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"h"}, {"1"}, {"2"}}, readCSV(t, data))
}

func TestGapTable(t *testing.T) {
	report := testReport(t)
	tab := GapTable(report.Gaps)

	require.Len(t, tab.Records, 4)
	assert.Len(t, tab.Headers, 12)
	assert.Equal(t, []string{
		"Fractions", "3", "Lesson", "hispanic", "Hispanic",
		"10", "100", "10.00", "18.00", "false", "-8.00", "under",
	}, tab.Records[0])

	empty := tab.Records[2]
	assert.Equal(t, "Empty", empty[0])
	assert.Equal(t, "n/a", empty[7], "undefined actual percent is never exported as 0")
	assert.Equal(t, "n/a", empty[10])
	assert.Equal(t, "no-data", empty[11])

	lgbt := tab.Records[1]
	assert.Equal(t, "true", lgbt[9], "LGBT falls back to the default target")
}

func TestHeatmapTable(t *testing.T) {
	report := testReport(t)
	tab := HeatmapTable(report.Heatmap)

	assert.Equal(t, append([]string{"Module"}, report.Heatmap.ColLabels...), tab.Headers)
	require.Len(t, tab.Records, 2)
	assert.Equal(t, report.Heatmap.RowLabels[0], tab.Records[0][0])
	assert.Equal(t, []string{"n/a", "n/a"}, tab.Records[1][1:])
}

func TestHealthTable_OrdersBySeverity(t *testing.T) {
	row, source := 3, 6
	tab := HealthTable([]gapanalysis.HealthIssue{
		{Severity: gapanalysis.SeverityInfo, Code: gapanalysis.CodeSparseField, Field: "lgbt", Message: "sparse"},
		{Severity: gapanalysis.SeverityError, Code: gapanalysis.CodeOverAttribution, RowIndex: &row, SourceRow: &source, Message: "over"},
		{Severity: gapanalysis.SeverityWarning, Code: gapanalysis.CodeZeroField, Field: "lgbt", Message: "zero"},
	})

	require.Len(t, tab.Records, 3)
	assert.Equal(t, []string{"error", "OVER_ATTRIBUTION", "3", "6", "", "over"}, tab.Records[0])
	assert.Equal(t, "warning", tab.Records[1][0])
	assert.Equal(t, "info", tab.Records[2][0])
	assert.Equal(t, "", tab.Records[2][2])
}

func TestModulesTable(t *testing.T) {
	report := testReport(t)
	tab := ModulesTable(report)

	require.Len(t, tab.Records, 2)
	assert.Equal(t, "true", tab.Records[0][5])
	assert.NotEqual(t, "n/a", tab.Records[0][6])
	assert.Equal(t, []string{"false", "n/a", "n/a", "n/a"}, tab.Records[1][5:])
}

func TestSummaryTable(t *testing.T) {
	report := testReport(t)
	tab := SummaryTable(report, Meta{RunID: "run-1", Source: "roster.csv", AnalyzedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)})

	values := make(map[string]string)
	for _, rec := range tab.Records {
		values[rec[0]] = rec[1]
	}
	assert.Equal(t, "run-1", values["Run ID"])
	assert.Equal(t, "2024-01-02 03:04:05 UTC", values["Analyzed At"])
	assert.Equal(t, "2", values["Total Rows"])
	assert.Equal(t, "100", values["Total People"])
	assert.Equal(t, "1.00", values["Band (pp)"])
	assert.Equal(t, "lgbt", values["Default Target Fields"])
}

func TestParseFormatAndTable(t *testing.T) {
	f, err := ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	assert.Contains(t, f.ContentType(), "spreadsheetml")

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedExport)

	tab, err := ParseTable("health")
	require.NoError(t, err)
	assert.Equal(t, TableHealth, tab)

	_, err = ParseTable("pivot")
	assert.ErrorIs(t, err, ErrUnsupportedExport)

	assert.Equal(t, "data_health.csv", FileName(FormatCSV, TableHealth))
	assert.Equal(t, "representation_gap_analysis.xlsx", FileName(FormatXLSX, TableHealth))
}

func TestExporter_WriteCSV(t *testing.T) {
	report := testReport(t)
	e := New("", true, nil)

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf, report, Meta{}, FormatCSV, TableHealth))

	records := readCSV(t, buf.Bytes())
	assert.Equal(t, []string{"Severity", "Code", "Row Index", "Source Row", "Field", "Message"}, records[0])
	assert.Len(t, records, len(report.Health)+1)

	assert.ErrorIs(t, e.Write(io.Discard, nil, Meta{}, FormatCSV, TableGaps), ErrUnsupportedExport)
	assert.ErrorIs(t, e.Write(io.Discard, report, Meta{}, Format("pdf"), TableGaps), ErrUnsupportedExport)
}

func TestWriteWorkbook(t *testing.T) {
	report := testReport(t)

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, report, Meta{RunID: "run-1", Source: "roster.csv"}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetGaps, SheetHeatmap, SheetHealth, SheetModules}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value"}, summary[0])
	assert.Equal(t, []string{"Run ID", "run-1"}, summary[1])

	heat, err := f.GetRows(SheetHeatmap, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, heat, 3)
	assert.Equal(t, "Module", heat[0][0])
	gap, err := strconv.ParseFloat(heat[1][1], 64)
	require.NoError(t, err)
	assert.InDelta(t, -8.0, gap, 1e-9)
	assert.Equal(t, "n/a", heat[2][1])

	gaps, err := f.GetRows(SheetGaps)
	require.NoError(t, err)
	assert.Len(t, gaps, len(report.Gaps)+1)
}

func TestExporter_WriteAll(t *testing.T) {
	report := testReport(t)
	dir := t.TempDir()

	paths, err := New(dir, false, nil).WriteAll(report, Meta{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, paths, 5)

	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), p)
		assert.True(t, strings.HasPrefix(p, dir))
	}
	assert.Equal(t, filepath.Join(dir, "representation_gap_analysis.xlsx"), paths[4])
}

package exporter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"repgap/internal/config"
	"repgap/internal/gapanalysis"
)

// ErrUnsupportedExport is returned for unknown formats or tables.
var ErrUnsupportedExport = errors.New("unsupported export")

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name; "" selects FormatCSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", ErrUnsupportedExport, s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return config.ContentTypeXLSX
	}
	return config.ContentTypeCSV
}

// Meta identifies the run an export belongs to.
type Meta struct {
	RunID      string
	Source     string
	AnalyzedAt time.Time
}

// FileName returns the download name for one export.
func FileName(format Format, table Table) string {
	if format == FormatXLSX {
		return config.WorkbookName
	}
	switch table {
	case TableHeatmap:
		return config.HeatmapCSVName
	case TableHealth:
		return config.HealthCSVName
	case TableModules:
		return "modules.csv"
	default:
		return config.GapsCSVName
	}
}

// Exporter writes reports as CSV tables or a workbook.
type Exporter struct {
	csv    *CSVWriter
	logger *slog.Logger
	bom    bool
}

// New creates an exporter writing files under dir. bom prefixes CSV output
// with a UTF-8 byte order mark.
func New(dir string, bom bool, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		csv:    NewCSVWriter(dir, logger),
		logger: logger.With(slog.String("component", "exporter")),
		bom:    bom,
	}
}

// Write streams one export to w. table is ignored for workbooks.
func (e *Exporter) Write(w io.Writer, report *gapanalysis.Report, meta Meta, format Format, table Table) error {
	if report == nil {
		return fmt.Errorf("%w: no report", ErrUnsupportedExport)
	}
	switch format {
	case FormatXLSX:
		return WriteWorkbook(w, report, meta)
	case FormatCSV:
		t, err := Build(report, table)
		if err != nil {
			return err
		}
		return Encode(w, WriteOptions{Headers: t.Headers, Records: t.Records, BOMPrefix: e.bom})
	default:
		return fmt.Errorf("%w: unknown format %q", ErrUnsupportedExport, format)
	}
}

// WriteAll writes every CSV table and the workbook into the exporter's
// directory and returns the written paths.
func (e *Exporter) WriteAll(report *gapanalysis.Report, meta Meta) ([]string, error) {
	var paths []string
	for _, table := range []Table{TableGaps, TableHeatmap, TableHealth, TableModules} {
		t, err := Build(report, table)
		if err != nil {
			return paths, err
		}
		path, err := e.csv.WriteCSV(FileName(FormatCSV, table), WriteOptions{
			Headers:   t.Headers,
			Records:   t.Records,
			BOMPrefix: e.bom,
		})
		if err != nil {
			return paths, fmt.Errorf("failed to write %s table: %w", table, err)
		}
		paths = append(paths, path)
	}

	path := e.csv.resolvePath(config.WorkbookName)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return paths, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return paths, fmt.Errorf("failed to create workbook: %w", err)
	}
	if err := WriteWorkbook(file, report, meta); err != nil {
		file.Close()
		return paths, err
	}
	if err := file.Close(); err != nil {
		return paths, err
	}
	paths = append(paths, path)

	e.logger.Info("report exported",
		slog.String("run_id", meta.RunID),
		slog.Int("files", len(paths)),
	)
	return paths, nil
}

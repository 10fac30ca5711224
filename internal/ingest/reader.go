package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"repgap/internal/config"
	apierrors "repgap/internal/errors"
	"repgap/internal/gapanalysis"
)

// DefaultHeaderScanRows is how many leading rows are searched for the header.
const DefaultHeaderScanRows = 10

// Format is an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for files whose extension is not readable.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// SupportedExtensions lists the accepted file extensions.
func SupportedExtensions() []string {
	return []string{config.ExtCSV, config.ExtTSV, config.ExtXLSX}
}

// DetectFormat picks a format from the file extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case config.ExtCSV:
		return FormatCSV, nil
	case config.ExtTSV:
		return FormatTSV, nil
	case config.ExtXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Options tunes a Reader.
type Options struct {
	// Sheet selects a workbook sheet by name. Empty means the first sheet.
	Sheet string
	// Comma overrides delimiter detection for delimited text.
	Comma rune
	// HeaderScanRows bounds the header search. Zero means DefaultHeaderScanRows.
	HeaderScanRows int
}

// Reader turns uploaded files into raw tables. It only locates the header
// row and copies cell text; all coercion happens in the normalizer.
type Reader struct {
	registry *gapanalysis.Registry
	opts     Options
	logger   *slog.Logger
}

// NewReader creates a reader that uses registry to recognize header rows.
func NewReader(registry *gapanalysis.Registry, opts Options, logger *slog.Logger) *Reader {
	if opts.HeaderScanRows <= 0 {
		opts.HeaderScanRows = DefaultHeaderScanRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		registry: registry,
		opts:     opts,
		logger:   logger.With(slog.String("component", "ingest")),
	}
}

// ReadFile opens path and reads it by extension.
func (r *Reader) ReadFile(path string) (gapanalysis.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return gapanalysis.RawTable{}, apierrors.NewParsingError("cannot open input file", err).
			WithContext("path", path)
	}
	defer f.Close()
	return r.Read(filepath.Base(path), f)
}

// Read parses src according to the extension of filename.
func (r *Reader) Read(filename string, src io.Reader) (gapanalysis.RawTable, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return gapanalysis.RawTable{}, err
	}

	var (
		records [][]string
		lines   []int
	)
	switch format {
	case FormatXLSX:
		records, err = r.readWorkbook(src)
	case FormatTSV:
		records, lines, err = readDelimited(src, '\t')
	default:
		records, lines, err = readDelimited(src, r.opts.Comma)
	}
	if err != nil {
		return gapanalysis.RawTable{}, err
	}

	table, headerRow := r.buildTable(records, lines)
	r.logger.Debug("input read",
		slog.String("file", filename),
		slog.String("format", string(format)),
		slog.Int("header_row", headerRow),
		slog.Int("columns", len(table.Headers)),
		slog.Int("rows", len(table.Rows)),
	)
	return table, nil
}

// readDelimited returns the records and the 1-based line each one starts on.
// encoding/csv drops empty lines, so record and line numbers differ.
func readDelimited(src io.Reader, comma rune) ([][]string, []int, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, nil, apierrors.NewParsingError("cannot read delimited file", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if comma == 0 {
		comma = sniffDelimiter(data)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, apierrors.NewParsingError("malformed delimited file", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return records, lines, nil
}

// sniffDelimiter picks ';' when the first line has more semicolons than
// commas, as spreadsheet exports in some locales do.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func (r *Reader) readWorkbook(src io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, apierrors.NewParsingError("cannot open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apierrors.NewParsingError("workbook has no sheets", nil)
	}
	sheet := sheets[0]
	if r.opts.Sheet != "" {
		idx, err := f.GetSheetIndex(r.opts.Sheet)
		if err != nil || idx < 0 {
			return nil, apierrors.NewNotFoundError(fmt.Sprintf("sheet %q", r.opts.Sheet)).
				WithContext("sheets", sheets)
		}
		sheet = r.opts.Sheet
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apierrors.NewParsingError(fmt.Sprintf("cannot read sheet %q", sheet), err)
	}
	r.logger.Debug("workbook sheet selected", slog.String("sheet", sheet), slog.Int("rows", len(rows)))
	return rows, nil
}

// buildTable locates the header row and turns the records below it into raw
// rows. Blank header cells and fully blank rows are skipped. When a header
// repeats, the first column wins and the normalizer reports the duplicate.
// lines gives the 1-based file line of each record; nil means records map
// one to one onto sheet rows.
func (r *Reader) buildTable(records [][]string, lines []int) (gapanalysis.RawTable, int) {
	headerRow := r.findHeaderRow(records)
	if headerRow < 0 {
		return gapanalysis.RawTable{Headers: []string{}, Rows: []gapanalysis.RawRow{}}, -1
	}

	header := records[headerRow]
	table := gapanalysis.RawTable{
		Headers:    make([]string, 0, len(header)),
		Rows:       make([]gapanalysis.RawRow, 0, len(records)-headerRow-1),
		SourceRows: make([]int, 0, len(records)-headerRow-1),
	}
	for _, h := range header {
		if h = strings.TrimSpace(h); h != "" {
			table.Headers = append(table.Headers, h)
		}
	}

	for i := headerRow + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		row := make(gapanalysis.RawRow, len(table.Headers))
		for col, h := range header {
			h = strings.TrimSpace(h)
			if h == "" {
				continue
			}
			if _, seen := row[h]; seen {
				continue
			}
			if col < len(rec) {
				row[h] = rec[col]
			} else {
				row[h] = nil
			}
		}
		table.Rows = append(table.Rows, row)
		table.SourceRows = append(table.SourceRows, sourceLine(lines, i))
	}
	return table, headerRow
}

// findHeaderRow returns the first row within the scan window that resolves at
// least two required fields, falling back to the first non-blank row.
func (r *Reader) findHeaderRow(records [][]string) int {
	first := -1
	for i := 0; i < len(records) && i < r.opts.HeaderScanRows; i++ {
		if blank(records[i]) {
			continue
		}
		if first < 0 {
			first = i
		}
		if r.requiredHits(records[i]) >= 2 {
			return i
		}
	}
	if first < 0 {
		for i := range records {
			if !blank(records[i]) {
				return i
			}
		}
	}
	return first
}

func (r *Reader) requiredHits(rec []string) int {
	hits := make(map[string]bool)
	for _, cell := range rec {
		ref, ok := r.registry.Resolve(cell)
		if ok && ref.Kind != gapanalysis.KindDemographic {
			hits[ref.Name] = true
		}
	}
	return len(hits)
}

func sourceLine(lines []int, i int) int {
	if i < len(lines) {
		return lines[i]
	}
	return i + 1
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

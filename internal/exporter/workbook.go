package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"repgap/internal/gapanalysis"
)

// Sheet names of the analysis workbook, in order.
const (
	SheetSummary = "Summary"
	SheetGaps    = "Gap Analysis"
	SheetHeatmap = "Heatmap"
	SheetHealth  = "Data Health"
	SheetModules = "Modules"
)

// classification fill colors
var classFills = map[gapanalysis.Classification]string{
	gapanalysis.ClassUnder:  "F4B6B6",
	gapanalysis.ClassOn:     "C6EFCE",
	gapanalysis.ClassOver:   "BDD7EE",
	gapanalysis.ClassNoData: "D9D9D9",
}

// WriteWorkbook renders the full report as an .xlsx workbook.
func WriteWorkbook(w io.Writer, report *gapanalysis.Report, meta Meta) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	for _, name := range []string{SheetGaps, SheetHeatmap, SheetHealth, SheetModules} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeSheet(f, SheetSummary, SummaryTable(report, meta), bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 34); err != nil {
		return err
	}

	gaps := GapTable(report.Gaps)
	if err := writeSheet(f, SheetGaps, gaps, bold); err != nil {
		return err
	}
	if len(gaps.Records) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(gaps.Headers), len(gaps.Records)+1)
		if err := f.AutoFilter(SheetGaps, "A1:"+last, nil); err != nil {
			return err
		}
	}

	if err := writeHeatmap(f, report.Heatmap, bold); err != nil {
		return err
	}
	if err := writeSheet(f, SheetHealth, HealthTable(report.Health), bold); err != nil {
		return err
	}
	if err := writeSheet(f, SheetModules, ModulesTable(report), bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

// writeSheet writes a table as text cells with a bold, frozen header row.
func writeSheet(f *excelize.File, sheet string, t Tabular, headerStyle int) error {
	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	if len(t.Headers) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(t.Headers), 1)
		if err := f.SetCellStyle(sheet, "A1", end, headerStyle); err != nil {
			return err
		}
	}

	for i, rec := range t.Records {
		row := make([]interface{}, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// writeHeatmap writes the matrix with numeric cells filled by classification.
func writeHeatmap(f *excelize.File, m gapanalysis.HeatmapMatrix, headerStyle int) error {
	styles := make(map[gapanalysis.Classification]int, len(classFills))
	for class, color := range classFills {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
			NumFmt:    2,
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		if err != nil {
			return err
		}
		styles[class] = id
	}

	header := make([]interface{}, 0, len(m.ColLabels)+1)
	header = append(header, "Module")
	for _, l := range m.ColLabels {
		header = append(header, l)
	}
	if err := f.SetSheetRow(SheetHeatmap, "A1", &header); err != nil {
		return err
	}
	end, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetHeatmap, "A1", end, headerStyle); err != nil {
		return err
	}

	for i, row := range m.Cells {
		label, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetCellStr(SheetHeatmap, label, m.RowLabels[i]); err != nil {
			return err
		}
		for j, cell := range row {
			ref, _ := excelize.CoordinatesToCellName(j+2, i+2)
			if v, ok := cell.Value.Value(); ok {
				err := f.SetCellFloat(SheetHeatmap, ref, v, 2, 64)
				if err != nil {
					return err
				}
			} else if err := f.SetCellStr(SheetHeatmap, ref, notAvailable); err != nil {
				return err
			}
			if err := f.SetCellStyle(SheetHeatmap, ref, ref, styles[cell.Classification]); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(SheetHeatmap, "A", "A", 40); err != nil {
		return err
	}
	return f.SetPanes(SheetHeatmap, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	})
}

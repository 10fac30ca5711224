package exporter

import (
	"fmt"
	"sort"
	"strings"

	"repgap/internal/gapanalysis"
)

// Table names a tabular view of a report.
type Table string

const (
	TableGaps    Table = "gaps"
	TableHeatmap Table = "heatmap"
	TableHealth  Table = "health"
	TableModules Table = "modules"
)

// ParseTable validates a table name; "" selects TableGaps.
func ParseTable(s string) (Table, error) {
	switch t := Table(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TableGaps, nil
	case TableGaps, TableHeatmap, TableHealth, TableModules:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown table %q", ErrUnsupportedExport, s)
	}
}

// Tabular is a header row plus string records.
type Tabular struct {
	Headers []string
	Records [][]string
}

// Build renders one table of the report.
func Build(report *gapanalysis.Report, table Table) (Tabular, error) {
	switch table {
	case TableGaps:
		return GapTable(report.Gaps), nil
	case TableHeatmap:
		return HeatmapTable(report.Heatmap), nil
	case TableHealth:
		return HealthTable(report.Health), nil
	case TableModules:
		return ModulesTable(report), nil
	default:
		return Tabular{}, fmt.Errorf("%w: unknown table %q", ErrUnsupportedExport, table)
	}
}

// GapTable is the long-form gap table, one row per module and demographic.
func GapTable(gaps []gapanalysis.GapResult) Tabular {
	t := Tabular{
		Headers: []string{
			"Entity Desc", "Grade", "Component", "Demographic", "Label",
			"Actual Count", "Total People", "Actual %", "Target %", "Target Is Default",
			"Gap (pp)", "Classification",
		},
		Records: make([][]string, 0, len(gaps)),
	}
	for _, g := range gaps {
		t.Records = append(t.Records, []string{
			g.Module.EntityDesc, g.Module.Grade, g.Module.Component,
			g.Demographic, g.Label,
			formatInt(g.ActualCount), formatInt(g.TotalPeople),
			formatPercent(g.ActualPercent), formatFloat(g.TargetPercent), formatBool(g.TargetIsDefault),
			formatPercent(g.GapPercent), string(g.Classification),
		})
	}
	return t
}

// HeatmapTable is the matrix with module labels in the first column.
func HeatmapTable(m gapanalysis.HeatmapMatrix) Tabular {
	t := Tabular{
		Headers: append([]string{"Module"}, m.ColLabels...),
		Records: make([][]string, 0, len(m.Cells)),
	}
	for i, row := range m.Cells {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, m.RowLabels[i])
		for _, cell := range row {
			rec = append(rec, formatPercent(cell.Value))
		}
		t.Records = append(t.Records, rec)
	}
	return t
}

// HealthTable is the checklist, errors first, then warnings, then info.
// Order within a severity is kept.
func HealthTable(issues []gapanalysis.HealthIssue) Tabular {
	sorted := make([]gapanalysis.HealthIssue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severityRank(sorted[i].Severity) < severityRank(sorted[j].Severity)
	})

	t := Tabular{
		Headers: []string{"Severity", "Code", "Row Index", "Source Row", "Field", "Message"},
		Records: make([][]string, 0, len(sorted)),
	}
	for _, is := range sorted {
		t.Records = append(t.Records, []string{
			string(is.Severity), string(is.Code), formatRow(is.RowIndex), formatRow(is.SourceRow), is.Field, is.Message,
		})
	}
	return t
}

func severityRank(s gapanalysis.Severity) int {
	switch s {
	case gapanalysis.SeverityError:
		return 0
	case gapanalysis.SeverityWarning:
		return 1
	default:
		return 2
	}
}

// ModulesTable lists every aggregate with its diversity metrics.
func ModulesTable(report *gapanalysis.Report) Tabular {
	metrics := make(map[gapanalysis.ModuleKey]gapanalysis.DiversityMetrics, len(report.Diversity.Modules))
	for _, md := range report.Diversity.Modules {
		metrics[md.Module] = md.Metrics
	}

	t := Tabular{
		Headers: []string{
			"Entity Desc", "Grade", "Component", "Rows", "Total People", "Has Data",
			"Simpson Index", "Shannon Index", "Representation Balance",
		},
		Records: make([][]string, 0, len(report.Aggregates)),
	}
	for _, agg := range report.Aggregates {
		d := metrics[agg.Key]
		t.Records = append(t.Records, []string{
			agg.Key.EntityDesc, agg.Key.Grade, agg.Key.Component,
			formatInt(int64(agg.Rows)), formatInt(agg.TotalPeople), formatBool(hasData(agg)),
			formatMetric(d.Simpson, d.Defined), formatMetric(d.Shannon, d.Defined), formatMetric(d.Balance, d.Defined),
		})
	}
	return t
}

func hasData(agg gapanalysis.ModuleAggregate) bool {
	for _, n := range agg.Counts {
		if n > 0 {
			return true
		}
	}
	return false
}

// SummaryTable is the key/value headline of a run.
func SummaryTable(report *gapanalysis.Report, meta Meta) Tabular {
	s := report.Summary
	records := [][]string{
		{"Run ID", meta.RunID},
		{"Source", meta.Source},
	}
	if !meta.AnalyzedAt.IsZero() {
		records = append(records, []string{"Analyzed At", meta.AnalyzedAt.UTC().Format("2006-01-02 15:04:05 MST")})
	}
	records = append(records,
		[]string{"Total Rows", formatInt(int64(s.TotalRows))},
		[]string{"Analyzed Rows", formatInt(int64(s.AnalyzedRows))},
		[]string{"Rejected Rows", formatInt(int64(s.RejectedRows))},
		[]string{"Excluded Rows (over-attributed)", formatInt(int64(s.ExcludedRows))},
		[]string{"Filtered Out Rows", formatInt(int64(s.FilteredOutRows))},
		[]string{"Modules", formatInt(int64(s.Modules))},
		[]string{"Total People", formatInt(s.TotalPeople)},
		[]string{"Band (pp)", formatFloat(s.Band)},
	)
	for _, sev := range []gapanalysis.Severity{gapanalysis.SeverityError, gapanalysis.SeverityWarning, gapanalysis.SeverityInfo} {
		records = append(records, []string{"Issues: " + string(sev), formatInt(int64(s.IssueCounts[sev]))})
	}
	for _, c := range []gapanalysis.Classification{gapanalysis.ClassUnder, gapanalysis.ClassOn, gapanalysis.ClassOver, gapanalysis.ClassNoData} {
		records = append(records, []string{"Cells: " + string(c), formatInt(int64(s.Classifications[c]))})
	}
	if len(s.DefaultTargetFields) > 0 {
		records = append(records, []string{"Default Target Fields", strings.Join(s.DefaultTargetFields, ", ")})
	}
	d := report.Diversity.Dataset
	records = append(records,
		[]string{"Dataset Simpson Index", formatMetric(d.Simpson, d.Defined)},
		[]string{"Dataset Shannon Index", formatMetric(d.Shannon, d.Defined)},
		[]string{"Dataset Representation Balance", formatMetric(d.Balance, d.Defined)},
	)
	return Tabular{Headers: []string{"Metric", "Value"}, Records: records}
}

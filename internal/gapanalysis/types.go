package gapanalysis

import (
	"fmt"
	"strings"
)

// RawRow maps an original column header to its cell value. Values are
// whatever the file reader produced: string, a numeric type, bool or nil.
type RawRow map[string]any

// RawTable is a parsed upload: the header list in column order plus the rows.
// SourceRows, when set, holds the 1-based line or sheet row each entry of
// Rows was read from.
type RawTable struct {
	Headers    []string `json:"headers"`
	Rows       []RawRow `json:"rows"`
	SourceRows []int    `json:"source_rows,omitempty"`
}

// SourceRow returns the file position of Rows[i], 0 when unknown.
func (t RawTable) SourceRow(i int) int {
	if i < 0 || i >= len(t.SourceRows) {
		return 0
	}
	return t.SourceRows[i]
}

// ModuleKey identifies a curriculum module. Rollup views leave the
// dimensions they collapse empty.
type ModuleKey struct {
	EntityDesc string `json:"entity_desc"`
	Grade      string `json:"grade"`
	Component  string `json:"component"`
}

// String returns the display label, joining the non-empty parts.
func (k ModuleKey) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{k.EntityDesc, k.Grade, k.Component} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " | ")
}

// NormalizedRow is one admitted input row. Counts only ever holds catalog
// field names; unknown columns never reach it.
type NormalizedRow struct {
	Index     int              `json:"row_index"`
	SourceRow int              `json:"source_row,omitempty"`
	Module    ModuleKey        `json:"module"`
	SpecCount int64            `json:"spec_count"`
	Counts    map[string]int64 `json:"counts"`
}

// Count returns the demographic count for name, 0 when absent.
func (r NormalizedRow) Count(name string) int64 {
	return r.Counts[name]
}

// ModuleAggregate is the fold of every row sharing one module key.
type ModuleAggregate struct {
	Key         ModuleKey        `json:"module"`
	TotalPeople int64            `json:"total_people"`
	Counts      map[string]int64 `json:"demographic_counts"`
	Rows        int              `json:"rows"`
}

// Count returns the demographic count for name, 0 when absent.
func (a ModuleAggregate) Count(name string) int64 {
	return a.Counts[name]
}

// Classification of a gap against the tolerance band.
type Classification string

const (
	ClassUnder  Classification = "under"
	ClassOn     Classification = "on"
	ClassOver   Classification = "over"
	ClassNoData Classification = "no-data"
)

// GapResult is the comparison of one module and one demographic to its target.
type GapResult struct {
	Module          ModuleKey      `json:"module"`
	Demographic     string         `json:"demographic"`
	Label           string         `json:"label"`
	ActualCount     int64          `json:"actual_count"`
	TotalPeople     int64          `json:"total_people"`
	ActualPercent   Percent        `json:"actual_percent"`
	TargetPercent   float64        `json:"target_percent"`
	TargetIsDefault bool           `json:"target_is_default"`
	GapPercent      Percent        `json:"gap_percent"`
	Classification  Classification `json:"classification"`
}

// Severity of a health issue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// IssueCode identifies the check that produced a health issue.
type IssueCode string

const (
	CodeNegativeCount    IssueCode = "NEGATIVE_COUNT"
	CodeMalformedNumber  IssueCode = "MALFORMED_NUMBER"
	CodeFractionalCount  IssueCode = "FRACTIONAL_COUNT"
	CodeMissingIdentity  IssueCode = "MISSING_IDENTITY"
	CodeDuplicateColumn  IssueCode = "DUPLICATE_COLUMN"
	CodeZeroField        IssueCode = "ZERO_FIELD"
	CodeOverAttribution  IssueCode = "OVER_ATTRIBUTION"
	CodeUnderAttribution IssueCode = "UNDER_ATTRIBUTION"
	CodeSparseField      IssueCode = "SPARSE_FIELD"
	CodeSmallModule      IssueCode = "SMALL_MODULE"
	CodeDefaultTarget    IssueCode = "DEFAULT_TARGET"
)

// HealthIssue is one data-quality finding. RowIndex is the 0-based index of
// the data row when the issue is row-scoped. SourceRow is the 1-based line or
// sheet row it came from, set when the reader tracked it; blank rows skipped
// on ingest make the two drift apart.
type HealthIssue struct {
	Severity  Severity  `json:"severity"`
	Code      IssueCode `json:"code"`
	Message   string    `json:"message"`
	RowIndex  *int      `json:"row_index,omitempty"`
	SourceRow *int      `json:"source_row,omitempty"`
	Field     string    `json:"field,omitempty"`
}

func rowIssue(sev Severity, code IssueCode, row NormalizedRow, field, format string, args ...any) HealthIssue {
	idx := row.Index
	issue := HealthIssue{
		Severity: sev,
		Code:     code,
		RowIndex: &idx,
		Field:    field,
	}
	prefix := fmt.Sprintf("row index %d: ", row.Index)
	if row.SourceRow > 0 {
		src := row.SourceRow
		issue.SourceRow = &src
		prefix = fmt.Sprintf("row index %d (source row %d): ", row.Index, row.SourceRow)
	}
	issue.Message = prefix + fmt.Sprintf(format, args...)
	return issue
}

func datasetIssue(sev Severity, code IssueCode, field, format string, args ...any) HealthIssue {
	return HealthIssue{
		Severity: sev,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Field:    field,
	}
}

// CountBySeverity tallies issues per severity.
func CountBySeverity(issues []HealthIssue) map[Severity]int {
	counts := map[Severity]int{
		SeverityInfo:    0,
		SeverityWarning: 0,
		SeverityError:   0,
	}
	for _, is := range issues {
		counts[is.Severity]++
	}
	return counts
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []HealthIssue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

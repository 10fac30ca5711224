package gapanalysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ColumnMapping records which original header was admitted as which field.
type ColumnMapping struct {
	Header string `json:"header"`
	Field  string `json:"field"`
}

// NormalizeResult is the output of Normalize. When MissingFields is not
// empty, Rows is empty and the caller must not proceed.
type NormalizeResult struct {
	Rows          []NormalizedRow `json:"-"`
	MissingFields []string        `json:"missing_fields,omitempty"`
	Columns       []ColumnMapping `json:"columns"`
	Dropped       []string        `json:"dropped_columns,omitempty"`
	Issues        []HealthIssue   `json:"issues,omitempty"`
	Rejected      []int           `json:"rejected_rows,omitempty"`
	TotalRows     int             `json:"total_rows"`
}

// Err returns a *SchemaError when required fields are missing.
func (r NormalizeResult) Err() error {
	if len(r.MissingFields) == 0 {
		return nil
	}
	return &SchemaError{Missing: r.MissingFields}
}

// MaxCount is the largest count a cell may hold. Larger values are treated
// as malformed so row sums stay far from int64 overflow.
const MaxCount int64 = 1_000_000_000

type cellStatus int

const (
	cellOK cellStatus = iota
	cellEmpty
	cellMalformed
	cellFractional
	cellTooLarge
)

// Normalize maps headers to canonical fields through the registry and coerces
// every row. Columns the registry does not know are dropped. Rows with a
// negative count are rejected and reported.
func Normalize(table RawTable, reg *Registry) NormalizeResult {
	res := NormalizeResult{TotalRows: len(table.Rows)}

	mapped := make(map[string]string) // canonical field -> header
	var demographic []ColumnMapping
	for _, h := range table.Headers {
		ref, ok := reg.Resolve(h)
		if !ok {
			res.Dropped = append(res.Dropped, h)
			continue
		}
		if prev, dup := mapped[ref.Name]; dup {
			res.Dropped = append(res.Dropped, h)
			res.Issues = append(res.Issues, datasetIssue(SeverityWarning, CodeDuplicateColumn, ref.Name,
				"column %q maps to %s already provided by column %q, ignored", h, ref.Name, prev))
			continue
		}
		mapped[ref.Name] = h
		res.Columns = append(res.Columns, ColumnMapping{Header: h, Field: ref.Name})
		if ref.Kind == KindDemographic {
			demographic = append(demographic, ColumnMapping{Header: h, Field: ref.Name})
		}
	}

	for _, name := range RequiredFields {
		if _, ok := mapped[name]; !ok {
			res.MissingFields = append(res.MissingFields, name)
		}
	}
	if len(res.MissingFields) > 0 {
		return res
	}

	for i, raw := range table.Rows {
		row := NormalizedRow{
			Index:     i,
			SourceRow: table.SourceRow(i),
			Module: ModuleKey{
				EntityDesc: identityValue(raw[mapped[FieldEntityDesc]]),
				Grade:      identityValue(raw[mapped[FieldGrade]]),
				Component:  identityValue(raw[mapped[FieldComponent]]),
			},
			Counts: make(map[string]int64, len(demographic)),
		}
		for _, id := range []struct{ field, value string }{
			{FieldEntityDesc, row.Module.EntityDesc},
			{FieldGrade, row.Module.Grade},
			{FieldComponent, row.Module.Component},
		} {
			if id.value == "" {
				res.Issues = append(res.Issues, rowIssue(SeverityWarning, CodeMissingIdentity, row, id.field,
					"%s is empty", id.field))
			}
		}

		rejected := false
		readCount := func(field string, cell any) int64 {
			n, status := coerceCount(cell)
			switch status {
			case cellMalformed:
				res.Issues = append(res.Issues, rowIssue(SeverityWarning, CodeMalformedNumber, row, field,
					"%s value %q is not a number, treated as 0", field, cellString(cell)))
			case cellTooLarge:
				res.Issues = append(res.Issues, rowIssue(SeverityWarning, CodeMalformedNumber, row, field,
					"%s value %q exceeds %d, treated as 0", field, cellString(cell), MaxCount))
			case cellFractional:
				res.Issues = append(res.Issues, rowIssue(SeverityWarning, CodeFractionalCount, row, field,
					"%s value %q is not a whole number, rounded to %d", field, cellString(cell), n))
			}
			if n < 0 {
				rejected = true
				res.Issues = append(res.Issues, rowIssue(SeverityError, CodeNegativeCount, row, field,
					"%s is negative (%d), row excluded", field, n))
			}
			return n
		}

		row.SpecCount = readCount(FieldSpecCount, raw[mapped[FieldSpecCount]])
		for _, col := range demographic {
			row.Counts[col.Field] = readCount(col.Field, raw[col.Header])
		}

		if rejected {
			res.Rejected = append(res.Rejected, i)
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

// identityValue renders an identity cell as a trimmed string.
func identityValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return strings.TrimSpace(cellString(v))
	}
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(v)
	}
}

// coerceCount parses a count cell. Empty cells are 0. Unparsable cells and
// cells above MaxCount are 0 and reported. Fractions are rounded.
func coerceCount(v any) (int64, cellStatus) {
	n, status := parseCount(v)
	if n > MaxCount {
		return 0, cellTooLarge
	}
	return n, status
}

func parseCount(v any) (int64, cellStatus) {
	switch x := v.(type) {
	case nil:
		return 0, cellEmpty
	case int:
		return int64(x), cellOK
	case int8:
		return int64(x), cellOK
	case int16:
		return int64(x), cellOK
	case int32:
		return int64(x), cellOK
	case int64:
		return x, cellOK
	case uint:
		return int64(x), cellOK
	case uint8:
		return int64(x), cellOK
	case uint16:
		return int64(x), cellOK
	case uint32:
		return int64(x), cellOK
	case uint64:
		if x > uint64(MaxCount) {
			return 0, cellTooLarge
		}
		return int64(x), cellOK
	case float32:
		return coerceFloat(float64(x))
	case float64:
		return coerceFloat(x)
	case json.Number:
		return coerceString(x.String())
	case string:
		return coerceString(x)
	default:
		return 0, cellMalformed
	}
}

func coerceString(s string) (int64, cellStatus) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, cellEmpty
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, cellOK
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, cellMalformed
	}
	return coerceFloat(f)
}

func coerceFloat(f float64) (int64, cellStatus) {
	if math.IsNaN(f) || math.IsInf(f, -1) || f < math.MinInt64/2 {
		return 0, cellMalformed
	}
	if f > float64(MaxCount) {
		return 0, cellTooLarge
	}
	if f != math.Trunc(f) {
		return int64(math.Round(f)), cellFractional
	}
	return int64(f), cellOK
}

// Package api contains the HTTP API contract for the gap analysis service.
// Version v1 represents the current stable API version.
package api

// FilterRequest restricts which modules are analyzed. An empty list
// places no constraint on that dimension.
type FilterRequest struct {
	Entities   []string `json:"entities,omitempty" validate:"omitempty,dive,required"`
	Grades     []string `json:"grades,omitempty" validate:"omitempty,dive,required"`
	Components []string `json:"components,omitempty" validate:"omitempty,dive,required"`
}

// AnalysisOptions are the per-run knobs shared by every analysis endpoint.
type AnalysisOptions struct {
	// Targets overrides catalog targets by canonical field name.
	Targets map[string]float64 `json:"targets,omitempty" validate:"omitempty,dive,keys,fieldname,endkeys,gte=0,lte=100"`
	// Band is the half-width of the on-target band in percentage points.
	Band                  *float64      `json:"band,omitempty" validate:"omitempty,gte=0,lte=100"`
	Filter                FilterRequest `json:"filter"`
	Sort                  string        `json:"sort,omitempty" validate:"omitempty,oneof=first-seen largest-gap total-people label"`
	Value                 string        `json:"value,omitempty" validate:"omitempty,oneof=gap actual"`
	Rollup                string        `json:"rollup,omitempty" validate:"omitempty,oneof=entity grade component"`
	ShortLabels           bool          `json:"short_labels,omitempty"`
	LabelMaxLength        int           `json:"label_max_length,omitempty" validate:"gte=0,lte=256"`
	IncludeOverAttributed bool          `json:"include_over_attributed,omitempty"`
}

// AnalysisRequest is the JSON body of POST /api/analysis and
// POST /api/analysis/export. Rows map header text to cell values.
type AnalysisRequest struct {
	Headers []string         `json:"headers" validate:"required,min=1"`
	Rows    []map[string]any `json:"rows"`
	AnalysisOptions
}

// ExportQuery selects the export format and, for CSV, the table.
type ExportQuery struct {
	Format string `json:"format" validate:"required,oneof=csv xlsx"`
	Table  string `json:"table" validate:"omitempty,oneof=gaps heatmap health modules"`
}

package gapanalysis

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ValueMode selects the scalar a heatmap cell carries for color mapping.
type ValueMode string

const (
	ValueGap    ValueMode = "gap"
	ValueActual ValueMode = "actual"
)

// ParseValueMode validates a value mode name; "" selects ValueGap.
func ParseValueMode(s string) (ValueMode, error) {
	switch ValueMode(s) {
	case "", ValueGap:
		return ValueGap, nil
	case ValueActual:
		return ValueActual, nil
	default:
		return "", &OptionError{Option: "value", Message: fmt.Sprintf("unknown value mode %q", s)}
	}
}

// ModuleSummary is the per-module reduction of GapResults that module
// orderings compare. Position is the first-seen index.
type ModuleSummary struct {
	Key         ModuleKey
	Position    int
	TotalPeople int64
	MaxAbsGap   float64
	MeanGap     float64
	defined     int
}

// ModuleOrder is a comparator over module summaries. A nil order keeps
// first-seen order. Ties always fall back to first-seen order.
type ModuleOrder func(a, b ModuleSummary) int

// OrderByLargestGap sorts modules by their largest absolute gap, descending.
func OrderByLargestGap(a, b ModuleSummary) int {
	return cmp.Compare(b.MaxAbsGap, a.MaxAbsGap)
}

// OrderByTotalPeople sorts modules by population, descending.
func OrderByTotalPeople(a, b ModuleSummary) int {
	return cmp.Compare(b.TotalPeople, a.TotalPeople)
}

// OrderByLabel sorts modules by display label.
func OrderByLabel(a, b ModuleSummary) int {
	return strings.Compare(a.Key.String(), b.Key.String())
}

// OrderByName maps a sort option to a comparator.
func OrderByName(name string) (ModuleOrder, error) {
	switch name {
	case "", "first-seen":
		return nil, nil
	case "largest-gap":
		return OrderByLargestGap, nil
	case "total-people":
		return OrderByTotalPeople, nil
	case "label":
		return OrderByLabel, nil
	default:
		return nil, &OptionError{Option: "sort", Message: fmt.Sprintf("unknown module order %q", name)}
	}
}

// HeatmapOptions controls matrix layout.
type HeatmapOptions struct {
	Value          ValueMode
	Order          ModuleOrder
	ShortLabels    bool
	LabelMaxLength int
}

// Tooltip is the context a renderer shows for a cell.
type Tooltip struct {
	Module          string  `json:"module"`
	Demographic     string  `json:"demographic"`
	ActualPercent   Percent `json:"actual_percent"`
	TargetPercent   float64 `json:"target_percent"`
	TargetIsDefault bool    `json:"target_is_default"`
	ActualCount     int64   `json:"actual_count"`
	TotalPeople     int64   `json:"total_people"`
}

// HeatmapCell is one module × demographic entry.
type HeatmapCell struct {
	Row            ModuleKey      `json:"row"`
	Col            string         `json:"col"`
	Value          Percent        `json:"value"`
	Classification Classification `json:"classification"`
	Tooltip        Tooltip        `json:"tooltip"`
}

// HeatmapMatrix is the module × demographic grid. Cells[i][j] belongs to
// Rows[i] and Cols[j].
type HeatmapMatrix struct {
	RowLabels []string        `json:"row_labels"`
	ColLabels []string        `json:"col_labels"`
	Rows      []ModuleKey     `json:"rows"`
	Cols      []string        `json:"cols"`
	Value     ValueMode       `json:"value"`
	Cells     [][]HeatmapCell `json:"cells"`
}

// Summarize reduces gaps to one ModuleSummary per module, in first-seen order.
func Summarize(gaps []GapResult) []ModuleSummary {
	index := make(map[ModuleKey]int)
	var out []ModuleSummary
	for _, g := range gaps {
		i, ok := index[g.Module]
		if !ok {
			i = len(out)
			index[g.Module] = i
			out = append(out, ModuleSummary{Key: g.Module, Position: i, TotalPeople: g.TotalPeople})
		}
		if v, ok := g.GapPercent.Value(); ok {
			s := &out[i]
			s.MaxAbsGap = math.Max(s.MaxAbsGap, math.Abs(v))
			s.MeanGap += v
			s.defined++
		}
	}
	for i := range out {
		if out[i].defined > 0 {
			out[i].MeanGap /= float64(out[i].defined)
		}
	}
	return out
}

// BuildHeatmap arranges gaps into a matrix. Columns follow catalog order;
// rows follow first-seen order unless opts.Order is set.
func BuildHeatmap(gaps []GapResult, catalog *Catalog, opts HeatmapOptions) HeatmapMatrix {
	if opts.Value == "" {
		opts.Value = ValueGap
	}

	summaries := Summarize(gaps)
	if opts.Order != nil {
		slices.SortStableFunc(summaries, func(a, b ModuleSummary) int {
			if c := opts.Order(a, b); c != 0 {
				return c
			}
			return cmp.Compare(a.Position, b.Position)
		})
	}

	names := catalog.Names()
	col := make(map[string]int, len(names))
	m := HeatmapMatrix{
		RowLabels: make([]string, len(summaries)),
		ColLabels: make([]string, len(names)),
		Rows:      make([]ModuleKey, len(summaries)),
		Cols:      names,
		Value:     opts.Value,
		Cells:     make([][]HeatmapCell, len(summaries)),
	}
	for j, name := range names {
		col[name] = j
		label := catalog.Label(name)
		if opts.ShortLabels {
			label = catalog.ShortLabel(name)
		}
		m.ColLabels[j] = label
	}

	row := make(map[ModuleKey]int, len(summaries))
	for i, s := range summaries {
		row[s.Key] = i
		m.Rows[i] = s.Key
		m.RowLabels[i] = truncateLabel(s.Key.String(), opts.LabelMaxLength)
		m.Cells[i] = make([]HeatmapCell, len(names))
		for j, name := range names {
			m.Cells[i][j] = HeatmapCell{Row: s.Key, Col: name, Value: NoData, Classification: ClassNoData}
		}
	}

	for _, g := range gaps {
		i, okRow := row[g.Module]
		j, okCol := col[g.Demographic]
		if !okRow || !okCol {
			continue
		}
		value := g.GapPercent
		if opts.Value == ValueActual {
			value = g.ActualPercent
		}
		m.Cells[i][j] = HeatmapCell{
			Row:            g.Module,
			Col:            g.Demographic,
			Value:          value,
			Classification: g.Classification,
			Tooltip: Tooltip{
				Module:          g.Module.String(),
				Demographic:     g.Label,
				ActualPercent:   g.ActualPercent,
				TargetPercent:   g.TargetPercent,
				TargetIsDefault: g.TargetIsDefault,
				ActualCount:     g.ActualCount,
				TotalPeople:     g.TotalPeople,
			},
		}
	}
	return m
}

func truncateLabel(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

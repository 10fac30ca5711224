package gapanalysis

import "slices"

// Filter is a caller-selected whitelist applied to rows before aggregation.
// An empty list places no constraint on that dimension.
type Filter struct {
	Entities   []string `json:"entities,omitempty"`
	Grades     []string `json:"grades,omitempty"`
	Components []string `json:"components,omitempty"`
}

// IsZero reports whether the filter admits every row.
func (f Filter) IsZero() bool {
	return len(f.Entities) == 0 && len(f.Grades) == 0 && len(f.Components) == 0
}

// Match reports whether key passes the filter.
func (f Filter) Match(key ModuleKey) bool {
	return allows(f.Entities, key.EntityDesc) &&
		allows(f.Grades, key.Grade) &&
		allows(f.Components, key.Component)
}

func allows(list []string, v string) bool {
	return len(list) == 0 || slices.Contains(list, v)
}

// FilterRows returns the rows whose module passes f, in input order.
func FilterRows(rows []NormalizedRow, f Filter) []NormalizedRow {
	if f.IsZero() {
		return rows
	}
	out := make([]NormalizedRow, 0, len(rows))
	for _, r := range rows {
		if f.Match(r.Module) {
			out = append(out, r)
		}
	}
	return out
}

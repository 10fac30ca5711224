package gapanalysis

import "fmt"

// Dimension names a rollup view over module aggregates.
type Dimension string

const (
	DimensionModule    Dimension = ""
	DimensionEntity    Dimension = "entity"
	DimensionGrade     Dimension = "grade"
	DimensionComponent Dimension = "component"
)

// ParseDimension validates a rollup dimension name.
func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(s); d {
	case DimensionModule, DimensionEntity, DimensionGrade, DimensionComponent:
		return d, nil
	default:
		return "", &OptionError{Option: "rollup", Message: fmt.Sprintf("unknown dimension %q", s)}
	}
}

// Rollup re-aggregates module aggregates by one dimension. The other key
// parts are cleared. Order is first-seen; DimensionModule returns aggs as is.
func Rollup(aggs []ModuleAggregate, dim Dimension) []ModuleAggregate {
	if dim == DimensionModule {
		return aggs
	}
	index := make(map[ModuleKey]int)
	var out []ModuleAggregate
	for _, a := range aggs {
		key := rollupKey(a.Key, dim)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, ModuleAggregate{Key: key, Counts: make(map[string]int64, len(a.Counts))})
		}
		r := &out[i]
		r.TotalPeople = addCount(r.TotalPeople, a.TotalPeople)
		r.Rows += a.Rows
		for name, n := range a.Counts {
			r.Counts[name] = addCount(r.Counts[name], n)
		}
	}
	return out
}

func rollupKey(k ModuleKey, dim Dimension) ModuleKey {
	switch dim {
	case DimensionEntity:
		return ModuleKey{EntityDesc: k.EntityDesc}
	case DimensionGrade:
		return ModuleKey{Grade: k.Grade}
	case DimensionComponent:
		return ModuleKey{Component: k.Component}
	default:
		return k
	}
}

package gapanalysis

import "math"

// Aggregate folds rows into one ModuleAggregate per distinct module key, in
// the order keys are first seen. Every aggregate carries a count for every
// catalog field and for nothing else.
func Aggregate(rows []NormalizedRow, catalog *Catalog) []ModuleAggregate {
	names := catalog.Names()
	index := make(map[ModuleKey]int)
	var aggs []ModuleAggregate

	for _, row := range rows {
		i, ok := index[row.Module]
		if !ok {
			i = len(aggs)
			index[row.Module] = i
			aggs = append(aggs, newAggregate(row.Module, names))
		}
		a := &aggs[i]
		a.TotalPeople = addCount(a.TotalPeople, row.SpecCount)
		a.Rows++
		for _, name := range names {
			a.Counts[name] = addCount(a.Counts[name], row.Counts[name])
		}
	}
	return aggs
}

func newAggregate(key ModuleKey, names []string) ModuleAggregate {
	counts := make(map[string]int64, len(names))
	for _, name := range names {
		counts[name] = 0
	}
	return ModuleAggregate{Key: key, Counts: counts}
}

// Modules returns the aggregate keys in aggregate order.
func Modules(aggs []ModuleAggregate) []ModuleKey {
	keys := make([]ModuleKey, len(aggs))
	for i, a := range aggs {
		keys[i] = a.Key
	}
	return keys
}

// PartitionOverAttributed splits rows into those that respect count
// conservation and those whose demographic counts exceed their spec count.
func PartitionOverAttributed(rows []NormalizedRow, catalog *Catalog) (admitted, excluded []NormalizedRow) {
	groups := catalog.Groups()
	independent := catalog.IndependentFields()
	admitted = make([]NormalizedRow, 0, len(rows))
	for _, row := range rows {
		if overAttributed(row, groups, independent) {
			excluded = append(excluded, row)
			continue
		}
		admitted = append(admitted, row)
	}
	return admitted, excluded
}

func overAttributed(row NormalizedRow, groups []FieldGroup, independent []string) bool {
	for _, g := range groups {
		if groupSum(row, g) > row.SpecCount {
			return true
		}
	}
	for _, name := range independent {
		if row.Count(name) > row.SpecCount {
			return true
		}
	}
	return false
}

func groupSum(row NormalizedRow, g FieldGroup) int64 {
	var sum int64
	for _, name := range g.Fields {
		sum = addCount(sum, row.Count(name))
	}
	return sum
}

// addCount adds two non-negative counts, saturating at math.MaxInt64.
func addCount(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// ModuleCoverage splits modules by whether any demographic count is non-zero.
type ModuleCoverage struct {
	WithData    []ModuleKey `json:"with_data"`
	WithoutData []ModuleKey `json:"without_data"`
}

// Coverage reports which modules carry demographic data at all.
func Coverage(aggs []ModuleAggregate) ModuleCoverage {
	cov := ModuleCoverage{
		WithData:    []ModuleKey{},
		WithoutData: []ModuleKey{},
	}
	for _, a := range aggs {
		has := false
		for _, n := range a.Counts {
			if n > 0 {
				has = true
				break
			}
		}
		if has {
			cov.WithData = append(cov.WithData, a.Key)
		} else {
			cov.WithoutData = append(cov.WithoutData, a.Key)
		}
	}
	return cov
}

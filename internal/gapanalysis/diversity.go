package gapanalysis

import "math"

// DiversityMetrics summarizes how evenly people spread across the catalog
// fields. All values are meaningless unless Defined is true.
type DiversityMetrics struct {
	Defined bool    `json:"defined"`
	Simpson float64 `json:"simpson_index"`
	Shannon float64 `json:"shannon_index"`
	Balance float64 `json:"representation_balance"`
}

// ModuleDiversity pairs a module with its metrics.
type ModuleDiversity struct {
	Module  ModuleKey        `json:"module"`
	Metrics DiversityMetrics `json:"metrics"`
}

// DiversityReport holds per-module and dataset-wide metrics.
type DiversityReport struct {
	Dataset DiversityMetrics  `json:"dataset"`
	Modules []ModuleDiversity `json:"modules"`
}

// Diversity computes Simpson (1-Σp²), Shannon (-Σp ln p) and representation
// balance 1/(1+CV) over the catalog shares of one aggregate.
func Diversity(agg ModuleAggregate, catalog *Catalog) DiversityMetrics {
	if agg.TotalPeople <= 0 {
		return DiversityMetrics{}
	}
	total := float64(agg.TotalPeople)
	names := catalog.Names()
	m := DiversityMetrics{Defined: true}

	var squares, mean float64
	percents := make([]float64, len(names))
	for i, name := range names {
		p := float64(agg.Count(name)) / total
		squares += p * p
		if p > 0 {
			m.Shannon -= p * math.Log(p)
		}
		percents[i] = p * 100
		mean += percents[i]
	}
	m.Simpson = 1 - squares

	if len(percents) == 0 {
		m.Balance = 1
		return m
	}
	mean /= float64(len(percents))
	var variance float64
	for _, v := range percents {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(percents))

	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}
	m.Balance = 1 / (1 + cv)
	return m
}

// DiversityOf computes metrics for each aggregate and for their sum.
func DiversityOf(aggs []ModuleAggregate, catalog *Catalog) DiversityReport {
	report := DiversityReport{Modules: make([]ModuleDiversity, 0, len(aggs))}
	dataset := newAggregate(ModuleKey{}, catalog.Names())
	for _, a := range aggs {
		report.Modules = append(report.Modules, ModuleDiversity{Module: a.Key, Metrics: Diversity(a, catalog)})
		dataset.TotalPeople += a.TotalPeople
		dataset.Rows += a.Rows
		for name, n := range a.Counts {
			dataset.Counts[name] += n
		}
	}
	report.Dataset = Diversity(dataset, catalog)
	return report
}

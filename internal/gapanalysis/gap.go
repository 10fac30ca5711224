package gapanalysis

import "math"

// DefaultBand is the half-width of the "on target" band, in percentage points.
const DefaultBand = 1.0

// bandTolerance absorbs float error so a gap that is exactly ±band in decimal
// arithmetic still lands inside the band.
const bandTolerance = 1e-9

// Calculator compares module aggregates with catalog targets.
type Calculator struct {
	catalog *Catalog
	band    float64
}

// NewCalculator returns a calculator for catalog. A negative band is treated as 0.
func NewCalculator(catalog *Catalog, band float64) *Calculator {
	if band < 0 || math.IsNaN(band) {
		band = 0
	}
	return &Calculator{catalog: catalog, band: band}
}

// Band returns the classification band width.
func (c *Calculator) Band() float64 {
	return c.band
}

// Compute emits one GapResult per (module, catalog field), modules in
// aggregate order and fields in catalog order. Counts are never clamped.
func (c *Calculator) Compute(aggs []ModuleAggregate) []GapResult {
	fields := c.catalog.Fields()
	out := make([]GapResult, 0, len(aggs)*len(fields))
	for _, a := range aggs {
		for _, f := range fields {
			target := c.catalog.TargetFor(f.Name)
			count := a.Count(f.Name)
			actual := ActualPercent(count, a.TotalPeople)
			gap := actual.Minus(target.Percent)
			out = append(out, GapResult{
				Module:          a.Key,
				Demographic:     f.Name,
				Label:           f.Label,
				ActualCount:     count,
				TotalPeople:     a.TotalPeople,
				ActualPercent:   actual,
				TargetPercent:   target.Percent,
				TargetIsDefault: target.IsDefault,
				GapPercent:      gap,
				Classification:  c.Classify(gap),
			})
		}
	}
	return out
}

// Classify places a gap relative to the band. The band is inclusive at both edges.
func (c *Calculator) Classify(gap Percent) Classification {
	v, ok := gap.Value()
	switch {
	case !ok:
		return ClassNoData
	case v < -c.band-bandTolerance:
		return ClassUnder
	case v > c.band+bandTolerance:
		return ClassOver
	default:
		return ClassOn
	}
}

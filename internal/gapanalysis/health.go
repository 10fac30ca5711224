package gapanalysis

import "fmt"

// HealthOptions tunes the advisory dataset checks.
type HealthOptions struct {
	// SparseThreshold flags fields whose dataset share is below this percentage.
	SparseThreshold float64
	// SmallModuleThreshold flags modules with fewer people than this.
	SmallModuleThreshold int64
}

// DefaultHealthOptions returns the thresholds used when none are configured.
func DefaultHealthOptions() HealthOptions {
	return HealthOptions{SparseThreshold: 1.0, SmallModuleThreshold: 10}
}

// CheckHealth runs the data-quality checks over rows. It never fails and
// never changes rows; callers decide what to do with errors.
//
// Row-scoped issues come first in row order, followed by dataset-wide issues.
func CheckHealth(rows []NormalizedRow, catalog *Catalog, opts HealthOptions) []HealthIssue {
	issues := []HealthIssue{}
	groups := catalog.Groups()
	independent := catalog.IndependentFields()

	for _, row := range rows {
		issues = append(issues, conservationIssues(row, groups, independent, catalog)...)
	}
	if len(rows) == 0 {
		return append(issues, defaultTargetIssues(catalog)...)
	}

	totals := make(map[string]int64, catalog.Len())
	var population int64
	for _, row := range rows {
		population = addCount(population, row.SpecCount)
		for name, n := range row.Counts {
			totals[name] = addCount(totals[name], n)
		}
	}

	for _, name := range catalog.Names() {
		if totals[name] == 0 {
			issues = append(issues, datasetIssue(SeverityWarning, CodeZeroField, name,
				"%s is zero across every row; check the column mapping", catalog.Label(name)))
		}
	}

	if population > 0 && opts.SparseThreshold > 0 {
		for _, name := range catalog.Names() {
			n := totals[name]
			if n == 0 {
				continue
			}
			if share := float64(n) * 100 / float64(population); share < opts.SparseThreshold {
				issues = append(issues, datasetIssue(SeverityInfo, CodeSparseField, name,
					"%s is sparse: %.2f%% of %d people", catalog.Label(name), share, population))
			}
		}
	}

	if opts.SmallModuleThreshold > 0 {
		for _, a := range Aggregate(rows, catalog) {
			if a.TotalPeople < opts.SmallModuleThreshold {
				issues = append(issues, datasetIssue(SeverityWarning, CodeSmallModule, "",
					"module %q has %d people, below %d; percentages are unstable",
					a.Key.String(), a.TotalPeople, opts.SmallModuleThreshold))
			}
		}
	}

	return append(issues, defaultTargetIssues(catalog)...)
}

func conservationIssues(row NormalizedRow, groups []FieldGroup, independent []string, catalog *Catalog) []HealthIssue {
	var issues []HealthIssue
	for _, g := range groups {
		sum := groupSum(row, g)
		suffix := ""
		if g.Name != "" {
			suffix = fmt.Sprintf(" in group %s", g.Name)
		}
		switch {
		case sum > row.SpecCount:
			issues = append(issues, rowIssue(SeverityError, CodeOverAttribution, row, g.Name,
				"demographic sum exceeds Spec Count (%d > %d)%s", sum, row.SpecCount, suffix))
		case sum < row.SpecCount:
			issues = append(issues, rowIssue(SeverityWarning, CodeUnderAttribution, row, g.Name,
				"demographic sum below Spec Count (%d < %d), %d unassigned%s",
				sum, row.SpecCount, row.SpecCount-sum, suffix))
		}
	}
	for _, name := range independent {
		if n := row.Count(name); n > row.SpecCount {
			issues = append(issues, rowIssue(SeverityError, CodeOverAttribution, row, name,
				"%s exceeds Spec Count (%d > %d)", catalog.Label(name), n, row.SpecCount))
		}
	}
	return issues
}

func defaultTargetIssues(catalog *Catalog) []HealthIssue {
	var issues []HealthIssue
	for _, name := range catalog.FieldsWithoutTarget() {
		issues = append(issues, datasetIssue(SeverityWarning, CodeDefaultTarget, name,
			"no target configured for %s; using default %.2f%%", catalog.Label(name), catalog.DefaultTarget()))
	}
	return issues
}

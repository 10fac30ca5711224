package exporter

import (
	"strconv"

	"repgap/internal/gapanalysis"
)

// notAvailable marks undefined metrics. It is never written as 0.
const notAvailable = "n/a"

// formatFloat formats a float64 value with exactly 2 decimal places
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// formatPercent formats a percentage, or n/a when undefined
func formatPercent(p gapanalysis.Percent) string {
	return p.String()
}

// formatInt formats an int64 value for CSV output
func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

// formatRow renders an optional row number
func formatRow(idx *int) string {
	if idx == nil {
		return ""
	}
	return strconv.Itoa(*idx)
}

// formatMetric renders a diversity metric, or n/a when undefined
func formatMetric(v float64, defined bool) string {
	if !defined {
		return notAvailable
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

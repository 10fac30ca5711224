// Package gapanalysis compares the demographic makeup of curriculum modules
// with configured representation targets.
//
// A run maps uploaded headers onto canonical fields through a Registry,
// coerces each row (Normalize), folds rows into one aggregate per module key
// (Aggregate), computes actual-versus-target gaps (Calculator) and arranges
// them as a module × demographic matrix (BuildHeatmap). CheckHealth inspects
// the same rows independently and reports data-quality issues; it never
// stops a run. Engine wires the stages together.
//
// Percentages are undefined, not zero, when a module has no people. See Percent.
package gapanalysis

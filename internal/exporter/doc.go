// Package exporter renders gap analysis reports as files.
//
// CSV tables (gap table, heatmap matrix, data health checklist, module
// list) are written with encoding/csv and an optional UTF-8 BOM so Excel
// detects the encoding. The workbook export writes all of them plus a run
// summary into one .xlsx file with excelize, coloring heatmap cells by
// classification.
//
// Undefined metrics are always exported as "n/a", never as 0.
package exporter

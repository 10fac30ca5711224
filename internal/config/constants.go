package config

import "repgap/pkg/contracts"

// Application constants
const (
	AppName    = "RepGap"
	AppVersion = contracts.Version

	// DefaultMaxUploadBytes caps multipart uploads (20 MiB).
	DefaultMaxUploadBytes = 20 << 20

	// Supported upload extensions
	ExtCSV  = ".csv"
	ExtTSV  = ".tsv"
	ExtXLSX = ".xlsx"

	// Export file names
	GapsCSVName     = "gap_analysis.csv"
	HeatmapCSVName  = "heatmap.csv"
	HealthCSVName   = "data_health.csv"
	WorkbookName    = "representation_gap_analysis.xlsx"
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

package api

import (
	"time"
)

// AnalysisResponse wraps an engine report with run metadata.
type AnalysisResponse struct {
	RunID      string    `json:"run_id"`
	Source     string    `json:"source"`
	AnalyzedAt time.Time `json:"analyzed_at"`
	Report     any       `json:"report"`
}

// CatalogResponse describes the active demographic catalog.
type CatalogResponse struct {
	DefaultTarget float64        `json:"default_target"`
	Fields        []CatalogField `json:"fields"`
	Groups        []CatalogGroup `json:"groups,omitempty"`
}

// CatalogField is one demographic field and its resolved target.
type CatalogField struct {
	Name            string   `json:"name"`
	Label           string   `json:"label"`
	ShortLabel      string   `json:"short_label,omitempty"`
	Target          float64  `json:"target"`
	TargetIsDefault bool     `json:"target_is_default"`
	Aliases         []string `json:"aliases,omitempty"`
	Group           string   `json:"group,omitempty"`
	Independent     bool     `json:"independent,omitempty"`
}

// CatalogGroup lists the fields of one mutually exclusive partition.
type CatalogGroup struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

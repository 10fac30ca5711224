// Package http implements the HTTP handlers of the gap analysis service.
// Handlers are thin: they decode and validate requests, call the services
// layer and render responses. They hold no analysis logic.
//
// # Endpoints
//
//	GET  /api/health                  overall status
//	GET  /api/health/ready            readiness (catalog loaded, exports dir usable)
//	GET  /api/health/live             liveness
//	GET  /api/version                 build and API version
//	GET  /api/catalog                 active demographic catalog and targets
//	POST /api/analysis                JSON {headers, rows, ...options}
//	POST /api/analysis/upload         multipart "file" plus option form fields
//	POST /api/analysis/export         same bodies; ?format=csv|xlsx&table=gaps|heatmap|health|modules
//	GET  /metrics                     Prometheus scrape endpoint
//
// # Error Handling
//
// Every failure is rendered as an RFC 7807 problem by the shared
// apierrors.ErrorHandler. A dataset missing required columns answers 422
// with a missing_fields extension; row-level data problems are not errors
// and come back inside the report's health checklist.
package http

// Package config loads application configuration and the demographic catalog.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. A YAML file (config.yaml or configs/config.yaml)
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern REPGAP_<SECTION>_<FIELD>:
//
//	REPGAP_SERVER_PORT=8080
//	REPGAP_LOGGING_LEVEL=debug
//	REPGAP_ANALYSIS_BAND=1.5
//	REPGAP_ANALYSIS_CATALOG_FILE=/etc/repgap/catalog.yaml
//
// # Demographic Catalog
//
// The catalog lists the recognized demographic fields, their display labels,
// targets and header aliases. A default catalog is embedded in the binary;
// pointing analysis.catalog_file at another YAML file replaces it. Adding or
// removing a category is a catalog change only:
//
//	default_target: 10.0
//	fields:
//	  - name: hispanic
//	    label: Hispanic
//	    short_label: H
//	    target: 18.0
//	    group: ethnicity
//	    aliases: [Latino, Latina]
//
// Catalog files are validated with go-playground/validator before use.
package config

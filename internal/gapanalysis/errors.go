package gapanalysis

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks by callers.
var (
	ErrMissingRequiredFields = errors.New("missing required fields")
	ErrInvalidCatalog        = errors.New("invalid demographic catalog")
	ErrInvalidOptions        = errors.New("invalid analysis options")
)

// SchemaError is returned when required canonical fields have no matching
// column. It is fatal to the run: no rows are produced and nothing is aggregated.
type SchemaError struct {
	Missing []string `json:"missing_fields"`
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Is allows errors.Is(err, ErrMissingRequiredFields)
func (e *SchemaError) Is(target error) bool {
	return target == ErrMissingRequiredFields
}

// CatalogError reports an invalid catalog entry or target override.
type CatalogError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.Field == "" {
		return "catalog: " + e.Message
	}
	return fmt.Sprintf("catalog field %q: %s", e.Field, e.Message)
}

// Is allows errors.Is(err, ErrInvalidCatalog)
func (e *CatalogError) Is(target error) bool {
	return target == ErrInvalidCatalog
}

// OptionError reports an invalid per-run option.
type OptionError struct {
	Option  string
	Message string
}

// Error implements the error interface
func (e *OptionError) Error() string {
	return fmt.Sprintf("option %s: %s", e.Option, e.Message)
}

// Is allows errors.Is(err, ErrInvalidOptions)
func (e *OptionError) Is(target error) bool {
	return target == ErrInvalidOptions
}

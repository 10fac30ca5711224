package gapanalysis

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Canonical names of the required fields.
const (
	FieldEntityDesc = "entity_desc"
	FieldGrade      = "grade"
	FieldComponent  = "component"
	FieldSpecCount  = "spec_count"
)

// RequiredFields lists the fields a table must map before it can be analyzed.
var RequiredFields = []string{FieldEntityDesc, FieldGrade, FieldComponent, FieldSpecCount}

// requiredAliases are the accepted normalized headers for each required field.
var requiredAliases = map[string][]string{
	FieldEntityDesc: {"entitydesc", "entity", "entitydescription", "module", "lesson", "lessontitle", "title"},
	FieldGrade:      {"grade", "level", "gradelevel"},
	FieldComponent:  {"component", "componentdesc", "componentdescription", "activity", "activitytype"},
	FieldSpecCount:  {"speccount", "total", "totalpeople", "totalcount", "people", "count"},
}

// FieldKind says what role a canonical field plays.
type FieldKind int

const (
	KindIdentity FieldKind = iota
	KindSpecCount
	KindDemographic
)

// FieldRef is the result of resolving a header.
type FieldRef struct {
	Name string
	Kind FieldKind
}

// NormalizeHeader canonicalizes a column header: NFKC, trim, lowercase, then
// drop all internal whitespace. "Spec Count" becomes "speccount".
func NormalizeHeader(header string) string {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(header)))
	return strings.Join(strings.Fields(s), "")
}

// Registry is the single place where column admission is decided. Every
// component that needs to know what a header means asks the registry.
type Registry struct {
	catalog *Catalog
	lookup  map[string]FieldRef
}

// NewRegistry builds the alias lookup for the required fields and every
// catalog field. A demographic's name and label are implicit aliases.
func NewRegistry(catalog *Catalog) (*Registry, error) {
	r := &Registry{
		catalog: catalog,
		lookup:  make(map[string]FieldRef),
	}
	for _, name := range RequiredFields {
		kind := KindIdentity
		if name == FieldSpecCount {
			kind = KindSpecCount
		}
		for _, alias := range requiredAliases[name] {
			r.lookup[alias] = FieldRef{Name: name, Kind: kind}
		}
	}

	for _, f := range catalog.fields {
		aliases := append([]string{f.Name, f.Label}, f.Aliases...)
		for _, alias := range aliases {
			key := NormalizeHeader(alias)
			if key == "" {
				continue
			}
			if prev, taken := r.lookup[key]; taken {
				if prev.Name == f.Name {
					continue
				}
				return nil, &CatalogError{
					Field:   f.Name,
					Message: "alias " + key + " already maps to " + prev.Name,
				}
			}
			r.lookup[key] = FieldRef{Name: f.Name, Kind: KindDemographic}
		}
	}
	return r, nil
}

// Resolve maps an original header to its canonical field.
func (r *Registry) Resolve(header string) (FieldRef, bool) {
	ref, ok := r.lookup[NormalizeHeader(header)]
	return ref, ok
}

// Catalog returns the catalog snapshot the registry was built from.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

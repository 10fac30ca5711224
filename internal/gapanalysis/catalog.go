package gapanalysis

import (
	"math"
	"slices"
)

// DefaultTargetPercent is the documented fallback target for a demographic
// with no configured target. Results that use it carry TargetIsDefault.
const DefaultTargetPercent = 10.0

// DemographicField is one recognized representation category.
//
// Fields sharing a Group are a mutually exclusive partition of the people in
// a row (gender, ethnicity) and are summed for count conservation. Fields with
// an empty Group form one partition together. Independent fields overlap any
// partition (LGBT, legacy) and are checked one by one instead.
type DemographicField struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	ShortLabel  string   `json:"short_label,omitempty"`
	Target      *float64 `json:"target,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Group       string   `json:"group,omitempty"`
	Independent bool     `json:"independent,omitempty"`
}

// Target is a resolved target percentage.
type Target struct {
	Percent   float64 `json:"percent"`
	IsDefault bool    `json:"is_default"`
}

// FieldGroup is a conservation partition: the catalog fields whose counts
// must not add up to more than the row's spec count.
type FieldGroup struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Catalog is an immutable, ordered registry of demographic fields. Its order
// is the column order of the heatmap.
type Catalog struct {
	fields        []DemographicField
	index         map[string]int
	defaultTarget float64
}

// NewCatalog validates and snapshots fields. defaultTarget is used only for
// fields with no Target.
func NewCatalog(fields []DemographicField, defaultTarget float64) (*Catalog, error) {
	if !validPercent(defaultTarget) {
		return nil, &CatalogError{Message: "default target must be between 0 and 100"}
	}
	if len(fields) == 0 {
		return nil, &CatalogError{Message: "at least one demographic field is required"}
	}

	c := &Catalog{
		fields:        make([]DemographicField, 0, len(fields)),
		index:         make(map[string]int, len(fields)),
		defaultTarget: defaultTarget,
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, &CatalogError{Message: "field name is required"}
		}
		if _, dup := c.index[f.Name]; dup {
			return nil, &CatalogError{Field: f.Name, Message: "duplicate field name"}
		}
		if f.Target != nil && !validPercent(*f.Target) {
			return nil, &CatalogError{Field: f.Name, Message: "target must be between 0 and 100"}
		}
		if f.Independent && f.Group != "" {
			return nil, &CatalogError{Field: f.Name, Message: "independent fields cannot belong to a group"}
		}
		c.index[f.Name] = len(c.fields)
		c.fields = append(c.fields, copyField(f))
	}
	return c, nil
}

func copyField(f DemographicField) DemographicField {
	out := f
	if out.Label == "" {
		out.Label = out.Name
	}
	if f.Target != nil {
		t := *f.Target
		out.Target = &t
	}
	out.Aliases = slices.Clone(f.Aliases)
	return out
}

func validPercent(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// Len returns the number of fields.
func (c *Catalog) Len() int {
	return len(c.fields)
}

// Fields returns a copy of the ordered fields.
func (c *Catalog) Fields() []DemographicField {
	out := make([]DemographicField, len(c.fields))
	for i, f := range c.fields {
		out[i] = copyField(f)
	}
	return out
}

// Names returns the canonical field names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.fields))
	for i, f := range c.fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by canonical name.
func (c *Catalog) Field(name string) (DemographicField, bool) {
	i, ok := c.index[name]
	if !ok {
		return DemographicField{}, false
	}
	return copyField(c.fields[i]), true
}

// Label returns the display label for name, or name itself when unknown.
func (c *Catalog) Label(name string) string {
	if i, ok := c.index[name]; ok {
		return c.fields[i].Label
	}
	return name
}

// ShortLabel returns the abbreviated label, falling back to Label.
func (c *Catalog) ShortLabel(name string) string {
	if i, ok := c.index[name]; ok && c.fields[i].ShortLabel != "" {
		return c.fields[i].ShortLabel
	}
	return c.Label(name)
}

// DefaultTarget returns the fallback target percentage.
func (c *Catalog) DefaultTarget() float64 {
	return c.defaultTarget
}

// TargetFor returns the configured target for name, or the default target
// flagged with IsDefault.
func (c *Catalog) TargetFor(name string) Target {
	if i, ok := c.index[name]; ok && c.fields[i].Target != nil {
		return Target{Percent: *c.fields[i].Target}
	}
	return Target{Percent: c.defaultTarget, IsDefault: true}
}

// FieldsWithoutTarget lists the fields that fall back to the default target.
func (c *Catalog) FieldsWithoutTarget() []string {
	var names []string
	for _, f := range c.fields {
		if f.Target == nil {
			names = append(names, f.Name)
		}
	}
	return names
}

// WithTargets returns a new catalog with per-field target overrides applied.
// The receiver is left untouched.
func (c *Catalog) WithTargets(overrides map[string]float64) (*Catalog, error) {
	fields := c.Fields()
	for name, v := range overrides {
		i, ok := c.index[name]
		if !ok {
			return nil, &CatalogError{Field: name, Message: "unknown demographic field"}
		}
		if !validPercent(v) {
			return nil, &CatalogError{Field: name, Message: "target must be between 0 and 100"}
		}
		t := v
		fields[i].Target = &t
	}
	return NewCatalog(fields, c.defaultTarget)
}

// Groups returns the conservation partitions in first-seen catalog order.
// Independent fields are not part of any group.
func (c *Catalog) Groups() []FieldGroup {
	var groups []FieldGroup
	pos := make(map[string]int)
	for _, f := range c.fields {
		if f.Independent {
			continue
		}
		i, ok := pos[f.Group]
		if !ok {
			i = len(groups)
			pos[f.Group] = i
			groups = append(groups, FieldGroup{Name: f.Group})
		}
		groups[i].Fields = append(groups[i].Fields, f.Name)
	}
	return groups
}

// IndependentFields returns the fields checked individually for conservation.
func (c *Catalog) IndependentFields() []string {
	var names []string
	for _, f := range c.fields {
		if f.Independent {
			names = append(names, f.Name)
		}
	}
	return names
}

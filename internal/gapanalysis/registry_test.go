package gapanalysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Spec Count", "speccount"},
		{"  EntityDesc ", "entitydesc"},
		{"Component\tDesc", "componentdesc"},
		{"TOTAL", "total"},
		{"Ｈｉｓｐａｎｉｃ", "hispanic"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.in))
		})
	}
}

func TestRegistryResolve(t *testing.T) {
	c, err := NewCatalog([]DemographicField{
		{Name: "african_american", Label: "African American", Aliases: []string{"Black"}},
		{Name: "female", Label: "Female"},
	}, 10)
	require.NoError(t, err)
	reg, err := NewRegistry(c)
	require.NoError(t, err)

	tests := []struct {
		header string
		want   FieldRef
		ok     bool
	}{
		{"EntityDesc", FieldRef{Name: FieldEntityDesc, Kind: KindIdentity}, true},
		{"Lesson Title", FieldRef{Name: FieldEntityDesc, Kind: KindIdentity}, true},
		{"grade", FieldRef{Name: FieldGrade, Kind: KindIdentity}, true},
		{"Component Desc", FieldRef{Name: FieldComponent, Kind: KindIdentity}, true},
		{"Spec Count", FieldRef{Name: FieldSpecCount, Kind: KindSpecCount}, true},
		{"TOTAL", FieldRef{Name: FieldSpecCount, Kind: KindSpecCount}, true},
		{"African American", FieldRef{Name: "african_american", Kind: KindDemographic}, true},
		{"black", FieldRef{Name: "african_american", Kind: KindDemographic}, true},
		{"FEMALE", FieldRef{Name: "female", Kind: KindDemographic}, true},
		{"Page Folio", FieldRef{}, false},
		{"Unnamed: 3", FieldRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := reg.Resolve(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Same(t, c, reg.Catalog())
}

func TestRegistryAliasCollisions(t *testing.T) {
	tests := []struct {
		name   string
		fields []DemographicField
	}{
		{
			name:   "demographic shadows required field",
			fields: []DemographicField{{Name: "people", Label: "People"}},
		},
		{
			name: "two demographics share an alias",
			fields: []DemographicField{
				{Name: "native_american", Aliases: []string{"Native"}},
				{Name: "native_hawaiian", Aliases: []string{"native"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCatalog(tt.fields, 10)
			require.NoError(t, err)
			_, err = NewRegistry(c)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

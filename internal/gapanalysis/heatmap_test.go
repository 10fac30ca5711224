package gapanalysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heatmapGaps(t *testing.T) (*Catalog, []GapResult) {
	t.Helper()
	c := testCatalog(t)
	aggs := []ModuleAggregate{
		{Key: keyA1X, TotalPeople: 100, Counts: map[string]int64{"hispanic": 18, "female": 40, "lgbt": 7}},
		{Key: keyA2X, TotalPeople: 100, Counts: map[string]int64{"hispanic": 48, "female": 40, "lgbt": 7}},
		{Key: keyB1Y, TotalPeople: 200, Counts: map[string]int64{"hispanic": 96, "female": 80, "lgbt": 14}},
	}
	return c, NewCalculator(c, DefaultBand).Compute(aggs)
}

func TestBuildHeatmapLayout(t *testing.T) {
	c, gaps := heatmapGaps(t)

	m := BuildHeatmap(gaps, c, HeatmapOptions{})

	assert.Equal(t, []ModuleKey{keyA1X, keyA2X, keyB1Y}, m.Rows)
	assert.Equal(t, []string{"A | 1 | X", "A | 2 | X", "B | 1 | Y"}, m.RowLabels)
	assert.Equal(t, []string{"hispanic", "female", "lgbt"}, m.Cols)
	assert.Equal(t, []string{"Hispanic", "Female", "LGBT"}, m.ColLabels)
	assert.Equal(t, ValueGap, m.Value)
	require.Len(t, m.Cells, 3)
	for _, row := range m.Cells {
		require.Len(t, row, 3)
	}

	cell := m.Cells[1][0]
	assert.Equal(t, keyA2X, cell.Row)
	assert.Equal(t, "hispanic", cell.Col)
	assert.Equal(t, DefinedPercent(30), cell.Value)
	assert.Equal(t, ClassOver, cell.Classification)
	assert.Equal(t, Tooltip{
		Module:        "A | 2 | X",
		Demographic:   "Hispanic",
		ActualPercent: DefinedPercent(48),
		TargetPercent: 18,
		ActualCount:   48,
		TotalPeople:   100,
	}, cell.Tooltip)
}

func TestBuildHeatmapActualValues(t *testing.T) {
	c, gaps := heatmapGaps(t)

	m := BuildHeatmap(gaps, c, HeatmapOptions{Value: ValueActual, ShortLabels: true})

	assert.Equal(t, DefinedPercent(48), m.Cells[1][0].Value)
	assert.Equal(t, []string{"H", "F", "LGBT"}, m.ColLabels)
}

func TestBuildHeatmapOrdering(t *testing.T) {
	c, gaps := heatmapGaps(t)

	tests := []struct {
		name  string
		order ModuleOrder
		want  []ModuleKey
	}{
		{name: "first seen", order: nil, want: []ModuleKey{keyA1X, keyA2X, keyB1Y}},
		// A2X and B1Y tie on largest gap (30) and keep their original order
		{name: "largest gap", order: OrderByLargestGap, want: []ModuleKey{keyA2X, keyB1Y, keyA1X}},
		{name: "total people", order: OrderByTotalPeople, want: []ModuleKey{keyB1Y, keyA1X, keyA2X}},
		{name: "label", order: OrderByLabel, want: []ModuleKey{keyA1X, keyA2X, keyB1Y}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := BuildHeatmap(gaps, c, HeatmapOptions{Order: tt.order})
			assert.Equal(t, tt.want, m.Rows)
			for i, key := range tt.want {
				assert.Equal(t, key, m.Cells[i][0].Row, "cells follow their row")
			}
		})
	}
}

func TestBuildHeatmapDoesNotMutateGaps(t *testing.T) {
	c, gaps := heatmapGaps(t)
	before := append([]GapResult(nil), gaps...)

	BuildHeatmap(gaps, c, HeatmapOptions{Order: OrderByLargestGap})

	assert.Equal(t, before, gaps)
}

func TestBuildHeatmapNoDataCells(t *testing.T) {
	c := testCatalog(t)
	gaps := NewCalculator(c, DefaultBand).Compute([]ModuleAggregate{
		{Key: keyA1X, TotalPeople: 0, Counts: map[string]int64{}},
	})

	m := BuildHeatmap(gaps, c, HeatmapOptions{})

	for _, cell := range m.Cells[0] {
		assert.False(t, cell.Value.Defined())
		assert.Equal(t, ClassNoData, cell.Classification)
	}
}

func TestOrderByName(t *testing.T) {
	for _, name := range []string{"", "first-seen"} {
		order, err := OrderByName(name)
		require.NoError(t, err)
		assert.Nil(t, order)
	}
	for _, name := range []string{"largest-gap", "total-people", "label"} {
		order, err := OrderByName(name)
		require.NoError(t, err)
		assert.NotNil(t, order)
	}
	_, err := OrderByName("random")
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestTruncateLabel(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Lesson about fractions", 0, "Lesson about fractions"},
		{"Lesson about fractions", 40, "Lesson about fractions"},
		{"Lesson about fractions", 10, "Lesson ..."},
		{"Lesson", 2, "Le"},
		{"Leçon numéro", 8, "Leçon..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateLabel(tt.in, tt.max))
	}
}

func TestSummarize(t *testing.T) {
	_, gaps := heatmapGaps(t)

	s := Summarize(gaps)

	require.Len(t, s, 3)
	assert.Equal(t, 0, s[0].Position)
	assert.InDelta(t, 0.0, s[0].MaxAbsGap, 1e-9)
	assert.InDelta(t, 30.0, s[1].MaxAbsGap, 1e-9)
	assert.InDelta(t, 10.0, s[1].MeanGap, 1e-9)
	assert.EqualValues(t, 200, s[2].TotalPeople)
}

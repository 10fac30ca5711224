package gapanalysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActualPercent(t *testing.T) {
	p := ActualPercent(18, 100)
	v, ok := p.Value()
	assert.True(t, ok)
	assert.Equal(t, 18.0, v)

	assert.False(t, ActualPercent(0, 0).Defined())
	assert.False(t, ActualPercent(5, -1).Defined())
	assert.False(t, NoData.Minus(10).Defined())
}

func TestPercentFormatting(t *testing.T) {
	assert.Equal(t, "n/a", NoData.String())
	assert.Equal(t, "12.35", DefinedPercent(12.345).String())

	b, err := NoData.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	var p Percent
	require.NoError(t, p.UnmarshalJSON([]byte("12.5")))
	assert.Equal(t, DefinedPercent(12.5), p)
	require.NoError(t, p.UnmarshalJSON([]byte("null")))
	assert.Equal(t, NoData, p)
}

func TestClassify(t *testing.T) {
	calc := NewCalculator(testCatalog(t), 1.0)
	actual, target := 8.3, 7.3 // actual-target is 1.0000000000000009 in float64
	tests := []struct {
		name string
		gap  Percent
		want Classification
	}{
		{name: "well under", gap: DefinedPercent(-5), want: ClassUnder},
		{name: "lower edge", gap: DefinedPercent(-1), want: ClassOn},
		{name: "centre", gap: DefinedPercent(0), want: ClassOn},
		{name: "upper edge", gap: DefinedPercent(1), want: ClassOn},
		{name: "just over", gap: DefinedPercent(1.01), want: ClassOver},
		{name: "just under", gap: DefinedPercent(-1.01), want: ClassUnder},
		{name: "float edge", gap: DefinedPercent(actual).Minus(target), want: ClassOn},
		{name: "no data", gap: NoData, want: ClassNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.Classify(tt.gap))
		})
	}
}

func TestNewCalculatorClampsNegativeBand(t *testing.T) {
	calc := NewCalculator(testCatalog(t), -3)
	assert.Equal(t, 0.0, calc.Band())
	assert.Equal(t, ClassOver, calc.Classify(DefinedPercent(0.5)))
}

func TestCompute(t *testing.T) {
	c := testCatalog(t)
	calc := NewCalculator(c, DefaultBand)
	aggs := []ModuleAggregate{
		{Key: keyA1X, TotalPeople: 100, Counts: map[string]int64{"hispanic": 18, "female": 40, "lgbt": 0}},
		{Key: keyB1Y, TotalPeople: 0, Counts: map[string]int64{}},
	}

	gaps := calc.Compute(aggs)

	require.Len(t, gaps, 6, "one result per module and catalog field")
	byField := map[string]GapResult{}
	for _, g := range gaps[:3] {
		assert.Equal(t, keyA1X, g.Module)
		byField[g.Demographic] = g
	}

	hispanic := byField["hispanic"]
	assert.Equal(t, DefinedPercent(18), hispanic.ActualPercent)
	assert.Equal(t, DefinedPercent(0), hispanic.GapPercent)
	assert.Equal(t, ClassOn, hispanic.Classification)
	assert.Equal(t, "Hispanic", hispanic.Label)

	assert.Equal(t, ClassOn, byField["female"].Classification)

	lgbt := byField["lgbt"]
	assert.Equal(t, DefinedPercent(0), lgbt.ActualPercent, "zero count is a defined 0%")
	assert.Equal(t, DefinedPercent(-7), lgbt.GapPercent)
	assert.Equal(t, ClassUnder, lgbt.Classification)

	for _, g := range gaps[3:] {
		assert.Equal(t, keyB1Y, g.Module)
		assert.False(t, g.ActualPercent.Defined())
		assert.False(t, g.GapPercent.Defined())
		assert.Equal(t, ClassNoData, g.Classification)
	}
}

func TestComputeFlagsDefaultTarget(t *testing.T) {
	c, err := NewCatalog([]DemographicField{{Name: "other", Label: "Other"}}, DefaultTargetPercent)
	require.NoError(t, err)

	gaps := NewCalculator(c, DefaultBand).Compute([]ModuleAggregate{
		{Key: keyA1X, TotalPeople: 100, Counts: map[string]int64{"other": 10}},
	})

	require.Len(t, gaps, 1)
	assert.True(t, gaps[0].TargetIsDefault)
	assert.Equal(t, DefaultTargetPercent, gaps[0].TargetPercent)
}

func TestComputeDoesNotClampOverAttribution(t *testing.T) {
	gaps := NewCalculator(testCatalog(t), DefaultBand).Compute([]ModuleAggregate{
		{Key: keyA1X, TotalPeople: 10, Counts: map[string]int64{"hispanic": 20}},
	})

	assert.Equal(t, DefinedPercent(200), gaps[0].ActualPercent)
}

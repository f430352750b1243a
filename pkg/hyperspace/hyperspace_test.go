package hyperspace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/types"
)

func kvSchema() types.Schema {
	return types.Schema{Attributes: []types.Attribute{
		{Name: "k", Type: "string"},
		{Name: "v", Type: "string"},
		{Name: "n", Type: "int64"},
	}}
}

func TestHashAttributes(t *testing.T) {
	schema := kvSchema()
	sub := &types.Subspace{Attrs: []int{0}}

	coords, err := HashAttributes(schema, sub, map[int][]byte{0: []byte("hello")})
	require.NoError(t, err)
	assert.Len(t, coords, 1)

	coords2, err := HashAttributes(schema, sub, map[int][]byte{0: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, coords, coords2, "hashing must be deterministic for the same input")
}

func TestHashAttributesRejectsNonHashable(t *testing.T) {
	schema := types.Schema{Attributes: []types.Attribute{
		{Name: "k", Type: "string"},
		{Name: "doc", Type: "document"},
	}}
	sub := &types.Subspace{Attrs: []int{1}}

	_, err := HashAttributes(schema, sub, map[int][]byte{1: []byte(`{}`)})
	assert.Error(t, err)
}

func TestRegionContains(t *testing.T) {
	region := &types.Region{LowerCoord: []uint64{10, 10}, UpperCoord: []uint64{20, 20}}

	tests := []struct {
		name   string
		coords []uint64
		want   bool
	}{
		{"inside", []uint64{15, 15}, true},
		{"on lower boundary", []uint64{10, 10}, true},
		{"on upper boundary", []uint64{20, 20}, true},
		{"below range", []uint64{5, 15}, false},
		{"above range", []uint64{15, 25}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RegionContains(region, tt.coords))
		})
	}
}

func TestFindRegion(t *testing.T) {
	sub := &types.Subspace{
		Attrs: []int{0},
		Regions: []*types.Region{
			{ID: 1, LowerCoord: []uint64{0}, UpperCoord: []uint64{99}},
			{ID: 2, LowerCoord: []uint64{100}, UpperCoord: []uint64{math.MaxUint64}},
		},
	}

	r, ok := FindRegion(sub, []uint64{50})
	require.True(t, ok)
	assert.Equal(t, types.RegionID(1), r.ID)

	r, ok = FindRegion(sub, []uint64{200})
	require.True(t, ok)
	assert.Equal(t, types.RegionID(2), r.ID)

	_, ok = FindRegion(&types.Subspace{}, []uint64{1})
	assert.False(t, ok)
}

func TestOverlaps(t *testing.T) {
	a := &types.Region{LowerCoord: []uint64{0}, UpperCoord: []uint64{10}}
	b := &types.Region{LowerCoord: []uint64{11}, UpperCoord: []uint64{20}}
	c := &types.Region{LowerCoord: []uint64{5}, UpperCoord: []uint64{15}}

	assert.False(t, Overlaps(a, b), "adjacent, non-overlapping boxes")
	assert.True(t, Overlaps(a, c), "overlapping boxes")
}

func TestValidateTilingDetectsOverlap(t *testing.T) {
	sub := &types.Subspace{
		Attrs: []int{0},
		Regions: []*types.Region{
			{ID: 1, LowerCoord: []uint64{0}, UpperCoord: []uint64{10}},
			{ID: 2, LowerCoord: []uint64{5}, UpperCoord: []uint64{20}},
		},
	}
	assert.Error(t, ValidateTiling(sub))
}

func TestValidateTilingAcceptsSingleFullRegion(t *testing.T) {
	lower, upper := FullDomain(1)
	sub := &types.Subspace{
		Attrs:   []int{0},
		Regions: []*types.Region{{ID: 1, LowerCoord: lower, UpperCoord: upper}},
	}
	assert.NoError(t, ValidateTiling(sub))
}

func TestRangeIntersectsRegion(t *testing.T) {
	region := &types.Region{LowerCoord: []uint64{100}, UpperCoord: []uint64{200}}

	assert.True(t, RangeIntersectsRegion(region, 0, true, 150, false, 0))
	assert.False(t, RangeIntersectsRegion(region, 0, true, 250, false, 0))
	assert.True(t, RangeIntersectsRegion(region, 0, false, 0, true, 150))
	assert.False(t, RangeIntersectsRegion(region, 0, false, 0, true, 50))
}

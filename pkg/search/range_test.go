package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/datatype"
	"github.com/cuemby/hyperfold/pkg/types"
)

func schemaFor(attrTypes ...string) types.Schema {
	attrs := make([]types.Attribute, len(attrTypes))
	for i, t := range attrTypes {
		attrs[i] = types.Attribute{Name: string(rune('a' + i)), Type: t}
	}
	return types.Schema{Attributes: attrs}
}

func encodeInt64(t *testing.T, n int64) []byte {
	h := datatype.MustLookup(datatype.TypeInt64)
	raw, err := h.Encode(n)
	require.NoError(t, err)
	return raw
}

func TestComputeRangesEquals(t *testing.T) {
	schema := schemaFor("string", "int64")
	checks := []types.AttributeCheck{
		{Attr: 1, Predicate: types.PredicateEquals, Value: encodeInt64(t, 42)},
	}

	ranges := ComputeRanges(schema, checks)
	require.Len(t, ranges, 1)
	assert.Equal(t, 1, ranges[0].Attr)
	assert.True(t, ranges[0].HasStart)
	assert.True(t, ranges[0].HasEnd)
	assert.False(t, ranges[0].Invalid)
}

func TestComputeRangesIntersection(t *testing.T) {
	schema := schemaFor("int64")
	checks := []types.AttributeCheck{
		{Attr: 0, Predicate: types.PredicateGreaterEqual, Value: encodeInt64(t, 5)},
		{Attr: 0, Predicate: types.PredicateLessThan, Value: encodeInt64(t, 20)},
	}

	ranges := ComputeRanges(schema, checks)
	require.Len(t, ranges, 1)
	assert.True(t, ranges[0].HasStart)
	assert.True(t, ranges[0].HasEnd)
	assert.False(t, ranges[0].Invalid)
}

func TestComputeRangesInvalid(t *testing.T) {
	schema := schemaFor("int64")
	checks := []types.AttributeCheck{
		{Attr: 0, Predicate: types.PredicateLessThan, Value: encodeInt64(t, 3)},
		{Attr: 0, Predicate: types.PredicateGreaterThan, Value: encodeInt64(t, 10)},
	}

	ranges := ComputeRanges(schema, checks)
	require.Len(t, ranges, 1)
	assert.True(t, ranges[0].Invalid)
}

func TestComputeRangesSkipsDocumentAndNonRangePredicates(t *testing.T) {
	schema := schemaFor("document", "string")
	checks := []types.AttributeCheck{
		{Attr: 0, Predicate: types.PredicateEquals, Value: []byte(`{"a":1}`)},
		{Attr: 1, Predicate: types.PredicateRegex, Value: []byte("^a.*")},
	}

	ranges := ComputeRanges(schema, checks)
	assert.Empty(t, ranges)
}

func TestComputeRangesOutOfBoundsAttr(t *testing.T) {
	schema := schemaFor("string")
	checks := []types.AttributeCheck{
		{Attr: 5, Predicate: types.PredicateEquals, Value: []byte("x")},
	}
	assert.Empty(t, ComputeRanges(schema, checks))
}

func TestComputeRangesMultipleAttributes(t *testing.T) {
	schema := schemaFor("int64", "int64")
	checks := []types.AttributeCheck{
		{Attr: 0, Predicate: types.PredicateEquals, Value: encodeInt64(t, 1)},
		{Attr: 1, Predicate: types.PredicateGreaterEqual, Value: encodeInt64(t, 9)},
	}

	ranges := ComputeRanges(schema, checks)
	require.Len(t, ranges, 2)
	assert.Equal(t, 0, ranges[0].Attr)
	assert.Equal(t, 1, ranges[1].Attr)
}

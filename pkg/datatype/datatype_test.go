package datatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hyperfold/pkg/types"
)

func TestRegistryHasAllTypes(t *testing.T) {
	tags := []Type{
		TypeString, TypeInt64, TypeFloat, TypeTimestamp, TypeDocument, TypeMacaroonSecret,
		TypeListString, TypeListInt64, TypeListFloat,
		TypeSetString, TypeSetInt64, TypeSetFloat,
		TypeMapStringString, TypeMapStringInt64, TypeMapStringFloat,
		TypeMapInt64String, TypeMapInt64Int64, TypeMapInt64Float,
	}
	for _, tag := range tags {
		t.Run(string(tag), func(t *testing.T) {
			h, ok := Lookup(tag)
			require.True(t, ok)
			assert.Equal(t, tag, h.Type())
		})
	}
}

func TestLeafRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		tag  Type
		val  interface{}
	}{
		{"string", TypeString, "hello"},
		{"int64", TypeInt64, int64(-42)},
		{"float", TypeFloat, 3.5},
		{"timestamp", TypeTimestamp, int64(1700000000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := MustLookup(tt.tag)
			raw, err := h.Encode(tt.val)
			require.NoError(t, err)
			assert.True(t, h.Validate(raw))

			decoded, err := h.Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.val, decoded)
		})
	}
}

func TestDocumentValidate(t *testing.T) {
	h := MustLookup(TypeDocument)
	assert.True(t, h.Validate([]byte(`{"a":1}`)))
	assert.False(t, h.Validate([]byte(`not json`)))
	assert.False(t, h.Validate([]byte(`[1,2,3]`)))
}

func TestSubfield(t *testing.T) {
	raw := []byte(`{"city":"NYC","zip":10001}`)
	v, ok := Subfield(raw, "city")
	require.True(t, ok)
	assert.Equal(t, `"NYC"`, string(v))

	_, ok = Subfield(raw, "missing")
	assert.False(t, ok)
}

func TestInt64Compare(t *testing.T) {
	h := MustLookup(TypeInt64)
	a, _ := h.Encode(int64(1))
	b, _ := h.Encode(int64(2))
	assert.Equal(t, -1, h.Compare(a, b))
	assert.Equal(t, 1, h.Compare(b, a))
	assert.Equal(t, 0, h.Compare(a, a))
}

func TestListStringRoundTrip(t *testing.T) {
	h := MustLookup(TypeListString)
	raw, err := h.Encode([]string{"b", "a", "c"})
	require.NoError(t, err)
	assert.True(t, h.Validate(raw))

	decoded, err := h.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"b", "a", "c"}, decoded) // list preserves order

	assert.Equal(t, 3, h.Length(raw))
}

func TestSetStringCanonicalizes(t *testing.T) {
	h := MustLookup(TypeSetString)
	raw1, err := h.Encode([]string{"b", "a", "c", "a"})
	require.NoError(t, err)
	raw2, err := h.Encode([]string{"c", "b", "a"})
	require.NoError(t, err)

	assert.Equal(t, raw1, raw2, "canonicalized sets with the same members must serialize identically")
	assert.Equal(t, 3, h.Length(raw1), "duplicates collapse")
}

func TestMapStringInt64RoundTrip(t *testing.T) {
	h := MustLookup(TypeMapStringInt64)
	raw, err := h.Encode(map[string]int64{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.True(t, h.Validate(raw))

	decoded, err := h.Decode(raw)
	require.NoError(t, err)
	m := decoded.(map[interface{}]interface{})
	assert.Equal(t, int64(1), m["a"])
	assert.Equal(t, int64(2), m["b"])
}

func TestContainsElement(t *testing.T) {
	h := MustLookup(TypeSetInt64)
	raw, err := h.Encode([]int64{1, 2, 3})
	require.NoError(t, err)

	needle, err := EncodeCheckOperand(h, types.PredicateContains, int64(2))
	require.NoError(t, err)
	assert.True(t, ContainsElement(h, raw, needle))

	missing, err := EncodeCheckOperand(h, types.PredicateContains, int64(9))
	require.NoError(t, err)
	assert.False(t, ContainsElement(h, raw, missing))
}

func TestEvaluateCheckComparablePredicates(t *testing.T) {
	h := MustLookup(TypeInt64)
	stored, _ := h.Encode(int64(10))

	tests := []struct {
		name      string
		predicate types.Predicate
		operand   int64
		want      bool
	}{
		{"equals true", types.PredicateEquals, 10, true},
		{"equals false", types.PredicateEquals, 11, false},
		{"less than", types.PredicateLessThan, 20, true},
		{"less equal boundary", types.PredicateLessEqual, 10, true},
		{"greater than false", types.PredicateGreaterThan, 10, false},
		{"greater equal boundary", types.PredicateGreaterEqual, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			operand, err := h.Encode(tt.operand)
			require.NoError(t, err)
			got, err := EvaluateCheck(h, tt.predicate, stored, operand)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateCheckRejectsIncompatiblePredicate(t *testing.T) {
	h := MustLookup(TypeFloat)
	stored, _ := h.Encode(1.5)
	operand := []byte("abc")
	_, err := EvaluateCheck(h, types.PredicateRegex, stored, operand)
	assert.Error(t, err)
}

func TestEvaluateCheckLength(t *testing.T) {
	h := MustLookup(TypeListString)
	stored, err := h.Encode([]string{"x", "y", "z"})
	require.NoError(t, err)

	operand, err := EncodeCheckOperand(h, types.PredicateLengthEquals, int64(3))
	require.NoError(t, err)
	got, err := EvaluateCheck(h, types.PredicateLengthEquals, stored, operand)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestMacaroonSecretIsSensitive(t *testing.T) {
	h := MustLookup(TypeMacaroonSecret)
	assert.True(t, h.Sensitive())
	assert.False(t, h.Hashable())
	assert.False(t, h.Comparable())
}

func TestHashableTypes(t *testing.T) {
	m := HashableTypes()
	assert.True(t, m[string(TypeString)])
	assert.True(t, m[string(TypeInt64)])
	assert.False(t, m[string(TypeDocument)])
	assert.False(t, m[string(TypeFloat)])
}

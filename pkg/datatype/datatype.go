// Package datatype implements the closed set of typed leaves and
// containers described by the data model: string, int64, float,
// timestamp, document, macaroon-secret, and list/set/map containers keyed
// by the leaf types.
//
// Each concrete type is a Handler registered under its Type tag. Runtime
// dispatch over a value's type never uses a type switch on an interface;
// callers look the tag up once in the registry and hold the Handler for
// the lifetime of the operation, per the "sum type + handler table" design
// note.
package datatype

import (
	"fmt"

	"github.com/cuemby/hyperfold/pkg/types"
)

// Type is the tag identifying one concrete datatype.
type Type string

const (
	TypeString         Type = "string"
	TypeInt64          Type = "int64"
	TypeFloat          Type = "float"
	TypeTimestamp      Type = "timestamp"
	TypeDocument       Type = "document"
	TypeMacaroonSecret Type = "macaroon_secret"

	TypeListString Type = "list(string)"
	TypeListInt64  Type = "list(int64)"
	TypeListFloat  Type = "list(float)"

	TypeSetString Type = "set(string)"
	TypeSetInt64  Type = "set(int64)"
	TypeSetFloat  Type = "set(float)"

	TypeMapStringString Type = "map(string,string)"
	TypeMapStringInt64  Type = "map(string,int64)"
	TypeMapStringFloat  Type = "map(string,float)"
	TypeMapInt64String  Type = "map(int64,string)"
	TypeMapInt64Int64   Type = "map(int64,int64)"
	TypeMapInt64Float   Type = "map(int64,float)"
)

// Handler is the capability-flag table of one concrete datatype, per the
// data model's "each type offers capability flags" paragraph.
type Handler interface {
	Type() Type

	// Validate reports whether raw is a well-formed encoding of this type.
	Validate(raw []byte) bool

	Hashable() bool
	Indexable() bool
	Comparable() bool
	HasLength() bool
	HasRegex() bool
	HasContains() bool

	// Sensitive marks macaroon-secret: the server strips these from
	// outbound read replies.
	Sensitive() bool

	// Compare implements the datatype's canonical ordering. Only called
	// when Comparable() is true.
	Compare(a, b []byte) int

	// Hash maps a validated value to the 64-bit coordinate used by
	// pkg/hyperspace. Only called when Hashable() is true.
	Hash(raw []byte) uint64

	// Length returns an element/byte count for LENGTH_* predicates. Only
	// called when HasLength() is true.
	Length(raw []byte) int

	// Encode/Decode convert between the wire/storage byte representation
	// and a Go value (client<->server representation conversion; for most
	// leaf types this is the identity function over raw bytes).
	Encode(v interface{}) ([]byte, error)
	Decode(raw []byte) (interface{}, error)
}

var registry = map[Type]Handler{}

func register(h Handler) {
	registry[h.Type()] = h
}

// Lookup returns the handler for a type tag.
func Lookup(t Type) (Handler, bool) {
	h, ok := registry[t]
	return h, ok
}

// MustLookup panics if the type is not registered; used where the caller
// has already validated the tag came from the closed set above.
func MustLookup(t Type) Handler {
	h, ok := registry[t]
	if !ok {
		panic(fmt.Sprintf("datatype: unregistered type %q", t))
	}
	return h
}

// HashableTypes returns a map[string]bool suitable for types.Schema.Validate.
func HashableTypes() map[string]bool {
	m := make(map[string]bool, len(registry))
	for tag, h := range registry {
		m[string(tag)] = h.Hashable()
	}
	return m
}

// CheckCompatible reports whether predicate is meaningful against values
// of this handler's type, per the attribute-check capability rules.
func CheckCompatible(h Handler, predicate types.Predicate) bool {
	switch predicate {
	case types.PredicateEquals,
		types.PredicateLessThan, types.PredicateLessEqual,
		types.PredicateGreaterEqual, types.PredicateGreaterThan:
		return h.Comparable()
	case types.PredicateRegex:
		return h.HasRegex()
	case types.PredicateLengthEquals, types.PredicateLengthLessEqual, types.PredicateLengthGreaterEqual:
		return h.HasLength()
	case types.PredicateContains, types.PredicateContainsLessThan:
		return h.HasContains()
	case types.PredicateFail:
		return true
	default:
		return false
	}
}

package datatype

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
)

func init() {
	register(stringHandler{})
	register(int64Handler{})
	register(floatHandler{})
	register(timestampHandler{})
	register(documentHandler{})
	register(macaroonSecretHandler{})
	registerContainers()
}

// stringHandler is the string leaf: raw bytes are the value verbatim.
type stringHandler struct{}

func (stringHandler) Type() Type              { return TypeString }
func (stringHandler) Validate([]byte) bool    { return true }
func (stringHandler) Hashable() bool          { return true }
func (stringHandler) Indexable() bool         { return true }
func (stringHandler) Comparable() bool        { return true }
func (stringHandler) HasLength() bool         { return true }
func (stringHandler) HasRegex() bool          { return true }
func (stringHandler) HasContains() bool       { return false }
func (stringHandler) Sensitive() bool         { return false }
func (stringHandler) Compare(a, b []byte) int { return bytes.Compare(a, b) }
func (stringHandler) Hash(raw []byte) uint64 {
	h := fnv.New64a()
	h.Write(raw)
	return h.Sum64()
}
func (stringHandler) Length(raw []byte) int { return len(raw) }
func (stringHandler) Encode(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("datatype: string.Encode: expected string, got %T", v)
	}
	return []byte(s), nil
}
func (stringHandler) Decode(raw []byte) (interface{}, error) { return string(raw), nil }

// MatchRegex evaluates a REGEX predicate for string-like handlers.
func MatchRegex(pattern string, raw []byte) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("datatype: invalid regex %q: %w", pattern, err)
	}
	return re.Match(raw), nil
}

// int64Handler stores a signed 64-bit integer as 8 big-endian bytes. The
// wire layout in SPEC_FULL.md §6 is little-endian for container elements;
// scalar attribute values use big-endian. Compare decodes both operands and
// compares them as signed integers, and Hash is the decoded value
// reinterpreted as a uint64.
type int64Handler struct{}

func (int64Handler) Type() Type           { return TypeInt64 }
func (int64Handler) Validate(raw []byte) bool { return len(raw) == 8 }
func (int64Handler) Hashable() bool       { return true }
func (int64Handler) Indexable() bool      { return true }
func (int64Handler) Comparable() bool     { return true }
func (int64Handler) HasLength() bool      { return false }
func (int64Handler) HasRegex() bool       { return false }
func (int64Handler) HasContains() bool    { return false }
func (int64Handler) Sensitive() bool      { return false }
func (h int64Handler) Compare(a, b []byte) int {
	av := h.decodeInt64(a)
	bv := h.decodeInt64(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}
func (h int64Handler) Hash(raw []byte) uint64 {
	return uint64(h.decodeInt64(raw))
}
func (int64Handler) Length(raw []byte) int { return 0 }
func (int64Handler) decodeInt64(raw []byte) int64 {
	return int64(binary.BigEndian.Uint64(raw))
}
func (int64Handler) Encode(v interface{}) ([]byte, error) {
	n, ok := toInt64(v)
	if !ok {
		return nil, fmt.Errorf("datatype: int64.Encode: expected integer, got %T", v)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf, nil
}
func (h int64Handler) Decode(raw []byte) (interface{}, error) {
	if !h.Validate(raw) {
		return nil, fmt.Errorf("datatype: int64.Decode: expected 8 bytes, got %d", len(raw))
	}
	return h.decodeInt64(raw), nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

// floatHandler stores an IEEE-754 double as 8 big-endian bytes.
type floatHandler struct{}

func (floatHandler) Type() Type           { return TypeFloat }
func (floatHandler) Validate(raw []byte) bool { return len(raw) == 8 }
func (floatHandler) Hashable() bool       { return false }
func (floatHandler) Indexable() bool      { return true }
func (floatHandler) Comparable() bool     { return true }
func (floatHandler) HasLength() bool      { return false }
func (floatHandler) HasRegex() bool       { return false }
func (floatHandler) HasContains() bool    { return false }
func (floatHandler) Sensitive() bool      { return false }
func (h floatHandler) Compare(a, b []byte) int {
	av := h.decodeFloat(a)
	bv := h.decodeFloat(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}
func (floatHandler) Hash(raw []byte) uint64 { return 0 }
func (floatHandler) Length(raw []byte) int  { return 0 }
func (floatHandler) decodeFloat(raw []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(raw))
}
func (floatHandler) Encode(v interface{}) ([]byte, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("datatype: float.Encode: expected float64, got %T", v)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
	return buf, nil
}
func (h floatHandler) Decode(raw []byte) (interface{}, error) {
	if !h.Validate(raw) {
		return nil, fmt.Errorf("datatype: float.Decode: expected 8 bytes, got %d", len(raw))
	}
	return h.decodeFloat(raw), nil
}

// timestampHandler stores a Unix-nanosecond count the same way int64 does.
// It is kept as a distinct type because the data model lists it separately
// and because a future wire encoding may choose a different resolution.
type timestampHandler struct{ int64Handler }

func (timestampHandler) Type() Type { return TypeTimestamp }

// documentHandler validates that raw is a JSON object. Documents are never
// hashable, comparable, or indexable on their own: dotted-path predicates
// resolve a subfield at prepare time into a string-typed check on that
// subfield instead (see pkg/client/prepare.go).
type documentHandler struct{}

func (documentHandler) Type() Type { return TypeDocument }
func (documentHandler) Validate(raw []byte) bool {
	var v map[string]interface{}
	return json.Unmarshal(raw, &v) == nil
}
func (documentHandler) Hashable() bool              { return false }
func (documentHandler) Indexable() bool              { return false }
func (documentHandler) Comparable() bool             { return false }
func (documentHandler) HasLength() bool              { return false }
func (documentHandler) HasRegex() bool               { return false }
func (documentHandler) HasContains() bool            { return false }
func (documentHandler) Sensitive() bool              { return false }
func (documentHandler) Compare(a, b []byte) int      { return 0 }
func (documentHandler) Hash(raw []byte) uint64       { return 0 }
func (documentHandler) Length(raw []byte) int        { return 0 }
func (documentHandler) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
func (documentHandler) Decode(raw []byte) (interface{}, error) {
	var v map[string]interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("datatype: document.Decode: %w", err)
	}
	return v, nil
}

// Subfield looks up path as a single top-level key of a document's JSON
// object, returning the re-encoded JSON of that key's value and true if
// present. A path containing dots is matched verbatim against top-level
// keys; nested objects are not walked. Used by pkg/client/prepare.go when a selection predicate
// names "doc.field".
func Subfield(raw []byte, path string) ([]byte, bool) {
	var v map[string]interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	val, ok := v[path]
	if !ok {
		return nil, false
	}
	encoded, err := json.Marshal(val)
	if err != nil {
		return nil, false
	}
	return encoded, true
}

// macaroonSecretHandler is an opaque sensitive leaf. The server strips
// attributes of this type from outbound read replies (SPEC_FULL.md §4.9).
type macaroonSecretHandler struct{}

func (macaroonSecretHandler) Type() Type              { return TypeMacaroonSecret }
func (macaroonSecretHandler) Validate(raw []byte) bool { return len(raw) > 0 }
func (macaroonSecretHandler) Hashable() bool           { return false }
func (macaroonSecretHandler) Indexable() bool          { return false }
func (macaroonSecretHandler) Comparable() bool         { return false }
func (macaroonSecretHandler) HasLength() bool          { return false }
func (macaroonSecretHandler) HasRegex() bool           { return false }
func (macaroonSecretHandler) HasContains() bool        { return false }
func (macaroonSecretHandler) Sensitive() bool          { return true }
func (macaroonSecretHandler) Compare(a, b []byte) int  { return 0 }
func (macaroonSecretHandler) Hash(raw []byte) uint64   { return 0 }
func (macaroonSecretHandler) Length(raw []byte) int    { return 0 }
func (macaroonSecretHandler) Encode(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("datatype: macaroon_secret.Encode: expected []byte, got %T", v)
	}
	return b, nil
}
func (macaroonSecretHandler) Decode(raw []byte) (interface{}, error) { return raw, nil }

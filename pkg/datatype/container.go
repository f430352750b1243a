package datatype

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// containerKind distinguishes the three container shapes: ordered list,
// canonicalized set, and canonicalized map.
type containerKind int

const (
	kindList containerKind = iota
	kindSet
	kindMap
)

// elemKind is the wire representation of one scalar slot inside a
// container, per the "container byte layout" paragraph: strings are
// length-prefixed (little-endian uint32) variable-length, int64/float are
// fixed 8-byte little-endian.
type elemKind int

const (
	elemString elemKind = iota
	elemInt64
	elemFloat
)

func registerContainers() {
	register(containerHandler{tag: TypeListString, kind: kindList, elem: elemString})
	register(containerHandler{tag: TypeListInt64, kind: kindList, elem: elemInt64})
	register(containerHandler{tag: TypeListFloat, kind: kindList, elem: elemFloat})

	register(containerHandler{tag: TypeSetString, kind: kindSet, elem: elemString})
	register(containerHandler{tag: TypeSetInt64, kind: kindSet, elem: elemInt64})
	register(containerHandler{tag: TypeSetFloat, kind: kindSet, elem: elemFloat})

	register(containerHandler{tag: TypeMapStringString, kind: kindMap, key: elemString, elem: elemString})
	register(containerHandler{tag: TypeMapStringInt64, kind: kindMap, key: elemString, elem: elemInt64})
	register(containerHandler{tag: TypeMapStringFloat, kind: kindMap, key: elemString, elem: elemFloat})
	register(containerHandler{tag: TypeMapInt64String, kind: kindMap, key: elemInt64, elem: elemString})
	register(containerHandler{tag: TypeMapInt64Int64, kind: kindMap, key: elemInt64, elem: elemInt64})
	register(containerHandler{tag: TypeMapInt64Float, kind: kindMap, key: elemInt64, elem: elemFloat})
}

// containerHandler implements Handler for every list/set/map instantiation.
// A single generic implementation, parameterized by kind/key/elem, stands
// in for what would otherwise be twelve near-duplicate handler types —
// the handler table still dispatches by Type tag, only the table's entries
// share code.
type containerHandler struct {
	tag  Type
	kind containerKind
	key  elemKind // only meaningful when kind == kindMap
	elem elemKind
}

func (h containerHandler) Type() Type { return h.tag }

func (h containerHandler) Validate(raw []byte) bool {
	_, err := h.splitElements(raw)
	return err == nil
}

func (h containerHandler) Hashable() bool    { return false }
func (h containerHandler) Indexable() bool   { return false }
func (h containerHandler) Comparable() bool  { return false }
func (h containerHandler) HasLength() bool   { return true }
func (h containerHandler) HasRegex() bool    { return false }
func (h containerHandler) HasContains() bool { return true }
func (h containerHandler) Sensitive() bool   { return false }
func (h containerHandler) Compare(a, b []byte) int { return 0 }
func (h containerHandler) Hash(raw []byte) uint64  { return 0 }

func (h containerHandler) Length(raw []byte) int {
	elems, err := h.splitElements(raw)
	if err != nil {
		return 0
	}
	if h.kind == kindMap {
		return len(elems) / 2
	}
	return len(elems)
}

// splitElements walks raw and returns the flat sequence of encoded element
// byte-slices: one per entry for list/set, two per entry (key, value)
// for map.
func (h containerHandler) splitElements(raw []byte) ([][]byte, error) {
	var out [][]byte
	rest := raw
	for len(rest) > 0 {
		if h.kind == kindMap {
			k, tail, err := decodeElem(h.key, rest)
			if err != nil {
				return nil, err
			}
			v, tail2, err := decodeElem(h.elem, tail)
			if err != nil {
				return nil, err
			}
			out = append(out, k, v)
			rest = tail2
			continue
		}
		v, tail, err := decodeElem(h.elem, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		rest = tail
	}
	return out, nil
}

// Encode accepts a Go slice ([]string/[]int64/[]float64 for list/set) or a
// map (map[string]X / map[int64]X for map) and produces the canonical wire
// form: lists keep caller order, sets and maps are sorted by element/key
// under the element handler's byte comparison before serialization.
func (h containerHandler) Encode(v interface{}) ([]byte, error) {
	switch h.kind {
	case kindList, kindSet:
		elems, err := h.encodeScalarSlice(v)
		if err != nil {
			return nil, err
		}
		if h.kind == kindSet {
			elems = canonicalizeSet(elems)
		}
		return joinElems(elems), nil
	case kindMap:
		pairs, err := h.encodeMapPairs(v)
		if err != nil {
			return nil, err
		}
		sort.Slice(pairs, func(i, j int) bool {
			return compareBytes(pairs[i][0], pairs[j][0]) < 0
		})
		var out []byte
		for _, p := range pairs {
			out = append(out, p[0]...)
			out = append(out, p[1]...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("datatype: unknown container kind")
	}
}

func (h containerHandler) Decode(raw []byte) (interface{}, error) {
	elems, err := h.splitElements(raw)
	if err != nil {
		return nil, err
	}
	switch h.kind {
	case kindList, kindSet:
		out := make([]interface{}, 0, len(elems))
		for _, e := range elems {
			v, err := decodeScalarValue(h.elem, e)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case kindMap:
		out := make(map[interface{}]interface{}, len(elems)/2)
		for i := 0; i+1 < len(elems); i += 2 {
			k, err := decodeScalarValue(h.key, elems[i])
			if err != nil {
				return nil, err
			}
			v, err := decodeScalarValue(h.elem, elems[i+1])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("datatype: unknown container kind")
	}
}

func (h containerHandler) encodeScalarSlice(v interface{}) ([][]byte, error) {
	switch h.elem {
	case elemString:
		ss, ok := v.([]string)
		if !ok {
			return nil, fmt.Errorf("datatype: %s.Encode: expected []string, got %T", h.tag, v)
		}
		out := make([][]byte, len(ss))
		for i, s := range ss {
			out[i] = encodeElemString(s)
		}
		return out, nil
	case elemInt64:
		ns, ok := v.([]int64)
		if !ok {
			return nil, fmt.Errorf("datatype: %s.Encode: expected []int64, got %T", h.tag, v)
		}
		out := make([][]byte, len(ns))
		for i, n := range ns {
			out[i] = encodeElemInt64(n)
		}
		return out, nil
	case elemFloat:
		fs, ok := v.([]float64)
		if !ok {
			return nil, fmt.Errorf("datatype: %s.Encode: expected []float64, got %T", h.tag, v)
		}
		out := make([][]byte, len(fs))
		for i, f := range fs {
			out[i] = encodeElemFloat(f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("datatype: unknown element kind")
	}
}

func (h containerHandler) encodeMapPairs(v interface{}) ([][2][]byte, error) {
	var pairs [][2][]byte
	switch m := v.(type) {
	case map[string]string:
		for k, val := range m {
			pairs = append(pairs, [2][]byte{encodeElemString(k), encodeElemString(val)})
		}
	case map[string]int64:
		for k, val := range m {
			pairs = append(pairs, [2][]byte{encodeElemString(k), encodeElemInt64(val)})
		}
	case map[string]float64:
		for k, val := range m {
			pairs = append(pairs, [2][]byte{encodeElemString(k), encodeElemFloat(val)})
		}
	case map[int64]string:
		for k, val := range m {
			pairs = append(pairs, [2][]byte{encodeElemInt64(k), encodeElemString(val)})
		}
	case map[int64]int64:
		for k, val := range m {
			pairs = append(pairs, [2][]byte{encodeElemInt64(k), encodeElemInt64(val)})
		}
	case map[int64]float64:
		for k, val := range m {
			pairs = append(pairs, [2][]byte{encodeElemInt64(k), encodeElemFloat(val)})
		}
	default:
		return nil, fmt.Errorf("datatype: %s.Encode: unsupported map type %T", h.tag, v)
	}
	return pairs, nil
}

// canonicalizeSet sorts elements by byte order and drops duplicates,
// matching the data model's "sets are canonicalized before serialization"
// requirement.
func canonicalizeSet(elems [][]byte) [][]byte {
	sorted := make([][]byte, len(elems))
	copy(sorted, elems)
	sort.Slice(sorted, func(i, j int) bool { return compareBytes(sorted[i], sorted[j]) < 0 })
	out := sorted[:0:0]
	for i, e := range sorted {
		if i > 0 && compareBytes(e, sorted[i-1]) == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

func joinElems(elems [][]byte) []byte {
	var out []byte
	for _, e := range elems {
		out = append(out, e...)
	}
	return out
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func encodeElemString(s string) []byte {
	buf := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return buf
}

func encodeElemInt64(n int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf
}

func encodeElemFloat(f float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	return buf
}

// decodeElem reads one element of the given kind off the front of raw and
// returns (encoded-element, remainder, error).
func decodeElem(k elemKind, raw []byte) ([]byte, []byte, error) {
	switch k {
	case elemString:
		if len(raw) < 4 {
			return nil, nil, fmt.Errorf("datatype: truncated string length prefix")
		}
		n := binary.LittleEndian.Uint32(raw)
		if uint64(len(raw)) < 4+uint64(n) {
			return nil, nil, fmt.Errorf("datatype: truncated string body")
		}
		return raw[:4+n], raw[4+n:], nil
	case elemInt64, elemFloat:
		if len(raw) < 8 {
			return nil, nil, fmt.Errorf("datatype: truncated fixed-width element")
		}
		return raw[:8], raw[8:], nil
	default:
		return nil, nil, fmt.Errorf("datatype: unknown element kind")
	}
}

func decodeScalarValue(k elemKind, encoded []byte) (interface{}, error) {
	switch k {
	case elemString:
		n := binary.LittleEndian.Uint32(encoded)
		return string(encoded[4 : 4+n]), nil
	case elemInt64:
		return int64(binary.LittleEndian.Uint64(encoded)), nil
	case elemFloat:
		return math.Float64frombits(binary.LittleEndian.Uint64(encoded)), nil
	default:
		return nil, fmt.Errorf("datatype: unknown element kind")
	}
}

// ContainsElement reports whether a set/list-encoded container holds an
// element whose encoded bytes equal needle, and whether a map-encoded
// container holds needle as a key. Used by the CONTAINS predicate.
func ContainsElement(h Handler, raw, needle []byte) bool {
	ch, ok := h.(containerHandler)
	if !ok {
		return false
	}
	elems, err := ch.splitElements(raw)
	if err != nil {
		return false
	}
	step := 1
	if ch.kind == kindMap {
		step = 2
	}
	for i := 0; i < len(elems); i += step {
		if compareBytes(elems[i], needle) == 0 {
			return true
		}
	}
	return false
}

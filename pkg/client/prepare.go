package client

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/cuemby/hyperfold/pkg/datatype"
	"github.com/cuemby/hyperfold/pkg/types"
)

// FieldValue is one caller-supplied predicate before resolution against a
// schema: a possibly dotted attribute name, a predicate, and the Go value
// it carries.
type FieldValue struct {
	Name      string
	Predicate types.Predicate
	Value     interface{}
}

// FuncallValue is one caller-supplied mutation before resolution. Arg2 is
// only consulted for MAP_ADD/MAP_REMOVE, where it carries the map key.
type FuncallValue struct {
	Name string
	Func types.FuncallName
	Arg1 interface{}
	Arg2 interface{}
}

// PreparedCheck pairs a resolved AttributeCheck with the document subfield
// path it targets, set when the caller named "doc.field" rather than a
// bare attribute (request preparation step 3).
type PreparedCheck struct {
	types.AttributeCheck
	Subfield string
}

// resolveName splits a caller-supplied attribute name at its first dot:
// the head names a schema attribute, the remainder (if any) names a
// document subfield of it.
func resolveName(schema types.Schema, name string) (attrIdx int, subfield string, ok bool) {
	head := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		head, subfield = name[:i], name[i+1:]
	}
	attrIdx = schema.AttrIndex(head)
	return attrIdx, subfield, attrIdx >= 0
}

// prepareChecks resolves and validates a caller's selection predicates
// against schema, per the request pipeline's preparation steps 3 and 6:
// attribute resolution (including document subfields, checked as strings
// against the subfield's JSON-encoded value), predicate compatibility via
// the datatype registry, and a stable sort by attribute number.
func prepareChecks(schema types.Schema, fields []FieldValue) ([]PreparedCheck, types.ResultCode) {
	out := make([]PreparedCheck, 0, len(fields))
	for _, f := range fields {
		attrIdx, subfield, ok := resolveName(schema, f.Name)
		if !ok {
			return nil, types.RUnknownAttr
		}
		attrType := datatype.Type(schema.Attributes[attrIdx].Type)

		checkType := attrType
		if subfield != "" {
			if attrType != datatype.TypeDocument {
				return nil, types.RWrongType
			}
			checkType = datatype.TypeString
		}

		h, ok := datatype.Lookup(checkType)
		if !ok {
			return nil, types.RWrongType
		}
		if !datatype.CheckCompatible(h, f.Predicate) {
			return nil, types.RWrongType
		}

		raw, err := datatype.EncodeCheckOperand(h, f.Predicate, f.Value)
		if err != nil {
			return nil, types.RWrongType
		}

		out = append(out, PreparedCheck{
			AttributeCheck: types.AttributeCheck{
				Attr:      attrIdx,
				DataType:  string(checkType),
				Value:     raw,
				Predicate: f.Predicate,
			},
			Subfield: subfield,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Attr < out[j].Attr })
	return out, types.RSuccess
}

// prepareFuncalls resolves a caller's mutation list against schema, per
// preparation steps 4-6: attribute 0 (the key) is rejected with
// DONTUSEKEY, document values are canonicalized to their JSON
// representation before encoding, map funcalls carry both arg1 (value)
// and arg2 (key), and the result is stable-sorted by attribute number so
// that funcalls sharing an attribute keep their relative order - the
// mutation primitives are not in general commutative.
func prepareFuncalls(schema types.Schema, funcs []FuncallValue) ([]types.Funcall, types.ResultCode) {
	out := make([]types.Funcall, 0, len(funcs))
	for _, f := range funcs {
		attrIdx := schema.AttrIndex(f.Name)
		if attrIdx < 0 {
			return nil, types.RUnknownAttr
		}
		if attrIdx == 0 {
			return nil, types.RDontUseKey
		}
		attrType := datatype.Type(schema.Attributes[attrIdx].Type)
		h, ok := datatype.Lookup(attrType)
		if !ok {
			return nil, types.RWrongType
		}

		arg1 := f.Arg1
		if attrType == datatype.TypeDocument {
			canon, err := canonicalizeDocument(arg1)
			if err != nil {
				return nil, types.RWrongType
			}
			arg1 = canon
		}
		raw1, err := h.Encode(arg1)
		if err != nil {
			return nil, types.RWrongType
		}

		fc := types.Funcall{Attr: attrIdx, Name: f.Func, Arg1: raw1, Arg1Type: string(attrType)}

		if isMapFuncall(f.Func) {
			kh, kt, ok := mapKeyHandler(attrType)
			if !ok {
				return nil, types.RWrongType
			}
			raw2, err := kh.Encode(f.Arg2)
			if err != nil {
				return nil, types.RWrongType
			}
			fc.Arg2, fc.Arg2Type = raw2, string(kt)
		}

		out = append(out, fc)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Attr < out[j].Attr })
	return out, types.RSuccess
}

// canonicalizeDocument normalizes a caller-supplied document value (raw
// JSON bytes, a string of JSON, or a Go value) into its canonical JSON
// encoding.
func canonicalizeDocument(v interface{}) ([]byte, error) {
	switch raw := v.(type) {
	case []byte:
		var tmp interface{}
		if err := json.Unmarshal(raw, &tmp); err != nil {
			return nil, err
		}
		return json.Marshal(tmp)
	case string:
		var tmp interface{}
		if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
			return nil, err
		}
		return json.Marshal(tmp)
	default:
		return json.Marshal(raw)
	}
}

func isMapFuncall(name types.FuncallName) bool {
	return name == types.FuncMapAdd || name == types.FuncMapRemove
}

// mapKeyHandler returns the key-side handler and type tag for a map
// attribute's key datatype.
func mapKeyHandler(mapType datatype.Type) (datatype.Handler, datatype.Type, bool) {
	switch mapType {
	case datatype.TypeMapStringString, datatype.TypeMapStringInt64, datatype.TypeMapStringFloat:
		h, ok := datatype.Lookup(datatype.TypeString)
		return h, datatype.TypeString, ok
	case datatype.TypeMapInt64String, datatype.TypeMapInt64Int64, datatype.TypeMapInt64Float:
		h, ok := datatype.Lookup(datatype.TypeInt64)
		return h, datatype.TypeInt64, ok
	default:
		return nil, "", false
	}
}

// keyBytes encodes a caller-supplied key value against schema's key
// attribute, failing with WRONGTYPE if it doesn't validate.
func keyBytes(schema types.Schema, key interface{}) ([]byte, types.ResultCode) {
	h, ok := datatype.Lookup(datatype.Type(schema.Key().Type))
	if !ok {
		return nil, types.RWrongType
	}
	raw, err := h.Encode(key)
	if err != nil {
		return nil, types.RWrongType
	}
	if !h.Validate(raw) {
		return nil, types.RWrongType
	}
	return raw, types.RSuccess
}

package datatype

import (
	"fmt"

	"github.com/cuemby/hyperfold/pkg/types"
)

// EvaluateCheck applies one attribute check's predicate against a stored
// attribute value. stored is the attribute's current encoded bytes;
// checkValue is the check's comparison operand, encoded the same way
// (scalar checks use the leaf's own Encode, LENGTH_* checks encode the
// bound as int64, REGEX encodes the pattern as a string, CONTAINS encodes
// the needle as one container element).
func EvaluateCheck(h Handler, predicate types.Predicate, stored, checkValue []byte) (bool, error) {
	if !CheckCompatible(h, predicate) {
		return false, fmt.Errorf("datatype: predicate %q not supported by type %q", predicate, h.Type())
	}

	switch predicate {
	case types.PredicateFail:
		return false, nil

	case types.PredicateEquals:
		return h.Compare(stored, checkValue) == 0, nil
	case types.PredicateLessThan:
		return h.Compare(stored, checkValue) < 0, nil
	case types.PredicateLessEqual:
		return h.Compare(stored, checkValue) <= 0, nil
	case types.PredicateGreaterEqual:
		return h.Compare(stored, checkValue) >= 0, nil
	case types.PredicateGreaterThan:
		return h.Compare(stored, checkValue) > 0, nil

	case types.PredicateRegex:
		if h.Type() != TypeString {
			return false, fmt.Errorf("datatype: REGEX only applies to string attributes")
		}
		return MatchRegex(string(checkValue), stored)

	case types.PredicateLengthEquals, types.PredicateLengthLessEqual, types.PredicateLengthGreaterEqual:
		bound, err := decodeLengthBound(checkValue)
		if err != nil {
			return false, err
		}
		n := h.Length(stored)
		switch predicate {
		case types.PredicateLengthEquals:
			return n == bound, nil
		case types.PredicateLengthLessEqual:
			return n <= bound, nil
		default:
			return n >= bound, nil
		}

	case types.PredicateContains:
		return ContainsElement(h, stored, checkValue), nil

	case types.PredicateContainsLessThan:
		return containsLessThan(h, stored, checkValue)

	default:
		return false, fmt.Errorf("datatype: unknown predicate %q", predicate)
	}
}

func decodeLengthBound(checkValue []byte) (int, error) {
	h := MustLookup(TypeInt64)
	v, err := h.Decode(checkValue)
	if err != nil {
		return 0, fmt.Errorf("datatype: malformed length bound: %w", err)
	}
	return int(v.(int64)), nil
}

// containsLessThan reports whether a list/set container holds at least one
// element strictly less than needle under the element handler's ordering.
// Maps do not support CONTAINS_LESS_THAN since map keys are not ordered by
// value comparison in this model.
func containsLessThan(h Handler, raw, needle []byte) (bool, error) {
	ch, ok := h.(containerHandler)
	if !ok || ch.kind == kindMap {
		return false, fmt.Errorf("datatype: CONTAINS_LESS_THAN requires a list or set attribute")
	}
	elems, err := ch.splitElements(raw)
	if err != nil {
		return false, err
	}
	for _, e := range elems {
		if compareBytes(e, needle) < 0 {
			return true, nil
		}
	}
	return false, nil
}

// EncodeCheckOperand encodes a Go value as the bytes a check's Value field
// should carry for the given predicate against handler h.
func EncodeCheckOperand(h Handler, predicate types.Predicate, v interface{}) ([]byte, error) {
	switch predicate {
	case types.PredicateLengthEquals, types.PredicateLengthLessEqual, types.PredicateLengthGreaterEqual:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("datatype: length bound must be an integer, got %T", v)
		}
		return MustLookup(TypeInt64).Encode(n)
	case types.PredicateRegex:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("datatype: regex pattern must be a string, got %T", v)
		}
		return []byte(s), nil
	case types.PredicateContains, types.PredicateContainsLessThan:
		ch, ok := h.(containerHandler)
		if !ok {
			return nil, fmt.Errorf("datatype: CONTAINS requires a container attribute")
		}
		return ch.encodeSingleElem(ch.elem, v)
	default:
		return h.Encode(v)
	}
}

func (h containerHandler) encodeSingleElem(k elemKind, v interface{}) ([]byte, error) {
	switch k {
	case elemString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("datatype: expected string element, got %T", v)
		}
		return encodeElemString(s), nil
	case elemInt64:
		n, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("datatype: expected integer element, got %T", v)
		}
		return encodeElemInt64(n), nil
	case elemFloat:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("datatype: expected float element, got %T", v)
		}
		return encodeElemFloat(f), nil
	default:
		return nil, fmt.Errorf("datatype: unknown element kind")
	}
}

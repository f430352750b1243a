// Package search computes the per-attribute ranges a set of attribute
// checks implies, so that callers can pick which subspace/region best
// covers a search before falling back to a full scan.
package search

import (
	"sort"

	"github.com/cuemby/hyperfold/pkg/datatype"
	"github.com/cuemby/hyperfold/pkg/types"
)

// Range is one attribute's [Start, End] bound implied by a group of checks
// against it. A bound with HasStart/HasEnd false is open on that side.
// Invalid is set when the intersection of the group's checks is empty
// (e.g. "attr < 3" AND "attr > 5").
type Range struct {
	Attr     int
	Type     datatype.Type
	Start    []byte
	End      []byte
	HasStart bool
	HasEnd   bool
	Invalid  bool
}

// rawRange is one check's contribution before grouping/compression.
type rawRange struct {
	attr     int
	typ      datatype.Type
	start    []byte
	end      []byte
	hasStart bool
	hasEnd   bool
}

// ComputeRanges reduces checks to one Range per attribute that admits a
// range at all. Checks against attributes out of bounds, against document
// attributes, or carrying a predicate with no range interpretation
// (REGEX, LENGTH_*, CONTAINS, CONTAINS_LESS_THAN, FAIL) are dropped — the
// caller still evaluates those checks exactly, this just narrows the scan.
func ComputeRanges(schema types.Schema, checks []types.AttributeCheck) []Range {
	raws := make([]rawRange, 0, len(checks))

	for _, check := range checks {
		if check.Attr < 0 || check.Attr >= len(schema.Attributes) {
			continue
		}
		attrType := datatype.Type(schema.Attributes[check.Attr].Type)
		if attrType == datatype.TypeDocument {
			continue
		}

		r, ok := rangeFromCheck(check, attrType)
		if ok {
			raws = append(raws, r)
		}
	}

	if len(raws) == 0 {
		return nil
	}

	sort.Slice(raws, func(i, j int) bool {
		if raws[i].attr != raws[j].attr {
			return raws[i].attr < raws[j].attr
		}
		return raws[i].typ < raws[j].typ
	})

	var out []Range
	i := 0
	for i < len(raws) {
		j := i + 1
		for j < len(raws) && raws[j].attr == raws[i].attr {
			j++
		}
		if r, ok := compressGroup(raws[i:j]); ok {
			out = append(out, r)
		}
		i = j
	}
	return out
}

func rangeFromCheck(check types.AttributeCheck, attrType datatype.Type) (rawRange, bool) {
	r := rawRange{attr: check.Attr, typ: attrType}
	switch check.Predicate {
	case types.PredicateEquals:
		r.start, r.end = check.Value, check.Value
		r.hasStart, r.hasEnd = true, true
		return r, true
	case types.PredicateLessThan, types.PredicateLessEqual:
		r.end = check.Value
		r.hasEnd = true
		return r, true
	case types.PredicateGreaterEqual, types.PredicateGreaterThan:
		r.start = check.Value
		r.hasStart = true
		return r, true
	default:
		return rawRange{}, false
	}
}

// compressGroup intersects every raw range sharing one attribute into a
// single bound, tightening the start to the maximum lower bound and the
// end to the minimum upper bound seen in the group.
func compressGroup(group []rawRange) (Range, bool) {
	h, ok := datatype.Lookup(group[0].typ)
	if !ok {
		return Range{}, false
	}

	out := Range{Attr: group[0].attr, Type: group[0].typ}
	for _, r := range group {
		if r.hasStart {
			if !out.HasStart || h.Compare(r.start, out.Start) > 0 {
				out.Start = r.start
				out.HasStart = true
			}
		}
		if r.hasEnd {
			if !out.HasEnd || h.Compare(r.end, out.End) < 0 {
				out.End = r.end
				out.HasEnd = true
			}
		}
	}

	if out.HasStart && out.HasEnd && h.Compare(out.Start, out.End) > 0 {
		out.Invalid = true
	}
	return out, true
}

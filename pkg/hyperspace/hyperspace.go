// Package hyperspace computes the multi-dimensional hashing coordinates a
// record occupies within a subspace and answers region-box containment and
// tiling questions against those coordinates.
package hyperspace

import (
	"fmt"
	"math"

	"github.com/cuemby/hyperfold/pkg/datatype"
	"github.com/cuemby/hyperfold/pkg/types"
)

// HashAttributes computes one 64-bit coordinate per subspace attribute, in
// subspace order, by looking up each attribute's datatype handler and
// calling Hash on its encoded value. values is keyed by schema attribute
// index; an attribute missing from values (unset secondary attribute)
// hashes as the zero value's hash.
func HashAttributes(schema types.Schema, sub *types.Subspace, values map[int][]byte) ([]uint64, error) {
	coords := make([]uint64, len(sub.Attrs))
	for i, attrIdx := range sub.Attrs {
		if attrIdx < 0 || attrIdx >= len(schema.Attributes) {
			return nil, fmt.Errorf("hyperspace: subspace references out-of-range attribute %d", attrIdx)
		}
		attr := schema.Attributes[attrIdx]
		h, ok := datatype.Lookup(datatype.Type(attr.Type))
		if !ok {
			return nil, fmt.Errorf("hyperspace: unregistered datatype %q for attribute %q", attr.Type, attr.Name)
		}
		if !h.Hashable() {
			return nil, fmt.Errorf("hyperspace: attribute %q of type %q is not hashable", attr.Name, attr.Type)
		}
		raw, present := values[attrIdx]
		if !present && !h.Validate(raw) {
			// Fixed-width hashable types (int64, timestamp): the zero
			// value is 8 zero bytes.
			raw = make([]byte, 8)
		}
		coords[i] = h.Hash(raw)
	}
	return coords, nil
}

// RegionContains reports whether coords falls inside region's box. Bounds
// are inclusive on both ends, per the data model's "inclusive 64-bit
// lower_coord[]/upper_coord[]" description.
func RegionContains(region *types.Region, coords []uint64) bool {
	if len(region.LowerCoord) != len(coords) || len(region.UpperCoord) != len(coords) {
		return false
	}
	for i, c := range coords {
		if c < region.LowerCoord[i] || c > region.UpperCoord[i] {
			return false
		}
	}
	return true
}

// FindRegion returns the subspace region whose box contains coords.
func FindRegion(sub *types.Subspace, coords []uint64) (*types.Region, bool) {
	for _, r := range sub.Regions {
		if RegionContains(r, coords) {
			return r, true
		}
	}
	return nil, false
}

// Overlaps reports whether two regions' boxes share any point, by testing
// axis-aligned-box intersection on every dimension. Both regions must come
// from the same subspace (same dimensionality).
func Overlaps(a, b *types.Region) bool {
	if len(a.LowerCoord) != len(b.LowerCoord) {
		return false
	}
	for i := range a.LowerCoord {
		if a.UpperCoord[i] < b.LowerCoord[i] || b.UpperCoord[i] < a.LowerCoord[i] {
			return false
		}
	}
	return true
}

// RangeIntersectsRegion reports whether a half-open or closed search range
// on one attribute could match any point in region along that attribute's
// dimension. dim is the region's coordinate index for the attribute (its
// position within the subspace's Attrs list), and hashedStart/hashedEnd are
// the range's endpoints already hashed the same way a stored value would
// be. An open side always intersects.
func RangeIntersectsRegion(region *types.Region, dim int, hasStart bool, hashedStart uint64, hasEnd bool, hashedEnd uint64) bool {
	if dim < 0 || dim >= len(region.LowerCoord) {
		return false
	}
	if hasStart && hashedStart > region.UpperCoord[dim] {
		return false
	}
	if hasEnd && hashedEnd < region.LowerCoord[dim] {
		return false
	}
	return true
}

// ValidateTiling checks the invariants a subspace's regions must hold:
// no two regions overlap, and every region has one lower/upper bound per
// subspace attribute. Full volume-coverage verification (that the regions
// leave no gap) is not attempted here — the original implementation leaves
// the equivalent check as an open TODO, since confirming exact coverage of
// an n-dimensional tiling from an unordered region list requires a sweep
// the coordinator's placement code does not otherwise need. Regions are
// trusted to have been produced by the placement algorithm, which only
// ever splits or merges existing boxes.
func ValidateTiling(sub *types.Subspace) error {
	for _, r := range sub.Regions {
		if len(r.LowerCoord) != len(sub.Attrs) || len(r.UpperCoord) != len(sub.Attrs) {
			return fmt.Errorf("hyperspace: region %d coordinate arity %d does not match subspace attrs %d",
				r.ID, len(r.LowerCoord), len(sub.Attrs))
		}
		for i := range r.LowerCoord {
			if r.LowerCoord[i] > r.UpperCoord[i] {
				return fmt.Errorf("hyperspace: region %d has inverted bound on dimension %d", r.ID, i)
			}
		}
	}
	for i := 0; i < len(sub.Regions); i++ {
		for j := i + 1; j < len(sub.Regions); j++ {
			if Overlaps(sub.Regions[i], sub.Regions[j]) {
				return fmt.Errorf("hyperspace: regions %d and %d overlap", sub.Regions[i].ID, sub.Regions[j].ID)
			}
		}
	}
	return nil
}

// FullDomain returns the [0, MaxUint64] bound repeated once per dimension,
// the box a brand-new subspace's single region starts out covering before
// any split.
func FullDomain(dims int) (lower, upper []uint64) {
	lower = make([]uint64, dims)
	upper = make([]uint64, dims)
	for i := range upper {
		upper[i] = math.MaxUint64
	}
	return lower, upper
}

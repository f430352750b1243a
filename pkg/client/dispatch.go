package client

import (
	"github.com/cuemby/hyperfold/pkg/datatype"
	"github.com/cuemby/hyperfold/pkg/hyperspace"
	"github.com/cuemby/hyperfold/pkg/search"
	"github.com/cuemby/hyperfold/pkg/types"
)

// keyedTarget resolves the unique point leader for a key: the space's
// implicit first subspace is zero-dimensional and keyed on the primary
// key alone, so it degenerates to a single full-volume region (the data
// model's "region tiling degenerates to a single full-volume region"
// note) - no hashing is needed to find it.
func keyedTarget(sp *types.Space) (leg, bool) {
	if len(sp.Subspaces) == 0 || len(sp.Subspaces[0].Regions) == 0 {
		return leg{}, false
	}
	region := sp.Subspaces[0].Regions[0]
	rep, ok := region.PointLeader()
	if !ok {
		return leg{}, false
	}
	return leg{server: rep.Server, virtual: rep.Virtual}, true
}

// searchTarget is one server a search/aggregation leg will be sent to,
// paired with the region it was chosen for.
type searchTarget struct {
	leg    leg
	region *types.Region
}

// searchPlan picks, among a space's subspaces, the one whose set of
// distinct target servers is smallest, then returns one target per
// region of that subspace whose hashing coordinates intersect every
// range derived from the caller's predicates - dispatch's subspace
// selection rule (spec.md §4.2).
func searchPlan(sp *types.Space, schema types.Schema, checks []types.AttributeCheck) []searchTarget {
	ranges := search.ComputeRanges(schema, checks)
	for _, r := range ranges {
		if r.Invalid {
			return nil
		}
	}

	var best []searchTarget
	bestServers := -1

	for _, sub := range sp.Subspaces {
		targets := regionsForSubspace(sub, ranges)
		if len(targets) == 0 {
			continue
		}
		servers := distinctServers(targets)
		if bestServers == -1 || servers < bestServers {
			best, bestServers = targets, servers
		}
	}
	return best
}

// regionsForSubspace returns one target (the tail replica) per region of
// sub whose box intersects every range that applies to one of the
// subspace's hashing dimensions.
func regionsForSubspace(sub *types.Subspace, ranges []search.Range) []searchTarget {
	dimOf := make(map[int]int, len(sub.Attrs))
	for i, attr := range sub.Attrs {
		dimOf[attr] = i
	}

	var out []searchTarget
	for _, region := range sub.Regions {
		if !regionMatchesRanges(region, dimOf, ranges) {
			continue
		}
		rep, ok := region.Tail()
		if !ok {
			continue // offline region: no live replica to target
		}
		out = append(out, searchTarget{leg: leg{server: rep.Server, virtual: rep.Virtual}, region: region})
	}
	return out
}

func regionMatchesRanges(region *types.Region, dimOf map[int]int, ranges []search.Range) bool {
	for _, r := range ranges {
		dim, isHashingDim := dimOf[r.Attr]
		if !isHashingDim {
			continue
		}
		var hashedStart, hashedEnd uint64
		if r.HasStart {
			hashedStart = hashEndpoint(r, r.Start)
		}
		if r.HasEnd {
			hashedEnd = hashEndpoint(r, r.End)
		}
		if !hyperspace.RangeIntersectsRegion(region, dim, r.HasStart, hashedStart, r.HasEnd, hashedEnd) {
			return false
		}
	}
	return true
}

// hashEndpoint hashes one already-encoded range endpoint using the
// endpoint's own datatype handler, looked up the same way
// hyperspace.HashAttributes does for a stored value.
func hashEndpoint(r search.Range, raw []byte) uint64 {
	h, ok := datatype.Lookup(r.Type)
	if !ok || !h.Hashable() {
		return 0
	}
	return h.Hash(raw)
}

func distinctServers(targets []searchTarget) int {
	seen := make(map[types.ServerID]bool, len(targets))
	for _, t := range targets {
		seen[t.leg.server] = true
	}
	return len(seen)
}

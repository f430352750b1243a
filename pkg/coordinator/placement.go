package coordinator

import (
	"math/rand"
	"sort"

	"github.com/cuemby/hyperfold/pkg/types"
)

// permutationSeed is the coordinator's fixed PRNG seed for the candidate
// shuffle in computeReplicaSets. Every replica of the state machine must
// compute identical chains from identical inputs, so this is a constant,
// never time- or entropy-derived. Grounded on the original placement
// algorithm's 0xdeadbeef seed.
const permutationSeed = 0xdeadbeef

type pair struct {
	a, b types.ServerID
}

func collocatedPair(a, b types.ServerID) pair {
	if a < b {
		return pair{a, b}
	}
	return pair{b, a}
}

// computeReplicaSets assigns one replica chain of length R to each of
// numRegions regions, drawing servers from permutation (already filtered
// to AVAILABLE servers). S is the scatter-width ceiling: a server already
// sharing a region with S distinct other servers is skipped as a
// candidate. The function is pure and deterministic given its inputs,
// grounded on the original compute_replica_sets: lowest-scatter-width
// server picked first each round, candidates drawn via a stable sort of a
// fixed-seed shuffle of the permutation, skipping anyone already
// collocated with a chain member, requiring at least R survivors (a
// simplification of the original's two-color rack-balancing, which this
// spec's data model has no equivalent of — there is no server "color" or
// rack attribute here).
func computeReplicaSets(permutation []types.ServerID, numRegions, R, S int) [][]types.ServerID {
	if R <= 0 || len(permutation) < R {
		return make([][]types.ServerID, numRegions)
	}

	scatterWidth := make(map[types.ServerID]int, len(permutation))
	collocated := make(map[pair]bool)
	for _, s := range permutation {
		scatterWidth[s] = 0
	}

	chains := make([][]types.ServerID, numRegions)
	rng := rand.New(rand.NewSource(permutationSeed))

	progress := 0
	for progress < numRegions {
		madeProgress := false

		for region := 0; region < numRegions; region++ {
			if chains[region] != nil {
				continue
			}

			chain := buildChain(permutation, scatterWidth, collocated, S, R, rng)
			if chain == nil {
				continue
			}

			chains[region] = chain
			for _, s := range chain {
				scatterWidth[s] += len(chain) - 1
			}
			for i := 0; i < len(chain); i++ {
				for j := i + 1; j < len(chain); j++ {
					collocated[collocatedPair(chain[i], chain[j])] = true
				}
			}
			progress++
			madeProgress = true
		}

		if !madeProgress {
			break
		}
	}

	return chains
}

// buildChain picks the server with the lowest current scatter width as the
// chain head, then scans a shuffled-and-stably-sorted copy of the
// permutation for R-1 more servers not yet collocated with any chain
// member. Returns nil if fewer than R candidates are available.
func buildChain(permutation []types.ServerID, scatterWidth map[types.ServerID]int, collocated map[pair]bool, S, R int, rng *rand.Rand) []types.ServerID {
	shuffled := make([]types.ServerID, len(permutation))
	copy(shuffled, permutation)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	sort.SliceStable(shuffled, func(i, j int) bool {
		return scatterWidth[shuffled[i]] < scatterWidth[shuffled[j]]
	})

	var candidates []types.ServerID
	for _, s := range shuffled {
		if scatterWidth[s] >= S {
			continue
		}
		collidesWithChain := false
		for _, c := range candidates {
			if collocated[collocatedPair(s, c)] {
				collidesWithChain = true
				break
			}
		}
		if collidesWithChain {
			continue
		}
		candidates = append(candidates, s)
		if len(candidates) == R {
			break
		}
	}

	if len(candidates) < R {
		return nil
	}
	return candidates
}

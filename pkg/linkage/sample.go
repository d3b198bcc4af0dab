package linkage

import (
	"math/rand"
	"sort"
)

// Pair is one (source, reference) comparison
type Pair struct {
	Source    string `json:"source"`
	Reference string `json:"reference"`
}

// Sample draws up to size distinct pairs from the cross product of the two ID lists.
// The same seed and inputs always give the same sample, in a stable order.
func Sample(sourceIDs, referenceIDs []string, size int, seed int64) []Pair {
	src := sortedCopy(sourceIDs)
	ref := sortedCopy(referenceIDs)

	universe := len(src) * len(ref)
	if universe == 0 || size <= 0 {
		return nil
	}

	if size >= universe {
		pairs := make([]Pair, 0, universe)
		for _, s := range src {
			for _, r := range ref {
				pairs = append(pairs, Pair{Source: s, Reference: r})
			}
		}
		return pairs
	}

	rng := rand.New(rand.NewSource(seed))
	picked := make(map[int]struct{}, size)
	order := make([]int, 0, size)
	for len(order) < size {
		idx := rng.Intn(universe)
		if _, dup := picked[idx]; dup {
			continue
		}
		picked[idx] = struct{}{}
		order = append(order, idx)
	}
	sort.Ints(order)

	pairs := make([]Pair, len(order))
	for i, idx := range order {
		pairs[i] = Pair{Source: src[idx/len(ref)], Reference: ref[idx%len(ref)]}
	}
	return pairs
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

package vector

import (
	"math"
	"sort"
)

// BruteForceSearch scans every (internal, vector) pair in source and
// returns the k nearest to query by Euclidean distance. It exists purely
// as the correctness oracle tests validate Index.Search's approximate
// results against (spec §4.6): exact for small fixtures, not intended for
// production-sized graphs.
func BruteForceSearch(source map[uint32][]float32, query []float32, k int) []Result {
	out := make([]Result, 0, len(source))
	for id, vec := range source {
		out = append(out, Result{InternalID: id, Distance: math.Sqrt(sqDist(query, vec))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].InternalID < out[j].InternalID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

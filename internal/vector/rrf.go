package vector

import (
	"math"
	"sort"
)

// RRFConstant is the smoothing constant k in the reciprocal rank fusion
// formula 1/(k+rank). 60 is the value from the original RRF paper and keeps
// the contribution curve flat enough that a single top rank cannot dominate.
const RRFConstant = 60

// FuseRRF combines rankings by reciprocal rank fusion. Each ranking is a
// list of IDs in descending relevance order; an ID absent from a ranking
// contributes nothing from it. Scores are comparable across calls only for
// the same number of rankings.
func FuseRRF(k int, rankings ...[]string) map[string]float64 {
	fused := make(map[string]float64)
	for _, ranking := range rankings {
		for rank, id := range ranking {
			fused[id] += 1 / float64(k+rank+1)
		}
	}
	return fused
}

// NormalizeScores rescales fused scores into (0, 1] by exponentiating the
// distance from the maximum: exp(s - max(s)). The best candidate maps to
// exactly 1 and relative gaps are preserved monotonically, which gives the
// downstream similarity threshold a stable scale to cut against.
func NormalizeScores(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return scores
	}

	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}

	normalized := make(map[string]float64, len(scores))
	for id, s := range scores {
		normalized[id] = math.Exp(s - max)
	}
	return normalized
}

// TopIDs returns the n highest-scoring IDs in descending score order.
// Ties break lexicographically by ID so results are deterministic.
func TopIDs(scores map[string]float64, n int) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

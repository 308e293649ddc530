// Package ranking implements the feed ranking service (C8): parallel
// candidate fan-out, NaN-safe merge, pagination, cache write-through, and
// the cache/OLTP fallback chain.
package ranking

import "math"

// safe collapses NaN/Inf scoring inputs to 0 before weighting, the
// division-by-zero/NaN blend safety spec.md §4.7 requires.
func safe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Blend computes the linear combined score, collapsing a NaN/Inf result to
// 0 rather than propagating it.
func Blend(freshness, engagement, affinity, wf, we, wa, baseline float64) float64 {
	score := wf*safe(freshness) + we*safe(engagement) + wa*safe(affinity) - baseline
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

// safeCompare orders two combined_score values for a descending sort.
// NaN on either side is incomparable: the pair is reported as equal and
// onNaN is invoked once so the caller can log both post ids/scores and bump
// a counter. mergeAndDedupe then ranks the NaN score as if it were 0.
func safeCompare(a, b float64, onNaN func()) int {
	if math.IsNaN(a) || math.IsNaN(b) {
		if onNaN != nil {
			onNaN()
		}
		return 0
	}
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
